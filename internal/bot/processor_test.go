package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/crater-relay/internal/command"
	"github.com/p-blackswan/crater-relay/internal/crater"
	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/mapping"
	"github.com/p-blackswan/crater-relay/internal/metrics"
	"github.com/p-blackswan/crater-relay/internal/models"
)

type fakeCrater struct {
	mu          sync.Mutex
	calls       []string
	created     *crater.CreateExperimentRequest
	createName  string
	createErr   error
	runErr      error
	experiments []crater.Experiment
	getResult   *crater.Experiment
}

func (f *fakeCrater) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCrater) CreateExperiment(_ context.Context, req *crater.CreateExperimentRequest) (*crater.Experiment, error) {
	f.record("create:" + req.Name)
	f.created = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	name := req.Name
	if f.createName != "" {
		name = f.createName
	}
	return &crater.Experiment{
		Name:       name,
		Toolchains: req.Toolchains,
		Mode:       req.Mode,
		Status:     crater.StatusQueued,
	}, nil
}

func (f *fakeCrater) RunExperiment(_ context.Context, name string) error {
	f.record("run:" + name)
	return f.runErr
}

func (f *fakeCrater) GetExperiment(_ context.Context, name string) (*crater.Experiment, error) {
	f.record("get:" + name)
	return f.getResult, nil
}

func (f *fakeCrater) AbortExperiment(_ context.Context, name string) error {
	f.record("abort:" + name)
	return nil
}

func (f *fakeCrater) ListExperiments(context.Context) ([]crater.Experiment, error) {
	f.record("list")
	return f.experiments, nil
}

// storeAdapter exposes a mapping.Store through the MappingStore interface.
type storeAdapter struct{ s mapping.Store }

func (a storeAdapter) StoreMapping(ctx context.Context, project string, issueID uint64, experiment string) error {
	return a.s.Put(ctx, project, issueID, experiment)
}

func (a storeAdapter) GetMapping(ctx context.Context, project string, issueID uint64) (string, bool, error) {
	return a.s.Get(ctx, project, issueID)
}

func testConfig() Config {
	return Config{
		Name:               "crater-bot",
		TriggerPrefix:      "@crater-bot",
		DefaultMode:        "build-and-test",
		DefaultCrateSelect: "demo",
		Priority:           3,
		CallbackBaseURL:    "https://relay.example.com/",
	}
}

var issue = models.IssueRef{Project: "acme/widgets", IssueID: 42}

func TestProcess_Run(t *testing.T) {
	fc := &fakeCrater{}
	store := storeAdapter{mapping.NewMemoryStore()}
	p := NewProcessor(fc, testConfig(), metrics.New(), zerolog.Nop())

	msg, err := p.Process(context.Background(), command.Command{
		Kind:       command.KindRun,
		Toolchains: []string{"stable", "beta"},
	}, issue, store)
	require.NoError(t, err)

	assert.Equal(t, []string{"create:acme--widgets-42", "run:acme--widgets-42"}, fc.calls)
	require.NotNil(t, fc.created)
	assert.Equal(t, "build-and-test", fc.created.Mode)
	assert.Equal(t, "demo", fc.created.CrateSelect)
	assert.Equal(t, 3, fc.created.Priority)
	assert.Equal(t, "https://relay.example.com/callback/crater", fc.created.CallbackURL)

	assert.Contains(t, msg, "acme--widgets-42")
	assert.Contains(t, msg, "stable vs beta")
	assert.Contains(t, msg, "build-and-test")
	assert.Contains(t, msg, "Queued")

	name, ok, err := store.GetMapping(context.Background(), "acme/widgets", 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "acme--widgets-42", name)
}

func TestProcess_RunKeepsDerivedName(t *testing.T) {
	fc := &fakeCrater{createName: "acme--widgets-42-r1"}
	store := storeAdapter{mapping.NewMemoryStore()}
	var logs bytes.Buffer
	p := NewProcessor(fc, testConfig(), nil, zerolog.New(&logs))

	reply, err := p.Process(context.Background(), command.Command{
		Kind:       command.KindRun,
		Toolchains: []string{"stable", "beta"},
	}, issue, store)
	require.NoError(t, err)

	assert.Equal(t, "run:acme--widgets-42", fc.calls[1])
	name, _, _ := store.GetMapping(context.Background(), "acme/widgets", 42)
	assert.Equal(t, "acme--widgets-42", name)
	assert.Contains(t, reply, "`acme--widgets-42`")
	assert.Contains(t, logs.String(), `"returned_name":"acme--widgets-42-r1"`)
	assert.Contains(t, logs.String(), `"level":"warn"`)
}

func TestProcess_RunFailureStoresNothing(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeCrater
	}{
		{"create fails", &fakeCrater{createErr: rerrors.NewAPIError("crater", 500, "boom")}},
		{"run fails", &fakeCrater{runErr: rerrors.NewAPIError("crater", 409, "conflict")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := mapping.NewMemoryStore()
			p := NewProcessor(tt.fc, testConfig(), nil, zerolog.Nop())

			_, err := p.Process(context.Background(), command.Command{
				Kind:       command.KindRun,
				Toolchains: []string{"stable", "beta"},
			}, issue, storeAdapter{mem})
			require.Error(t, err)

			var apiErr *rerrors.APIError
			assert.True(t, errors.As(err, &apiErr))
			assert.Equal(t, 0, mem.Len())
		})
	}
}

func TestProcess_StatusAndAbortWithoutMapping(t *testing.T) {
	for _, kind := range []command.Kind{command.KindStatus, command.KindAbort} {
		t.Run(string(kind), func(t *testing.T) {
			fc := &fakeCrater{}
			p := NewProcessor(fc, testConfig(), nil, zerolog.Nop())

			msg, err := p.Process(context.Background(), command.Command{Kind: kind}, issue,
				storeAdapter{mapping.NewMemoryStore()})
			require.NoError(t, err)
			assert.Contains(t, msg, "no experiment associated")
			assert.Empty(t, fc.calls)
		})
	}
}

func TestProcess_Status(t *testing.T) {
	fc := &fakeCrater{getResult: &crater.Experiment{
		Name:       "acme--widgets-42",
		Toolchains: []string{"stable", "beta"},
		Mode:       "build-and-test",
		Status:     crater.StatusRunning,
	}}
	mem := mapping.NewMemoryStore()
	require.NoError(t, mem.Put(context.Background(), "acme/widgets", 42, "acme--widgets-42"))
	p := NewProcessor(fc, testConfig(), nil, zerolog.Nop())

	msg, err := p.Process(context.Background(), command.Command{Kind: command.KindStatus}, issue, storeAdapter{mem})
	require.NoError(t, err)

	assert.Equal(t, []string{"get:acme--widgets-42"}, fc.calls)
	assert.Contains(t, msg, "`acme--widgets-42`")
	assert.Contains(t, msg, "stable vs beta")
	assert.Contains(t, msg, "Running")
	assert.Contains(t, msg, "build-and-test")
}

func TestProcess_Abort(t *testing.T) {
	fc := &fakeCrater{}
	mem := mapping.NewMemoryStore()
	require.NoError(t, mem.Put(context.Background(), "acme/widgets", 42, "acme--widgets-42"))
	p := NewProcessor(fc, testConfig(), nil, zerolog.Nop())

	msg, err := p.Process(context.Background(), command.Command{Kind: command.KindAbort}, issue, storeAdapter{mem})
	require.NoError(t, err)

	assert.Equal(t, []string{"abort:acme--widgets-42"}, fc.calls)
	assert.Contains(t, msg, "aborted")
}

func TestProcess_Help(t *testing.T) {
	fc := &fakeCrater{}
	p := NewProcessor(fc, testConfig(), nil, zerolog.Nop())

	msg, err := p.Process(context.Background(), command.Command{Kind: command.KindHelp}, issue, nil)
	require.NoError(t, err)

	assert.Contains(t, msg, "crater-bot help")
	assert.Contains(t, msg, "@crater-bot run <toolchain1> <toolchain2>")
	assert.Contains(t, msg, "@crater-bot list")
	assert.Empty(t, fc.calls)
}

func TestProcess_List(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		p := NewProcessor(&fakeCrater{}, testConfig(), nil, zerolog.Nop())
		msg, err := p.Process(context.Background(), command.Command{Kind: command.KindList}, issue, nil)
		require.NoError(t, err)
		assert.Equal(t, "There are no experiments.", msg)
	})

	t.Run("truncated", func(t *testing.T) {
		var exps []crater.Experiment
		for i := 0; i < 13; i++ {
			exps = append(exps, crater.Experiment{
				Name:       fmt.Sprintf("exp-%d", i),
				Toolchains: []string{"stable", "beta"},
				Status:     crater.StatusCompleted,
			})
		}
		p := NewProcessor(&fakeCrater{experiments: exps}, testConfig(), nil, zerolog.Nop())

		msg, err := p.Process(context.Background(), command.Command{Kind: command.KindList}, issue, nil)
		require.NoError(t, err)
		assert.Contains(t, msg, "`exp-0` - Completed (stable vs beta)")
		assert.Contains(t, msg, "`exp-9`")
		assert.NotContains(t, msg, "`exp-10`")
		assert.Contains(t, msg, "...and 3 more")
	})

	t.Run("exactly ten", func(t *testing.T) {
		exps := make([]crater.Experiment, 10)
		for i := range exps {
			exps[i] = crater.Experiment{Name: fmt.Sprintf("exp-%d", i)}
		}
		p := NewProcessor(&fakeCrater{experiments: exps}, testConfig(), nil, zerolog.Nop())

		msg, err := p.Process(context.Background(), command.Command{Kind: command.KindList}, issue, nil)
		require.NoError(t, err)
		assert.NotContains(t, msg, "more")
	})
}

func TestProcess_UnknownKind(t *testing.T) {
	p := NewProcessor(&fakeCrater{}, testConfig(), nil, zerolog.Nop())
	_, err := p.Process(context.Background(), command.Command{Kind: "deploy"}, issue, nil)
	assert.ErrorIs(t, err, rerrors.ErrInvalidCommand)
}
