// Package bot turns parsed issue-comment commands into crater calls and
// renders the reply posted back to the issue.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/crater-relay/internal/command"
	"github.com/p-blackswan/crater-relay/internal/crater"
	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/metrics"
	"github.com/p-blackswan/crater-relay/internal/models"
	"github.com/p-blackswan/crater-relay/internal/naming"
)

// listLimit caps the experiments rendered by the list command.
const listLimit = 10

// Orchestrator is the subset of the crater API the dispatcher calls.
type Orchestrator interface {
	CreateExperiment(ctx context.Context, req *crater.CreateExperimentRequest) (*crater.Experiment, error)
	RunExperiment(ctx context.Context, name string) error
	GetExperiment(ctx context.Context, name string) (*crater.Experiment, error)
	AbortExperiment(ctx context.Context, name string) error
	ListExperiments(ctx context.Context) ([]crater.Experiment, error)
}

// MappingStore records which experiment belongs to which issue.
type MappingStore interface {
	StoreMapping(ctx context.Context, project string, issueID uint64, experiment string) error
	GetMapping(ctx context.Context, project string, issueID uint64) (string, bool, error)
}

// Config holds the bot settings.
type Config struct {
	Name               string
	TriggerPrefix      string
	DefaultMode        string
	DefaultCrateSelect string
	Priority           int
	CallbackBaseURL    string
}

// Processor dispatches commands.
type Processor struct {
	crater      Orchestrator
	cfg         Config
	callbackURL string
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewProcessor creates a command processor. m may be nil.
func NewProcessor(orch Orchestrator, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		crater:      orch,
		cfg:         cfg,
		callbackURL: strings.TrimRight(cfg.CallbackBaseURL, "/") + "/callback/crater",
		metrics:     m,
		logger:      logger.With().Str("component", "bot").Logger(),
	}
}

// CallbackURL is the address crater is told to notify.
func (p *Processor) CallbackURL() string {
	return p.callbackURL
}

// Process executes cmd on behalf of issue and returns the reply text.
func (p *Processor) Process(ctx context.Context, cmd command.Command, issue models.IssueRef, store MappingStore) (string, error) {
	start := time.Now()

	var (
		msg string
		err error
	)
	switch cmd.Kind {
	case command.KindRun:
		msg, err = p.run(ctx, cmd.Toolchains, issue, store)
	case command.KindStatus:
		msg, err = p.status(ctx, issue, store)
	case command.KindAbort:
		msg, err = p.abort(ctx, issue, store)
	case command.KindHelp:
		msg = p.help()
	case command.KindList:
		msg, err = p.list(ctx)
	default:
		err = fmt.Errorf("%w: unsupported command kind %q", rerrors.ErrInvalidCommand, cmd.Kind)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	p.metrics.RecordCommand(string(cmd.Kind), result, time.Since(start).Seconds())

	p.logger.Info().
		Str("command", string(cmd.Kind)).
		Str("issue", issue.String()).
		Str("result", result).
		Dur("duration", time.Since(start)).
		Msg("command processed")

	return msg, err
}

func (p *Processor) run(ctx context.Context, toolchains []string, issue models.IssueRef, store MappingStore) (string, error) {
	name := naming.EncodeRef(issue)

	p.logger.Info().Str("experiment", name).Strs("toolchains", toolchains).Msg("creating experiment")

	exp, err := p.crater.CreateExperiment(ctx, &crater.CreateExperimentRequest{
		Name:        name,
		Toolchains:  toolchains,
		Mode:        p.cfg.DefaultMode,
		CrateSelect: p.cfg.DefaultCrateSelect,
		Priority:    p.cfg.Priority,
		CallbackURL: p.callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("creating experiment %s: %w", name, err)
	}

	// Callbacks are decoded back to the issue, so the derived name stays
	// authoritative.
	if exp.Name != "" && exp.Name != name {
		p.logger.Warn().
			Str("experiment", name).
			Str("returned_name", exp.Name).
			Msg("crater returned a different experiment name, keeping the derived one")
	}

	if err := p.crater.RunExperiment(ctx, name); err != nil {
		return "", fmt.Errorf("starting experiment %s: %w", name, err)
	}

	if err := store.StoreMapping(ctx, issue.Project, issue.IssueID, name); err != nil {
		return "", fmt.Errorf("storing mapping for %s: %w", issue, err)
	}

	mode := exp.Mode
	if mode == "" {
		mode = p.cfg.DefaultMode
	}

	return fmt.Sprintf("✅ Experiment `%s` has been created and started.\n\n"+
		"Toolchains: %s\n"+
		"Mode: %s\n"+
		"Status: %s\n\n"+
		"I will let you know when the experiment finishes.",
		name, strings.Join(toolchains, " vs "), mode, exp.Status.Label()), nil
}

func (p *Processor) status(ctx context.Context, issue models.IssueRef, store MappingStore) (string, error) {
	name, ok, err := store.GetMapping(ctx, issue.Project, issue.IssueID)
	if err != nil {
		return "", fmt.Errorf("looking up mapping for %s: %w", issue, err)
	}
	if !ok {
		return "There is no experiment associated with this issue.", nil
	}

	exp, err := p.crater.GetExperiment(ctx, name)
	if err != nil {
		return "", fmt.Errorf("fetching experiment %s: %w", name, err)
	}

	return fmt.Sprintf("📊 Experiment status\n\n"+
		"Name: `%s`\n"+
		"Toolchains: %s\n"+
		"Status: %s\n"+
		"Mode: %s",
		exp.Name, strings.Join(exp.Toolchains, " vs "), exp.Status.Label(), exp.Mode), nil
}

func (p *Processor) abort(ctx context.Context, issue models.IssueRef, store MappingStore) (string, error) {
	name, ok, err := store.GetMapping(ctx, issue.Project, issue.IssueID)
	if err != nil {
		return "", fmt.Errorf("looking up mapping for %s: %w", issue, err)
	}
	if !ok {
		return "There is no experiment associated with this issue, nothing to abort.", nil
	}

	if err := p.crater.AbortExperiment(ctx, name); err != nil {
		return "", fmt.Errorf("aborting experiment %s: %w", name, err)
	}

	return fmt.Sprintf("⏹️ Experiment `%s` has been aborted.", name), nil
}

func (p *Processor) help() string {
	pre := p.cfg.TriggerPrefix
	var b strings.Builder
	fmt.Fprintf(&b, "## %s help\n\n", p.cfg.Name)
	b.WriteString("### Commands\n\n")
	fmt.Fprintf(&b, "- `%s run <toolchain1> <toolchain2>` - create and run an experiment\n", pre)
	fmt.Fprintf(&b, "- `%s status` - show the status of this issue's experiment\n", pre)
	fmt.Fprintf(&b, "- `%s abort` - abort this issue's experiment\n", pre)
	fmt.Fprintf(&b, "- `%s list` - list all experiments\n", pre)
	fmt.Fprintf(&b, "- `%s help` - show this message\n\n", pre)
	b.WriteString("### Examples\n\n```\n")
	fmt.Fprintf(&b, "%s run stable beta\n", pre)
	fmt.Fprintf(&b, "%s run nightly-2024-01-01 stable\n", pre)
	b.WriteString("```")
	return b.String()
}

func (p *Processor) list(ctx context.Context) (string, error) {
	exps, err := p.crater.ListExperiments(ctx)
	if err != nil {
		return "", fmt.Errorf("listing experiments: %w", err)
	}
	if len(exps) == 0 {
		return "There are no experiments.", nil
	}

	var b strings.Builder
	b.WriteString("## Experiments\n\n")
	for i, exp := range exps {
		if i == listLimit {
			break
		}
		fmt.Fprintf(&b, "- `%s` - %s (%s)\n", exp.Name, exp.Status.Label(), strings.Join(exp.Toolchains, " vs "))
	}
	if len(exps) > listLimit {
		fmt.Fprintf(&b, "\n_...and %d more_", len(exps)-listLimit)
	}
	return b.String(), nil
}
