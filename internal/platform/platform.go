// Package platform implements the code-hosting platform back-ends the relay
// posts comments to and receives webhooks from.
package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/mapping"
)

// Commenter posts comments on issues.
type Commenter interface {
	PostComment(ctx context.Context, project string, issueID uint64, body string) error
}

// Platform is the capability set the pipelines depend on. Each back-end
// implements all of it; a capability it cannot offer fails with
// errors.ErrNotImplemented.
type Platform interface {
	Commenter

	// Name identifies the back-end in logs, metrics and the webhook route.
	Name() string
	// WebhookHeader is the request header carrying the webhook credential.
	WebhookHeader() string
	// VerifyWebhook authenticates a raw, undecoded webhook body.
	VerifyWebhook(payload []byte, token string) (bool, error)
	// StoreMapping records the active experiment for an issue.
	StoreMapping(ctx context.Context, project string, issueID uint64, experiment string) error
	// GetMapping returns the active experiment for an issue, if any.
	GetMapping(ctx context.Context, project string, issueID uint64) (string, bool, error)
}

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var (
	_ Platform = (*GitCode)(nil)
	_ Platform = (*GitHub)(nil)
	_ Platform = (*Gitee)(nil)
)

// Back-end names accepted by New.
const (
	NameGitCode = "gitcode"
	NameGitHub  = "github"
	NameGitee   = "gitee"
)

// Settings carries the configuration of every back-end New can build.
type Settings struct {
	GitCode       GitCodeConfig
	GitHub        GitHubConfig
	GitHubTimeout time.Duration
}

// New builds the back-end called name. Mappings are kept in store.
func New(name string, s Settings, store mapping.Store, logger zerolog.Logger) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameGitCode:
		return NewGitCode(s.GitCode, store, logger), nil
	case NameGitHub:
		return NewGitHub(s.GitHub, &http.Client{Timeout: s.GitHubTimeout}, store, logger)
	case NameGitee:
		return nil, NewGitee().notImplemented()
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", rerrors.ErrConfig, name)
	}
}
