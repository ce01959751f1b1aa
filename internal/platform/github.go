package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/mapping"
)

// GitHubSignatureHeader carries the HMAC-SHA256 of the webhook body.
const GitHubSignatureHeader = "X-Hub-Signature-256"

// GitHubConfig configures the GitHub back-end.
type GitHubConfig struct {
	APIURL        string // empty for github.com
	AccessToken   string
	WebhookSecret string
}

// GitHub verifies webhook signatures and posts issue comments through the
// GitHub REST API. Its webhook payloads are not ingested by the relay.
type GitHub struct {
	client *gh.Client
	secret []byte
	store  mapping.Store
	logger zerolog.Logger
}

// NewGitHub creates the GitHub back-end. httpClient may be nil.
func NewGitHub(cfg GitHubConfig, httpClient *http.Client, store mapping.Store, logger zerolog.Logger) (*GitHub, error) {
	client := gh.NewClient(httpClient)
	if cfg.AccessToken != "" {
		client = client.WithAuthToken(cfg.AccessToken)
	}
	if cfg.APIURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.APIURL, cfg.APIURL)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub API URL: %w", err)
		}
	}

	return &GitHub{
		client: client,
		secret: []byte(cfg.WebhookSecret),
		store:  store,
		logger: logger.With().Str("component", "platform.github").Logger(),
	}, nil
}

func (g *GitHub) Name() string { return NameGitHub }

func (g *GitHub) WebhookHeader() string { return GitHubSignatureHeader }

// PostComment creates an issue comment. project must be "owner/repo".
func (g *GitHub) PostComment(ctx context.Context, project string, issueID uint64, body string) error {
	owner, repo, ok := strings.Cut(project, "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("%w: GitHub project must be owner/repo, got %q", rerrors.ErrMalformedPayload, project)
	}

	_, resp, err := g.client.Issues.CreateComment(ctx, owner, repo, int(issueID), &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		if resp != nil {
			return &rerrors.APIError{Service: g.Name(), StatusCode: resp.StatusCode, Message: "failed to post comment", Err: err}
		}
		return fmt.Errorf("posting comment to %s#%d: %w", project, issueID, err)
	}
	g.logger.Info().Str("project", project).Uint64("issue", issueID).Msg("comment posted")
	return nil
}

// VerifyWebhook validates the X-Hub-Signature-256 value against the body.
func (g *GitHub) VerifyWebhook(payload []byte, signature string) (bool, error) {
	if len(g.secret) == 0 {
		return false, nil
	}
	if err := gh.ValidateSignature(signature, payload, g.secret); err != nil {
		g.logger.Warn().Err(err).Msg("invalid webhook signature")
		return false, nil
	}
	return true, nil
}

func (g *GitHub) StoreMapping(ctx context.Context, project string, issueID uint64, experiment string) error {
	return g.store.Put(ctx, project, issueID, experiment)
}

func (g *GitHub) GetMapping(ctx context.Context, project string, issueID uint64) (string, bool, error) {
	return g.store.Get(ctx, project, issueID)
}
