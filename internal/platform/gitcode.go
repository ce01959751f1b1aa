package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/mapping"
	"github.com/p-blackswan/crater-relay/internal/verify"
)

// GitCodeTokenHeader carries the per-deployment webhook token.
const GitCodeTokenHeader = "X-GitCode-Token"

// GitCodeConfig configures the GitCode back-end.
type GitCodeConfig struct {
	APIURL        string
	AccessToken   string
	WebhookSecret string
	Timeout       time.Duration
}

// GitCode talks to the GitCode v5 REST API.
type GitCode struct {
	apiURL     string
	token      string
	verifier   *verify.Verifier
	store      mapping.Store
	httpClient HTTPClient
	logger     zerolog.Logger
}

type createCommentRequest struct {
	Body string `json:"body"`
}

// NewGitCode creates the GitCode back-end. Mappings are kept in store.
func NewGitCode(cfg GitCodeConfig, store mapping.Store, logger zerolog.Logger) *GitCode {
	return &GitCode{
		apiURL:     strings.TrimSuffix(cfg.APIURL, "/"),
		token:      cfg.AccessToken,
		verifier:   verify.New(cfg.WebhookSecret),
		store:      store,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "platform.gitcode").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (g *GitCode) SetHTTPClient(hc HTTPClient) {
	g.httpClient = hc
}

func (g *GitCode) Name() string { return NameGitCode }

func (g *GitCode) WebhookHeader() string { return GitCodeTokenHeader }

// PostComment creates a comment via POST /repos/{project}/issues/{id}/comments.
func (g *GitCode) PostComment(ctx context.Context, project string, issueID uint64, body string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/%s/comments", g.apiURL, project, strconv.FormatUint(issueID, 10))

	payload, err := json.Marshal(createCommentRequest{Body: body})
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "token "+g.token)

	g.logger.Info().Str("project", project).Uint64("issue", issueID).Msg("posting comment")
	g.logger.Debug().Str("body", body).Msg("comment content")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting comment to %s#%d: %w", project, issueID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &rerrors.APIError{
			Service:    g.Name(),
			StatusCode: resp.StatusCode,
			Message:    "failed to post comment: " + strings.TrimSpace(string(respBody)),
		}
	}
	return nil
}

// VerifyWebhook compares the X-GitCode-Token value with the configured secret.
func (g *GitCode) VerifyWebhook(payload []byte, token string) (bool, error) {
	ok := g.verifier.Verify(payload, token)
	if !ok {
		g.logger.Warn().Int("token_len", len(token)).Msg("webhook token mismatch")
	}
	return ok, nil
}

func (g *GitCode) StoreMapping(ctx context.Context, project string, issueID uint64, experiment string) error {
	return g.store.Put(ctx, project, issueID, experiment)
}

func (g *GitCode) GetMapping(ctx context.Context, project string, issueID uint64) (string, bool, error) {
	return g.store.Get(ctx, project, issueID)
}
