// Package crater is a client for the crater experiment-orchestration API.
package crater

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
)

const serviceName = "crater"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the crater REST API. Every call is attempted once.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewClient creates a crater API client authenticating with a bearer token.
func NewClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "crater").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// CreateExperiment registers a new experiment.
func (c *Client) CreateExperiment(ctx context.Context, req *CreateExperimentRequest) (*Experiment, error) {
	c.logger.Info().Str("experiment", req.Name).Strs("toolchains", req.Toolchains).Msg("creating experiment")

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding create request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/experiments", bytes.NewReader(body), "create experiment")
	if err != nil {
		return nil, err
	}

	var exp Experiment
	if err := decodeResponse(resp, &exp); err != nil {
		return nil, err
	}
	c.logger.Info().Str("experiment", exp.Name).Str("status", string(exp.Status)).Msg("experiment created")
	return &exp, nil
}

// RunExperiment asks crater to start a created experiment.
func (c *Client) RunExperiment(ctx context.Context, name string) error {
	c.logger.Info().Str("experiment", name).Msg("running experiment")
	return c.doDiscard(ctx, http.MethodPost, experimentPath(name)+"/run", "run experiment")
}

// GetExperiment fetches the current state of an experiment.
func (c *Client) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	resp, err := c.do(ctx, http.MethodGet, experimentPath(name), nil, "get experiment")
	if err != nil {
		return nil, err
	}

	var exp Experiment
	if err := decodeResponse(resp, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

// AbortExperiment stops a running experiment.
func (c *Client) AbortExperiment(ctx context.Context, name string) error {
	c.logger.Info().Str("experiment", name).Msg("aborting experiment")
	return c.doDiscard(ctx, http.MethodPost, experimentPath(name)+"/abort", "abort experiment")
}

// DeleteExperiment removes an experiment.
func (c *Client) DeleteExperiment(ctx context.Context, name string) error {
	c.logger.Info().Str("experiment", name).Msg("deleting experiment")
	return c.doDiscard(ctx, http.MethodDelete, experimentPath(name), "delete experiment")
}

// ListExperiments returns all experiments in the order crater reports them.
func (c *Client) ListExperiments(ctx context.Context) ([]Experiment, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/experiments", nil, "list experiments")
	if err != nil {
		return nil, err
	}

	var list ExperimentList
	if err := decodeResponse(resp, &list); err != nil {
		return nil, err
	}
	return list.Experiments, nil
}

// Ping checks that crater is reachable and accepts the configured token.
func (c *Client) Ping(ctx context.Context) error {
	return c.doDiscard(ctx, http.MethodGet, "/api/v1/experiments", "ping")
}

func experimentPath(name string) string {
	return "/api/v1/experiments/" + url.PathEscape(name)
}

// do executes an authenticated API request. Non-2xx responses become an
// *errors.APIError carrying the status and response body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, op string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: executing request: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.logger.Error().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("crater request failed")
		return nil, &rerrors.APIError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to %s: %s", op, strings.TrimSpace(string(respBody))),
		}
	}

	return resp, nil
}

func (c *Client) doDiscard(ctx context.Context, method, path, op string) error {
	resp, err := c.do(ctx, method, path, nil, op)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// decodeResponse reads and decodes a JSON response.
func decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
