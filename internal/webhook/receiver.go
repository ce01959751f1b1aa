// Package webhook implements the two ingestion pipelines: issue-comment
// webhooks from the code-hosting platform and experiment callbacks from crater.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/crater-relay/internal/bot"
	"github.com/p-blackswan/crater-relay/internal/command"
	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/metrics"
	"github.com/p-blackswan/crater-relay/internal/models"
	"github.com/p-blackswan/crater-relay/internal/platform"
)

// NoteEvent is the subset of a GitCode note webhook the relay reads.
type NoteEvent struct {
	ObjectKind       string          `json:"object_kind"`
	Project          *NoteProject    `json:"project,omitempty"`
	Issue            *NoteIssue      `json:"issue,omitempty"`
	ObjectAttributes *NoteAttributes `json:"object_attributes,omitempty"`
}

// NoteProject identifies the repository the comment was made in.
type NoteProject struct {
	PathWithNamespace string `json:"path_with_namespace"`
}

// NoteIssue identifies the issue the comment was made on.
type NoteIssue struct {
	IID uint64 `json:"iid"`
}

// NoteAttributes carries the comment body.
type NoteAttributes struct {
	Note string `json:"note"`
}

// Dispatcher executes a parsed command for an issue.
type Dispatcher interface {
	Process(ctx context.Context, cmd command.Command, issue models.IssueRef, store bot.MappingStore) (string, error)
}

// Receiver handles note webhooks for one platform back-end.
type Receiver struct {
	platform      platform.Platform
	dispatcher    Dispatcher
	triggerPrefix string
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// NewReceiver creates a note receiver. m may be nil.
func NewReceiver(p platform.Platform, d Dispatcher, triggerPrefix string, m *metrics.Metrics, logger zerolog.Logger) *Receiver {
	return &Receiver{
		platform:      p,
		dispatcher:    d,
		triggerPrefix: triggerPrefix,
		metrics:       m,
		logger:        logger.With().Str("component", "webhook").Str("platform", p.Name()).Logger(),
	}
}

// HandleNote authenticates payload with token, then parses and dispatches
// any bot command it carries. The payload is not decoded before it has been
// verified.
func (r *Receiver) HandleNote(ctx context.Context, payload []byte, token string) error {
	ok, err := r.platform.VerifyWebhook(payload, token)
	if err != nil {
		r.metrics.RecordWebhook(r.platform.Name(), "error")
		return fmt.Errorf("verifying webhook: %w", err)
	}
	if !ok {
		r.logger.Warn().Int("bytes", len(payload)).Msg("webhook verification failed")
		r.metrics.RecordWebhook(r.platform.Name(), "unauthorized")
		return rerrors.ErrUnauthorized
	}

	var event NoteEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.metrics.RecordWebhook(r.platform.Name(), "malformed")
		return fmt.Errorf("%w: %v", rerrors.ErrMalformedPayload, err)
	}

	if event.ObjectKind != "note" {
		r.logger.Debug().Str("object_kind", event.ObjectKind).Msg("ignoring non-note event")
		r.metrics.RecordWebhook(r.platform.Name(), "ignored")
		return nil
	}

	issue, note, err := event.issueNote()
	if err != nil {
		r.metrics.RecordWebhook(r.platform.Name(), "malformed")
		return err
	}

	log := r.logger.With().Str("issue", issue.String()).Logger()

	msg, err := r.dispatch(ctx, note, issue)
	if errors.Is(err, errNoCommand) {
		log.Debug().Msg("comment carries no bot command")
		r.metrics.RecordWebhook(r.platform.Name(), "ignored")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		r.metrics.RecordWebhook(r.platform.Name(), "error")

		if postErr := r.platform.PostComment(ctx, issue.Project, issue.IssueID, "❌ Error: "+err.Error()); postErr != nil {
			log.Error().Err(postErr).Msg("failed to post error comment")
			r.metrics.RecordError("webhook", "error_comment")
		}
		return err
	}

	if err := r.platform.PostComment(ctx, issue.Project, issue.IssueID, msg); err != nil {
		r.metrics.RecordWebhook(r.platform.Name(), "error")
		return fmt.Errorf("posting reply to %s: %w", issue, err)
	}

	log.Info().Msg("command reply posted")
	r.metrics.RecordWebhook(r.platform.Name(), "ok")
	return nil
}

var errNoCommand = errors.New("no command")

func (r *Receiver) dispatch(ctx context.Context, note string, issue models.IssueRef) (string, error) {
	cmd, err := command.Parse(note, r.triggerPrefix)
	if err != nil {
		return "", err
	}
	if cmd == nil {
		return "", errNoCommand
	}

	r.logger.Info().Str("issue", issue.String()).Str("command", cmd.String()).Msg("dispatching command")
	return r.dispatcher.Process(ctx, *cmd, issue, r.platform)
}

func (e *NoteEvent) issueNote() (models.IssueRef, string, error) {
	switch {
	case e.Project == nil:
		return models.IssueRef{}, "", fmt.Errorf("%w: missing project", rerrors.ErrMalformedPayload)
	case e.Project.PathWithNamespace == "":
		return models.IssueRef{}, "", fmt.Errorf("%w: missing project path_with_namespace", rerrors.ErrMalformedPayload)
	case e.Issue == nil:
		return models.IssueRef{}, "", fmt.Errorf("%w: missing issue", rerrors.ErrMalformedPayload)
	case e.Issue.IID == 0:
		return models.IssueRef{}, "", fmt.Errorf("%w: missing issue iid", rerrors.ErrMalformedPayload)
	case e.ObjectAttributes == nil:
		return models.IssueRef{}, "", fmt.Errorf("%w: missing object_attributes", rerrors.ErrMalformedPayload)
	}
	return models.IssueRef{Project: e.Project.PathWithNamespace, IssueID: e.Issue.IID}, e.ObjectAttributes.Note, nil
}
