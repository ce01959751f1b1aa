package webhook

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/crater-relay/internal/crater"
	"github.com/p-blackswan/crater-relay/internal/metrics"
	"github.com/p-blackswan/crater-relay/internal/naming"
	"github.com/p-blackswan/crater-relay/internal/notify"
	"github.com/p-blackswan/crater-relay/internal/platform"
)

// CallbackHandler relays crater callbacks to the issue that started the
// experiment. The issue is recovered from the experiment name alone.
type CallbackHandler struct {
	commenter platform.Commenter
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewCallbackHandler creates a callback handler. notifier and m may be nil.
func NewCallbackHandler(c platform.Commenter, notifier notify.Notifier, m *metrics.Metrics, logger zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		commenter: c,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With().Str("component", "callback").Logger(),
	}
}

// Handle posts a comment describing cb on the originating issue. Callbacks
// for experiments the relay did not name are dropped.
func (h *CallbackHandler) Handle(ctx context.Context, cb crater.Callback) error {
	issue, err := naming.DecodeRef(cb.Experiment)
	if err != nil {
		h.logger.Warn().Err(err).Str("experiment", cb.Experiment).Msg("dropping callback for unrecognised experiment")
		h.metrics.RecordCallback(cb.Status, "dropped")
		return nil
	}

	msg := CallbackMessage(cb)

	if err := h.commenter.PostComment(ctx, issue.Project, issue.IssueID, msg); err != nil {
		h.metrics.RecordCallback(cb.Status, "error")
		return fmt.Errorf("posting callback for %s to %s: %w", cb.Experiment, issue, err)
	}

	h.logger.Info().
		Str("experiment", cb.Experiment).
		Str("status", cb.Status).
		Str("issue", issue.String()).
		Msg("callback relayed")
	h.metrics.RecordCallback(cb.Status, "ok")

	if h.notifier != nil {
		if err := h.notifier.Notify(ctx, issue, cb.Status, msg); err != nil {
			h.logger.Warn().Err(err).Str("experiment", cb.Experiment).Msg("failed to mirror callback")
			h.metrics.RecordError("notify", "post")
		}
	}
	return nil
}

// CallbackMessage renders the issue comment for a callback.
func CallbackMessage(cb crater.Callback) string {
	switch crater.Status(cb.Status) {
	case crater.StatusCompleted:
		if cb.ReportURL != "" {
			return fmt.Sprintf("🎉 Experiment `%s` has completed!\n\n📊 Full report: [view report](%s)", cb.Experiment, cb.ReportURL)
		}
		return fmt.Sprintf("🎉 Experiment `%s` has completed!", cb.Experiment)
	case crater.StatusFailed:
		return fmt.Sprintf("❌ Experiment `%s` failed.", cb.Experiment)
	case crater.StatusAborted:
		return fmt.Sprintf("⏹️ Experiment `%s` was aborted.", cb.Experiment)
	default:
		return fmt.Sprintf("📊 Experiment `%s` status update: %s", cb.Experiment, cb.Status)
	}
}
