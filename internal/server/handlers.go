package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/crater-relay/internal/crater"
	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/verify"
)

type statusResponse struct {
	Status string `json:"status"`
}

// handleWebhook handles POST /webhook/<platform>.
func (s *Server) handleWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer once the handler returns.
	payload := append([]byte(nil), c.Body()...)

	if err := s.notes.HandleNote(c.UserContext(), payload, c.Get(s.config.WebhookHeader)); err != nil {
		return err
	}
	return c.JSON(statusResponse{Status: "ok"})
}

// handleCraterCallback handles POST /callback/crater. The bearer token is
// checked before the body is parsed.
func (s *Server) handleCraterCallback(c *fiber.Ctx) error {
	token, ok := verify.Bearer(c.Get(fiber.HeaderAuthorization))
	if !ok || !s.verifier.Token(token) {
		s.logger.Warn().Str("ip", c.IP()).Msg("callback rejected: bad bearer token")
		s.metrics.RecordCallback("unknown", "unauthorized")
		return rerrors.ErrUnauthorized
	}

	var cb crater.Callback
	if err := json.Unmarshal(c.Body(), &cb); err != nil {
		s.metrics.RecordCallback("unknown", "malformed")
		return fmt.Errorf("%w: %v", rerrors.ErrMalformedPayload, err)
	}

	if err := s.cbs.Handle(c.UserContext(), cb); err != nil {
		return err
	}
	return c.JSON(statusResponse{Status: "ok"})
}

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	c.Set(fiber.HeaderContentType, "application/problem+json")
	body, err := json.Marshal(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
	if err != nil {
		return err
	}
	return c.Status(status).Send(body)
}

// classify maps a pipeline error to its HTTP status and problem type.
func classify(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, "http_error"
	case errors.Is(err, rerrors.ErrUnauthorized):
		return fiber.StatusUnauthorized, "unauthorized"
	case errors.Is(err, rerrors.ErrMalformedPayload):
		return fiber.StatusBadRequest, "malformed_payload"
	case errors.Is(err, rerrors.ErrInvalidCommand):
		return fiber.StatusUnprocessableEntity, "invalid_command"
	case rerrors.IsClientFault(err):
		return fiber.StatusUnprocessableEntity, "upstream_rejected"
	case rerrors.IsUpstream(err):
		return fiber.StatusBadGateway, "upstream_error"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}
