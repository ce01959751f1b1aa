// Package server is the relay's inbound HTTP surface.
package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/crater-relay/internal/crater"
	"github.com/p-blackswan/crater-relay/internal/health"
	"github.com/p-blackswan/crater-relay/internal/metrics"
	"github.com/p-blackswan/crater-relay/internal/platform"
	"github.com/p-blackswan/crater-relay/internal/requestid"
	"github.com/p-blackswan/crater-relay/internal/verify"
)

// NoteHandler ingests a raw platform webhook.
type NoteHandler interface {
	HandleNote(ctx context.Context, payload []byte, token string) error
}

// CallbackHandler ingests a decoded crater callback.
type CallbackHandler interface {
	Handle(ctx context.Context, cb crater.Callback) error
}

// Config holds configuration for the HTTP server.
type Config struct {
	ListenAddr         string
	CallbackSecret     string
	RateLimitPerMinute int
	BodyLimit          int

	// WebhookPlatform names the /webhook/<platform> route. WebhookHeader is
	// the header whose value is handed to the NoteHandler. Both default to
	// GitCode.
	WebhookPlatform string
	WebhookHeader   string
}

// Server is the relay's Fiber application.
type Server struct {
	app      *fiber.App
	notes    NoteHandler
	cbs      CallbackHandler
	verifier *verify.Verifier
	checker  *health.Checker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	config   Config
}

// New creates and configures the server. checker and m may be nil.
func New(cfg Config, notes NoteHandler, cbs CallbackHandler, checker *health.Checker, m *metrics.Metrics, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "server").Logger()

	if cfg.WebhookPlatform == "" {
		cfg.WebhookPlatform = platform.NameGitCode
	}
	if cfg.WebhookHeader == "" {
		cfg.WebhookHeader = platform.GitCodeTokenHeader
	}

	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             bodyLimit,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          90 * time.Second,
	})

	if checker == nil {
		checker = health.NewChecker(logger)
	}

	s := &Server{
		app:      app,
		notes:    notes,
		cbs:      cbs,
		verifier: verify.New(cfg.CallbackSecret),
		checker:  checker,
		metrics:  m,
		logger:   logger,
		config:   cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// isHealthRoute reports whether path is a health or metrics endpoint.
// These are neither rate limited nor logged per request.
func isHealthRoute(path string) bool {
	switch path {
	case "/health", "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID
	s.app.Use(func(c *fiber.Ctx) error {
		ctx, reqID := requestid.FromHeader(c.UserContext(), c.Get(requestid.Header))
		c.SetUserContext(ctx)
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if s.config.RateLimitPerMinute > 0 {
		s.app.Use(limiter.New(limiter.Config{
			Max:        s.config.RateLimitPerMinute,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return isHealthRoute(c.Path())
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return problemResponse(c, fiber.StatusTooManyRequests,
					"rate_limit_exceeded", "Too Many Requests",
					"Rate limit exceeded. Please try again later.")
			},
		}))
	}

	// Request log
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if isHealthRoute(c.Path()) {
			return err
		}

		ev := s.logger.Info()
		if err != nil {
			ev = s.logger.Warn().Err(err)
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Str("request_id", requestid.FromContext(c.UserContext())).
			Dur("duration", time.Since(start)).
			Msg("request")
		return err
	})
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	s.app.Get("/healthz", health.LivenessHandler())
	s.app.Get("/readyz", s.checker.ReadinessHandler())

	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	s.app.Post("/webhook/"+s.config.WebhookPlatform, s.handleWebhook)
	s.app.Post("/callback/crater", s.handleCraterCallback)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":3000"
	}

	s.logger.Info().Str("addr", addr).Msg("http server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("http server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
