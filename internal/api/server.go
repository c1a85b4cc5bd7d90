// Package api exposes statement extraction over HTTP.
package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/time/rate"

	"github.com/insightdelivered/statement-extractor/internal/batch"
	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

const (
	defaultMaxFiles  = 20
	defaultMaxUpload = 32 << 20
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	Runner   *batch.Runner
	Registry *profile.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Version  string

	MaxUploadBytes int64
	MaxFiles       int
	// RateLimit is the number of extract requests per second; zero disables
	// limiting.
	RateLimit float64
	RateBurst int
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) maxFiles() int {
	if s.MaxFiles < 1 {
		return defaultMaxFiles
	}
	return s.MaxFiles
}

func (s *Server) maxUpload() int64 {
	if s.MaxUploadBytes < 1 {
		return defaultMaxUpload
	}
	return s.MaxUploadBytes
}

// App builds the fiber application with all routes registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "statement-extractor",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(s.logger()),
		BodyLimit:             int(s.maxUpload())*s.maxFiles() + 1<<20,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	s.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (s *Server) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/profiles", s.handleProfiles)
	api.Get("/profiles/:name", s.handleProfile)
	api.Post("/extract", limit(s.RateLimit, s.RateBurst), s.handleExtract)

	if s.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.Metrics.Handler()))
	}
}

// limit rejects requests beyond the configured rate with 429.
func limit(perSecond float64, burst int) fiber.Handler {
	if perSecond <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *fiber.Ctx) error {
		if !lim.Allow() {
			return NewAppError(fiber.StatusTooManyRequests, "too many requests, retry later", nil)
		}
		return c.Next()
	}
}
