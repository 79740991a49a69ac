// Package server espone il servizio via HTTP con fiber: pagina web,
// API JSON, stream SSE degli eventi e metriche Prometheus.
package server

import (
	"context"
	"fmt"

	"github.com/biodoia/smartwatcher/internal/advisor"
	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/biodoia/smartwatcher/internal/pipeline"
	"github.com/biodoia/smartwatcher/internal/stats"
	"github.com/biodoia/smartwatcher/pkg/config"
	"github.com/biodoia/smartwatcher/pkg/middleware"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// Watcher sono le operazioni del servizio usate dagli handler
type Watcher interface {
	Personas() []persona.PersonaConfig
	Check(in pipeline.RunInput) error
	Critique(ctx context.Context, in pipeline.RunInput) (*advisor.Critique, error)
	Run(ctx context.Context, in pipeline.RunInput, subs ...pipeline.Subscriber) (*pipeline.RunResult, error)
}

// Server è il server HTTP
type Server struct {
	config  *config.Config
	app     *fiber.App
	watcher Watcher
	metrics *stats.Metrics
	version string
}

// New crea il server e registra middleware e route. metrics può essere nil.
func New(cfg *config.Config, w Watcher, metrics *stats.Metrics, version string) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "SmartWatcher",
		ServerHeader: "SmartWatcher/" + version,
		ErrorHandler: customErrorHandler,
	})

	s := &Server{
		config:  cfg,
		app:     app,
		watcher: w,
		metrics: metrics,
		version: version,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// App restituisce l'applicazione fiber, usata anche nei test
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler gestisce gli errori che gli handler non hanno già scritto
func customErrorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	kind := "internal_error"
	message := err.Error()

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
		if code == fiber.StatusNotFound {
			kind = "not_found"
		} else if code < 500 {
			kind = "request_error"
		}
	}

	return c.Status(code).JSON(errorBody{
		Error:     kind,
		Message:   message,
		RequestID: middleware.GetRequestID(c),
	})
}

// setupMiddlewares configura i middleware globali
func (s *Server) setupMiddlewares() {
	quiet := []string{"/health", "/metrics"}

	// Recovery per primo, così copre anche gli altri middleware
	s.app.Use(middleware.Recovery())
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.CORS(s.config.Server.AllowOrigins...))
	s.app.Use(middleware.Logging(quiet...))

	if s.metrics != nil {
		s.app.Use(middleware.Metrics(s.metrics, quiet...))
	}
}

// setupRoutes configura le route HTTP
func (s *Server) setupRoutes() {
	s.app.Get("/", s.handleIndex)
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil && s.config.Monitoring.Prometheus.Enabled {
		s.app.Get("/metrics", s.handleMetrics)
	}

	api := s.app.Group("/api")
	api.Get("/personas", s.handlePersonas)
	api.Post("/critique", s.handleCritique)
	api.Post("/runs", s.handleRun)
	api.Post("/runs/stream", s.handleRunStream)
}

// Start avvia il server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	log.Info().
		Str("addr", addr).
		Str("version", s.version).
		Msg("HTTP server starting")

	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown esegue lo shutdown graceful del server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	log.Info().Msg("HTTP server shutdown completed")
	return nil
}
