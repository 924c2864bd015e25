package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-edu/kestrel/internal/aggregate"
	"github.com/opensource-edu/kestrel/internal/alerts"
	"github.com/opensource-edu/kestrel/internal/domain"
	"github.com/opensource-edu/kestrel/internal/rules"
	"github.com/opensource-edu/kestrel/internal/stats"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, patternEngine *rules.PatternEngine, processor *alerts.Processor, statsEngine *stats.Engine, aggregator *aggregate.Aggregator, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, patternEngine, processor, statsEngine, aggregator, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no class required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (class required)
	router.Route("/", func(r chi.Router) {
		r.Use(ClassMiddleware)

		// Profile derivation and flagging
		r.Post("/evaluate", handler.Evaluate)
		r.Post("/stats", handler.Stats)

		// Record ingestion
		r.Post("/records/grades", handler.IngestGrade)
		r.Post("/records/behavior", handler.IngestBehaviorEvent)

		// Student retrieval
		r.Get("/students/{id}", handler.GetStudentRecords)
		r.Get("/students/{id}/profile", handler.GetStudentProfile)

		// Flag retrieval
		r.Get("/flags/{id}", handler.GetFlag)

		// Class-level aggregates
		r.Get("/aggregates/teachers", handler.TeacherAggregates)
		r.Get("/aggregates/pairs", handler.TeacherSubjectPairs)
		r.Post("/aggregates/insights", handler.PeriodInsights)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Intervention pattern management
		r.Get("/patterns", handler.ListPatterns)
		r.Get("/patterns/{id}", handler.GetPattern)
		r.Post("/patterns", handler.CreatePattern)
		r.Put("/patterns/{id}", handler.UpdatePattern)
		r.Delete("/patterns/{id}", handler.DeletePattern)
		r.Post("/patterns/reload", handler.ReloadPatterns)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
