package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/metrics"
	"github.com/opensource-finance/fraudshield/internal/realtime"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. hub may be nil, which disables /ws.
func NewServer(cfg domain.ServerConfig, deps Dependencies, hub *realtime.Hub) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)    // CORS for browser clients
	router.Use(RecoverMiddleware) // Recover from panics
	router.Use(TracingMiddleware) // OpenTelemetry tracing
	router.Use(LoggingMiddleware) // Request logging
	router.Use(MetricsMiddleware) // Prometheus request metrics
	router.Use(middleware.RealIP) // Extract real IP

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", metrics.Handler())
	if hub != nil {
		router.Get("/ws", hub.HandleWebSocket)
	}

	// API routes (session optional)
	router.Group(func(r chi.Router) {
		r.Use(SessionMiddleware)
		r.Use(middleware.Compress(5))

		// Feed views
		r.Get("/feed/{view}", handler.GetFeed)
		r.Get("/stats", handler.GetStats)
		r.Get("/views", handler.ListViews)
		r.Post("/views/{view}/pause", handler.PauseView)
		r.Post("/views/{view}/resume", handler.ResumeView)

		// Scoring
		r.Post("/transactions", handler.SubmitTransaction)
		r.Post("/analyze", handler.Analyze)

		// History
		r.Get("/assessments", handler.ListAssessments)
		r.Get("/assessments/{txId}", handler.GetAssessment)
		r.Get("/notifications", handler.ListNotifications)
		r.Post("/notifications/{id}/read", handler.MarkNotificationRead)

		// Authentication
		r.Post("/auth/register", handler.Register)
		r.Post("/auth/login", handler.Login)
		r.Post("/auth/logout", handler.Logout)
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
