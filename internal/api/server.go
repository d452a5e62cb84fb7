package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/mot-engine/internal/config"
	"github.com/terra-clan/mot-engine/internal/game"
	"github.com/terra-clan/mot-engine/internal/live"
	"github.com/terra-clan/mot-engine/internal/metrics"
	"github.com/terra-clan/mot-engine/internal/models"
	"github.com/terra-clan/mot-engine/internal/services"
	"github.com/terra-clan/mot-engine/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	manager        *game.Manager
	hub            *live.Hub
	health         *services.Registry
	metrics        *metrics.Metrics
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	manager *game.Manager,
	hub *live.Hub,
	health *services.Registry,
	repo storage.Repository,
	m *metrics.Metrics,
) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		config:         cfg,
		manager:        manager,
		hub:            hub,
		health:         health,
		metrics:        m,
		authMiddleware: NewAuthMiddleware(repo),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Handle("/metrics", s.metrics.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Live board stays open past the request timeout
		r.Get("/board/{code}/live", s.handleLiveBoard)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.config.RequestTimeout))

			// Content (public)
			r.Route("/editions", func(r chi.Router) {
				r.Get("/", s.handleListEditions)
				r.Get("/{edition}", s.handleGetEdition)
				r.Get("/{edition}/steps/{step}", s.handleGetEditionStep)
			})

			// Players (public, the path token is the credential)
			r.Post("/join/{code}", s.handleJoin)
			r.Get("/board/{code}", s.handleSessionBoard)
			r.Route("/play/{token}", func(r chi.Router) {
				r.Get("/", s.handleGetPath)
				r.Get("/steps/{step}/choices", s.handleStepChoices)
				r.Post("/steps/{step}", s.handleSubmitStep)
				r.Get("/score", s.handleScore)
				r.Get("/result", s.handleResult)
			})

			// Facilitators (API key)
			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware.Authenticate)

				r.Route("/sessions", func(r chi.Router) {
					r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/", s.handleListSessions)
					r.With(s.authMiddleware.RequirePermission(models.PermSessionsWrite)).Post("/", s.handleCreateSession)

					r.Route("/{code}", func(r chi.Router) {
						r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/", s.handleGetSession)
						r.With(s.authMiddleware.RequirePermission(models.PermSessionsWrite)).Delete("/", s.handleCloseSession)
						r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/stats", s.handleSessionStats)
					})
				})

				r.With(s.authMiddleware.RequirePermission(models.PermLeaderboardRead)).Get("/leaderboard", s.handleGlobalLeaderboard)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog and records their latency
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			s.metrics.ObserveRequest(r.Method, route, ww.Status(), duration)

			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", duration.Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
