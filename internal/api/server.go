// Package api provides the HTTP API server for DropMyBeat.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/musudik/dropmybeat-api/internal/api/handlers"
	"github.com/musudik/dropmybeat-api/internal/api/health"
	"github.com/musudik/dropmybeat-api/internal/api/middleware"
	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/realtime"
	"github.com/musudik/dropmybeat-api/internal/requests"
	"github.com/musudik/dropmybeat-api/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Dependencies are the services the API server routes to.
type Dependencies struct {
	Requests *requests.Service
	Auth     *auth.Service
	Realtime *realtime.Service
	// Database is pinged by the health check.
	Database health.Pinger
	// Redis is optional; when set it is reported as a non-critical health component.
	Redis health.Pinger
}

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	deps          Dependencies
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}

	s.healthChecker = health.NewChecker(deps.Database, Version)
	if deps.Redis != nil {
		s.healthChecker.AddComponent("redis", deps.Redis, false)
	}

	s.setupRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMiddleware := middleware.NewAuthMiddleware(s.deps.Auth, s.deps.Requests, s.logger)
	authHandler := handlers.NewAuthHandler(s.deps.Requests, s.logger)
	peopleHandler := handlers.NewPeopleHandler(s.deps.Requests, s.logger)
	eventHandler := handlers.NewEventHandler(s.deps.Requests, s.logger)
	requestHandler := handlers.NewRequestHandler(s.deps.Requests, s.logger)
	streamHandler := handlers.NewStreamHandler(s.deps.Requests, s.deps.Realtime, s.logger)
	docsHandler := handlers.NewDocsHandler(s.logger)

	// WebSocket streams outlive the request timeout below.
	r.With(authMiddleware.OptionalAuth).Get("/v1/events/{eventID}/ws", streamHandler.Stream)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Get("/health", s.healthChecker.Handler())
		r.Get("/api/docs", docsHandler.ServeSwaggerUI)
		r.Get("/api/docs/openapi.yaml", docsHandler.ServeOpenAPISpec)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.Route("/v1", func(r chi.Router) {
			// Anonymous callers reach the service, which decides per operation.
			r.Use(authMiddleware.OptionalAuth)

			r.With(authMiddleware.Authenticate).Get("/me", authHandler.Me)

			r.Route("/people", func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)
				r.Get("/", peopleHandler.List)
				r.Get("/{personID}", peopleHandler.Get)
				r.Put("/{personID}/role", peopleHandler.SetRole)
				r.Post("/{personID}/deactivate", peopleHandler.Deactivate)
			})

			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.List)
				r.Post("/", eventHandler.Create)

				r.Route("/{eventID}", func(r chi.Router) {
					r.Get("/", eventHandler.Get)
					r.Patch("/", eventHandler.Update)
					r.Delete("/", eventHandler.Delete)

					r.Post("/join", eventHandler.Join)
					r.Post("/leave", eventHandler.Leave)
					r.Post("/members/{userID}/approve", eventHandler.ApproveMember)
					r.Delete("/members/{userID}", eventHandler.RemoveMember)

					r.Get("/guests", eventHandler.ListGuests)
					r.Post("/guests", eventHandler.JoinAsGuest)
					r.Post("/guests/{participantID}/approve", eventHandler.ApproveGuest)

					r.Get("/queue", requestHandler.Queue)
					r.Get("/review", requestHandler.ReviewQueue)
					r.Get("/timebombs", requestHandler.TimeBombs)
					r.Get("/stats", requestHandler.Stats)

					r.Route("/requests", func(r chi.Router) {
						r.Get("/", requestHandler.List)
						r.Post("/", requestHandler.Create)
						r.Route("/{requestID}", func(r chi.Router) {
							r.Get("/", requestHandler.Get)
							r.Patch("/", requestHandler.Update)
							r.Delete("/", requestHandler.Delete)
							r.Post("/like", requestHandler.ToggleLike)
							r.Post("/approve", requestHandler.Approve)
							r.Post("/reject", requestHandler.Reject)
							r.Post("/play", requestHandler.Play)
							r.Post("/skip", requestHandler.Skip)
							r.Put("/priority", requestHandler.SetPriority)
						})
					})
				})
			})
		})
	})

	s.router = r
}

// Start serves HTTP until the server is shut down. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr, "version", Version)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// HTTPServer returns the underlying server for the shutdown coordinator.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
