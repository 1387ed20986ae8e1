// Package server exposes the holdings engine as a JSON API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/etnz/holdings"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Config holds server configuration
type Config struct {
	Addr   string
	Engine *holdings.Engine
	Log    zerolog.Logger
	// AllowedOrigins defaults to any origin.
	AllowedOrigins []string
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	engine *holdings.Engine
	log    zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		engine: cfg.Engine,
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.AllowedOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	// refreshes call remote providers.
	s.router.Use(middleware.Timeout(90 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/positions", func(r chi.Router) {
			r.Get("/", s.handleListPositions)
			r.Post("/", s.handleCreatePosition)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPosition)
				r.Get("/history", s.handleHistory)
				r.Put("/price", s.handleSetPrice)
				r.Post("/price/refresh", s.handleRefreshPrice)
				r.Route("/events", func(r chi.Router) {
					r.Get("/", s.handleListEvents)
					r.Post("/", s.handleAddEvent)
					r.Patch("/{eventID}", s.handleEditEvent)
					r.Delete("/{eventID}", s.handleRemoveEvent)
				})
			})
		})
		r.Get("/networth", s.handleNetWorth)
		r.Get("/convert", s.handleConvert)
		r.Get("/rates", s.handleRates)
		r.Post("/rates/refresh", s.handleRefreshRates)
		r.Post("/prices/refresh", s.handleRefreshPrices)
	})
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
