// Package api serves computed calendars over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/zapponejosh/panchaanga-api/internal/metrics"
)

// Config holds server configuration.
type Config struct {
	Port     int
	Log      zerolog.Logger
	Calendar Calendar
	// Health is optional; without it /health always reports healthy.
	Health  HealthChecker
	Metrics *metrics.Metrics
	DevMode bool
	// RequestTimeout bounds one request. Year builds can take several
	// seconds, so keep it generous.
	RequestTimeout time.Duration
}

// Server is the HTTP server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	handlers *Handlers
	metrics  *metrics.Metrics
	log      zerolog.Logger
	port     int
}

// New creates a server with all routes registered.
func New(cfg Config) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	s := &Server{
		router:   chi.NewRouter(),
		handlers: NewHandlers(cfg.Calendar, cfg.Health, cfg.Log),
		metrics:  cfg.Metrics,
		log:      cfg.Log.With().Str("component", "server").Logger(),
		port:     cfg.Port,
	}

	s.setupMiddleware(cfg.DevMode, cfg.RequestTimeout)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool, timeout time.Duration) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(requestIDMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(timeout))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// Routes:
//
//	GET /health
//	GET /metrics
//	GET /api/v1/cities
//	GET /api/v1/calendars
//	GET /api/v1/panchaanga/{city}/{year}
//	GET /api/v1/panchaanga/{city}/date/{date}
//	GET /api/v1/festivals/{city}/{year}            ?script=
//	GET /api/v1/festivals/{city}/{year}/ics        ?script=&id=a,b
//	GET /api/v1/festivals/{city}/{year}/{id}
func (s *Server) setupRoutes() {
	h := s.handlers
	s.router.Get("/health", h.HealthCheck)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/cities", h.ListCities)
		r.Get("/calendars", h.ListCalendars)

		r.Route("/panchaanga/{city}", func(r chi.Router) {
			r.Get("/{year}", h.GetYear)
			r.Get("/date/{date}", h.GetDay)
		})

		r.Route("/festivals/{city}/{year}", func(r chi.Router) {
			r.Get("/", h.ListFestivals)
			r.Get("/ics", h.GetFestivalFeed)
			r.Get("/{id}", h.GetFestivalDates)
		})
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
