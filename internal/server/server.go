// Package server provides the HTTP API for the compliance monitor.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/alerts"
	"github.com/wealthsentinel/sentinel/internal/config"
	"github.com/wealthsentinel/sentinel/internal/database"
	"github.com/wealthsentinel/sentinel/internal/dedup"
	"github.com/wealthsentinel/sentinel/internal/doclog"
	"github.com/wealthsentinel/sentinel/internal/engine"
	"github.com/wealthsentinel/sentinel/internal/events"
	"github.com/wealthsentinel/sentinel/internal/marketdata"
	"github.com/wealthsentinel/sentinel/internal/portfolio"
	"github.com/wealthsentinel/sentinel/internal/rules"
	"github.com/wealthsentinel/sentinel/internal/stream"
)

// Config holds server wiring.
type Config struct {
	Log       zerolog.Logger
	Cfg       *config.Config
	Pipeline  *engine.Pipeline
	Join      *stream.Engine
	Alerts    *alerts.Repository
	DocLog    *doclog.Repository
	Rules     *rules.Registry
	Portfolio *portfolio.Provider
	Stats     *marketdata.StatsRegistry
	Dedup     *dedup.Deduplicator
	Events    *events.Manager
	LedgerDB  *database.DB
	Port      int
	DevMode   bool
}

// Server is the HTTP API server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	pipeline  *engine.Pipeline
	join      *stream.Engine
	alerts    *alerts.Repository
	doclog    *doclog.Repository
	rules     *rules.Registry
	portfolio *portfolio.Provider
	stats     *marketdata.StatsRegistry
	dedup     *dedup.Deduplicator
	events    *events.Manager
	ledgerDB  *database.DB
	startedAt time.Time
}

// New creates the server with middleware and routes configured.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Cfg,
		pipeline:  cfg.Pipeline,
		join:      cfg.Join,
		alerts:    cfg.Alerts,
		doclog:    cfg.DocLog,
		rules:     cfg.Rules,
		portfolio: cfg.Portfolio,
		stats:     cfg.Stats,
		dedup:     cfg.Dedup,
		events:    cfg.Events,
		ledgerDB:  cfg.LedgerDB,
		startedAt: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the chi mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/documents", s.handleIngestDocument)
		r.Get("/documents/log", s.handleDocumentLog)

		r.Route("/market", func(r chi.Router) {
			r.Post("/ticks", s.handleIngestTick)
			r.Get("/stats", s.handleMarketStats)
		})

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/snapshot", s.handleGetSnapshot)
			r.Post("/snapshot", s.handleUploadSnapshot)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Get("/{alertID}", s.handleGetAlert)
			r.Post("/{alertID}/acknowledge", s.handleAcknowledgeAlert)
			r.Post("/{alertID}/resolve", s.handleResolveAlert)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/reload", s.handleReloadRules)
		})

		r.Get("/stream/{symbol}", s.handleStreamState)
		r.Get("/system/status", s.handleSystemStatus)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
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
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
