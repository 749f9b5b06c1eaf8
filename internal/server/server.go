// Package server exposes the operator HTTP API: queue decisions, trade
// history, risk status, and exchange passthroughs for the dashboard.
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

	"github.com/bozweather/trader/internal/database"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/internal/modules/approval"
	"github.com/bozweather/trader/internal/modules/prediction"
	"github.com/bozweather/trader/internal/modules/risk"
	"github.com/bozweather/trader/internal/modules/trading"
	"github.com/bozweather/trader/internal/modules/users"
)

// Config holds server configuration and dependencies.
type Config struct {
	Port    int
	Log     zerolog.Logger
	DB      *database.DB
	DevMode bool

	Trades      *trading.TradeRepository
	Approvals   *approval.Service
	Risk        *risk.Service
	Predictions *prediction.Repository
	Users       *users.Service
	Metrics     *metrics.Metrics
	Defaults    risk.Limits
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	db     *database.DB

	trades      *trading.TradeRepository
	approvals   *approval.Service
	risk        *risk.Service
	predictions *prediction.Repository
	users       *users.Service
	metrics     *metrics.Metrics
	defaults    risk.Limits
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		db:          cfg.DB,
		trades:      cfg.Trades,
		approvals:   cfg.Approvals,
		risk:        cfg.Risk,
		predictions: cfg.Predictions,
		users:       cfg.Users,
		metrics:     cfg.Metrics,
		defaults:    cfg.Defaults,
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

// setupMiddleware configures middleware
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

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	tradingHandlers := trading.NewTradingHandlers(s.trades, s.log)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/trades", tradingHandlers.HandleGetTrades)
		r.Get("/trades/open", tradingHandlers.HandleGetOpenTrades)

		r.Route("/pending", func(r chi.Router) {
			r.Get("/", s.handleListPending)
			r.Post("/{id}/approve", s.handleApprove)
			r.Post("/{id}/reject", s.handleReject)
		})

		r.Get("/predictions", s.handleGetPrediction)

		r.Route("/risk", func(r chi.Router) {
			r.Get("/{userID}", s.handleRiskStatus)
			r.Post("/{userID}/reset", s.handleRiskReset)
		})

		r.Get("/balance", s.handleGetBalance)
		r.Get("/positions", s.handleGetPositions)

		r.Get("/system/status", s.handleSystemStatus)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
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
