// Package server implements the Signal API Service: the authenticated,
// tier-aware HTTP surface that fronts the alert ring and the billing/API-key
// lifecycle (spec §4.8, §6).
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

	"github.com/aristath/solana-signal-daas/internal/alertengine"
	"github.com/aristath/solana-signal-daas/internal/apiauth"
	"github.com/aristath/solana-signal-daas/internal/billing"
	"github.com/aristath/solana-signal-daas/internal/live"
	"github.com/aristath/solana-signal-daas/internal/ratelimiter"
	"github.com/aristath/solana-signal-daas/internal/scheduler"
	"github.com/aristath/solana-signal-daas/internal/watchlist"
)

// Config holds the Server's listener and feature-flag settings (spec §6, §9).
type Config struct {
	Host                string
	Port                int
	DevMode             bool
	DryRun              bool
	DaasMode            bool
	IncludePaywallHint  bool
	FakeCheckoutEnabled bool
	HealthStaleSeconds  int
}

// Server wraps a chi router and the http.Server serving it.
type Server struct {
	cfg    Config
	router chi.Router
	server *http.Server
	log    zerolog.Logger

	handlers *Handlers
}

// New wires the router, middleware stack, and routes. sched and liveHandler may
// be nil: sched in tests that only exercise handlers unrelated to scheduler
// staleness, liveHandler when LIVE_STREAM_ENABLED is off.
func New(
	cfg Config,
	auth *apiauth.Auth,
	limiter *ratelimiter.Limiter,
	billingSvc *billing.Service,
	alerts *alertengine.AlertRing,
	wl *watchlist.Watchlist,
	sched *scheduler.Scheduler,
	liveHandler *live.Handler,
	log zerolog.Logger,
) *Server {
	log = log.With().Str("component", "server").Logger()

	h := &Handlers{
		auth:      auth,
		limiter:   limiter,
		billing:   billingSvc,
		alerts:    alerts,
		watchlist: wl,
		sched:     sched,
		live:      liveHandler,
		cfg:       cfg,
		log:       log,
	}

	s := &Server{cfg: cfg, log: log, handlers: h}
	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr(cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func addr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Api-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "X-RateLimit-Limit"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handlers.HandleHealthz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(s.handlers.requireAPIKey)
			r.Get("/signals", s.handlers.HandleSignals)
			r.Get("/wallet/{address}/score", s.handlers.HandleWalletScore)
		})

		// The stream route deliberately skips the request-scoped Timeout
		// middleware: it's a long-lived websocket upgrade, not a bounded call.
		r.Group(func(r chi.Router) {
			r.Use(s.handlers.requireAPIKey)
			r.Get("/signals/stream", s.handlers.HandleSignalsStream)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Post("/billing/webhook", s.handlers.HandleBillingWebhook)
			r.Post("/billing/fake-checkout", s.handlers.HandleFakeCheckout)
		})
	})
}

// loggingMiddleware logs method/path/status/bytes/duration for every request,
// mirroring the teacher's wrap-response-writer pattern.
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

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("signal api listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
