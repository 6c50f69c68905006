package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sdmxcli/internal/config"
	"sdmxcli/internal/metadata"
	"sdmxcli/internal/pipeline"
)

// Server exposes the query pipeline and the sync trigger over HTTP.
type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Client
	syncer   *metadata.Syncer
	store    *metadata.Store
	logger   *slog.Logger
	srv      *http.Server
}

// NewServer creates the HTTP server.
func NewServer(cfg *config.Config, pl *pipeline.Client, syncer *metadata.Syncer, store *metadata.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		pipeline: pl,
		syncer:   syncer,
		store:    store,
		logger:   logger.With(slog.String("component", "http_server")),
	}
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(TraceIDMiddleware)
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/data", s.handleData)
		r.Post("/sync", s.handleSync)
		r.Get("/indicators/{code}/tier", s.handleTier)
	})

	return r
}

// Start serves until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// healthResponse is the /healthz body.
type healthResponse struct {
	Status    string    `json:"status"`
	CacheAge  string    `json:"cache_age,omitempty"`
	CacheTier string    `json:"cache_parser,omitempty"`
	Time      time.Time `json:"time"`
}
