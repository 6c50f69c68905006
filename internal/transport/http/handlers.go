package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/internal/pipeline"
	"sdmxcli/internal/resolver"
)

var validate = validator.New()

// handleData runs one query through the pipeline.
// POST /api/v1/data
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.renderError(w, r, apperrors.NewValidationError("invalid request body", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.renderError(w, r, apperrors.NewValidationError("request validation failed", err))
		return
	}

	result, err := s.pipeline.Run(r.Context(), req)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}

// handleSync triggers a metadata sync.
// POST /api/v1/sync?force=true
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	snap, err := s.syncer.Run(r.Context(), force)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	render.JSON(w, r, snap.Watermark)
}

// handleTier reports the cached governance tier of one indicator.
// GET /api/v1/indicators/{code}/tier
func (s *Server) handleTier(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	snap, err := s.store.Load()
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	render.JSON(w, r, resolver.New(snap, s.cfg.API.DefaultAgency).Tier(code))
}

// handleHealth reports liveness plus cache freshness.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Time: time.Now().UTC()}
	if snap, err := s.store.Load(); err == nil {
		resp.CacheAge = time.Since(snap.Watermark.SyncedAt).Truncate(time.Second).String()
		resp.CacheTier = snap.Watermark.Parser
	}
	render.JSON(w, r, resp)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apperrors.ToAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	if renderErr := render.Render(w, r, apiErr); renderErr != nil {
		http.Error(w, apiErr.Message, apiErr.StatusCode)
	}
}
