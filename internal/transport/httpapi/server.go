// Package httpapi exposes the recommendation pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leve-labs/trailmatch/internal/domain"
	"github.com/leve-labs/trailmatch/internal/output"
	"github.com/leve-labs/trailmatch/internal/pipeline"
)

// Runner executes one recommendation request; implemented by
// pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (output.Envelope, error)
}

// HealthChecker reports dependency readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server routes HTTP requests into the pipeline.
type Server struct {
	runner Runner
	health HealthChecker
	logger *zap.Logger
}

// NewServer creates an HTTP API server. health may be nil.
func NewServer(runner Runner, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{runner: runner, health: health, logger: logger}
}

// Routes registers the API endpoints on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/recommendations", s.handleRecommend)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// recommendRequest is the JSON body of POST /api/recommendations.
// Field names follow the product contract.
type recommendRequest struct {
	UserQuestion string         `json:"user_question"`
	UserID       string         `json:"user_id,omitempty"`
	ExtraContext string         `json:"contexto_extra,omitempty"`
	MaxResults   int            `json:"max_results,omitempty"`
	Snapshot     map[string]any `json:"profile_snapshot,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	preq := pipeline.Request{
		UserQuestion: req.UserQuestion,
		ExtraContext: req.ExtraContext,
		MaxResults:   req.MaxResults,
		Snapshot:     req.Snapshot,
	}
	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "user_id must be a UUID")
			return
		}
		preq.UserID = &uid
	}

	env, err := s.runner.Run(r.Context(), preq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"reason": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDomainError maps pipeline sentinel errors to HTTP status codes.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrVectorDimMismatch):
		writeError(w, http.StatusBadRequest, "vector_dim_mismatch", err.Error())
	case errors.Is(err, domain.ErrNoValidCandidates):
		writeError(w, http.StatusUnprocessableEntity, "no_valid_candidates", err.Error())
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, "embedding_provider_error", err.Error())
	case errors.Is(err, domain.ErrCatalogUnavailable):
		writeError(w, http.StatusBadGateway, "catalog_unavailable", err.Error())
	default:
		s.logger.Error("recommendation failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
