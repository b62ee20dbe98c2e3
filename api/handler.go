// Package api exposes the limiter as a JSON admission-check service, for
// deployments where the limiter runs as a sidecar instead of in-process
// middleware.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/floodgate/pkg/floodgate"
)

// Handler handles admission check requests against a single Limiter.
type Handler struct {
	limiter   floodgate.Limiter
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandler creates an API handler around the given limiter.
func NewHandler(limiter floodgate.Limiter, logger zerolog.Logger) *Handler {
	return &Handler{
		limiter:   limiter,
		logger:    logger,
		startTime: time.Now(),
	}
}

// CheckRequest is the body of an admission check.
type CheckRequest struct {
	// Key identifies the client the budget is tracked against (user ID,
	// API key, IP). Required.
	Key string `json:"key"`

	// Cost is the number of tokens this request consumes. Defaults to 1.
	Cost int64 `json:"cost,omitempty"`
}

// CheckResponse is the admission decision.
type CheckResponse struct {
	Allowed      bool  `json:"allowed"`
	Remaining    int64 `json:"remaining"`
	Limit        int64 `json:"limit"`
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CheckRateLimit handles POST /v1/check.
// It answers 200 on admission and 429 on rejection; only malformed requests
// produce an error status.
func (h *Handler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Cost == 0 {
		req.Cost = 1
	}

	decision, err := h.limiter.AllowN(req.Key, req.Cost)
	if err != nil {
		switch {
		case errors.Is(err, floodgate.ErrInvalidKey):
			h.sendError(w, http.StatusBadRequest, "missing_key", "key is required")
		case errors.Is(err, floodgate.ErrInvalidCost):
			h.sendError(w, http.StatusBadRequest, "invalid_cost", "cost must be positive")
		default:
			h.logger.Error().Err(err).Msg("admission check failed")
			h.sendError(w, http.StatusInternalServerError, "internal_error", "admission check failed")
		}
		return
	}

	statusCode := http.StatusOK
	if !decision.Allowed {
		statusCode = http.StatusTooManyRequests
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(CheckResponse{
		Allowed:      decision.Allowed,
		Remaining:    decision.Remaining,
		Limit:        decision.Limit,
		RetryAfterMs: decision.RetryAfter.Milliseconds(),
	})
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Status        string `json:"status"`
	Buckets       int    `json:"buckets"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Status handles GET /v1/status with a small operational snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Status:        "healthy",
		Buckets:       h.limiter.BucketCount(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
