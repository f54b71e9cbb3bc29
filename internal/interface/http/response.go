package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/interface/http/handlers"
	"github.com/casino-hub/casino-hub/internal/interface/telegram/presenter"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// APIVersion is reported in every envelope.
const APIVersion = "v1"

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`

	// RetryAfterSeconds is set for cooldown and overload errors.
	RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Cached    bool      `json:"cached,omitempty"`
}

func newMeta() *ResponseMeta {
	return &ResponseMeta{Timestamp: time.Now().UTC(), Version: APIVersion}
}

// writeJSON writes a successful JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSONWithMeta(w, r, status, data, newMeta())
}

// writeJSONWithMeta writes a JSON response with custom metadata.
func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	writeEnvelope(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: handlers.RequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeAPIError(w, r, status, &APIError{Code: code, Message: message})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	writeEnvelope(w, status, JSONResponse{
		Success:   false,
		Error:     apiErr,
		Meta:      newMeta(),
		RequestID: handlers.RequestID(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeRawJSON writes a payload without the envelope. Used by the probes
// whose consumers expect a flat body.
func writeRawJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps the shared error taxonomy onto HTTP statuses.
// Unexpected errors are logged; their text never reaches the client.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var cooldown *player.CooldownError
	switch {
	case errors.As(err, &cooldown):
		retry := cooldown.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
		writeAPIError(w, r, http.StatusConflict, &APIError{
			Code:              "cooldown",
			Message:           presenter.BonusCooldown(cooldown.Kind, cooldown.Remaining),
			RetryAfterSeconds: retry,
		})

	case shared.IsValidation(err):
		writeAPIError(w, r, http.StatusBadRequest, &APIError{
			Code:    "validation_error",
			Message: "Request validation failed",
			Details: publicMessage(err),
		})

	case errors.Is(err, shared.ErrBadRequest):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", publicMessage(err))

	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", publicMessage(err))

	case errors.Is(err, shared.ErrForbidden):
		writeJSONError(w, r, http.StatusForbidden, "forbidden", publicMessage(err))

	case shared.IsConflict(err):
		writeJSONError(w, r, http.StatusConflict, "conflict", publicMessage(err))

	case shared.IsTransient(err):
		logger.FromContext(r.Context(), s.logger).Warn("api overloaded", logger.Err(err))
		w.Header().Set("Retry-After", "1")
		writeAPIError(w, r, http.StatusServiceUnavailable, &APIError{
			Code:              "service_unavailable",
			Message:           "Service is busy, please retry",
			RetryAfterSeconds: 1,
		})

	default:
		logger.FromContext(r.Context(), s.logger).Error("api request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// publicMessage returns the human-readable part of a domain error.
func publicMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
