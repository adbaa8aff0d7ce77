package handlers

import (
	"encoding/json"
	"net/http"

	"procurement/internal/apperr"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// retryAfterSeconds is sent with 503 responses.
const retryAfterSeconds = "2"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidState, apperr.Duplicate:
		return http.StatusConflict
	case apperr.WindowClosed, apperr.OutOfRange:
		return http.StatusUnprocessableEntity
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.PreconditionFailed:
		return http.StatusPreconditionFailed
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the error envelope. Internal errors are logged and masked.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	message := apperr.ReasonOf(err)
	reqID := middleware.GetReqID(r.Context())

	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", reqID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		kind = apperr.Internal
		message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, status, errorEnvelope{
		RequestID: reqID,
		Error:     errorBody{Code: string(kind), Message: message},
	})
}

// writeStatus is writeError for failures detected in middleware.
func writeStatus(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{
		RequestID: middleware.GetReqID(r.Context()),
		Error:     errorBody{Code: code, Message: message},
	})
}
