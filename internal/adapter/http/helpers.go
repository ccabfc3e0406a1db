package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CodeTutor/internal/domain"
)

const maxRequestBodySize = 64 << 10

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.KindValidation, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, domain.KindValidation, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind domain.Kind, message string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidRepositoryURL, domain.KindValidation,
		domain.KindExportFormatUnsupported, domain.KindTaskNotCompleted:
		return http.StatusBadRequest
	case domain.KindTaskNotFound:
		return http.StatusNotFound
	case domain.KindNoAPIKeyConfigured:
		return http.StatusServiceUnavailable
	case domain.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with the status of its kind. Errors without a
// kind are logged and reported as a generic internal error.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "error", err)
		var de *domain.Error
		if !errors.As(err, &de) {
			writeError(w, status, domain.KindInternal, "internal server error")
			return
		}
	}
	writeError(w, status, kind, domain.MessageOf(err))
}
