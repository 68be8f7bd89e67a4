package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finboard/internal/core"
	"finboard/internal/importer"
	"finboard/internal/log"
	"finboard/internal/query"
	"finboard/internal/services"
	"finboard/internal/storage"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, core.ErrUnknownSource):
		return http.StatusBadRequest, "unknown_source"
	case errors.Is(err, services.ErrNoProviders), errors.Is(err, services.ErrSheetsNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	case core.IsValidation(err),
		errors.Is(err, core.ErrInvalidMonthKey),
		errors.Is(err, query.ErrInvalidWindow),
		errors.Is(err, storage.ErrInvalidKey),
		errors.Is(err, importer.ErrNoHeader):
		return http.StatusUnprocessableEntity, "invalid"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError logs server-side failures and renders a JSON error. Internal
// error details are not exposed to clients.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, nil)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{
		Error:     msg,
		Code:      code,
		RequestID: w.Header().Get(log.RequestIDHeader),
	})
}
