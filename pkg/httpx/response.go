package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/HatiCode/glucoguard/pkg/errs"
)

// ErrorResponse is the body of every failed request. Kind and Field are
// filled from the error taxonomy when the failure carries one.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}

// StatusFor maps an error kind to its HTTP status: rejected input is 422,
// a failed classifier call 502 and an unavailable store 503. Artifact
// mismatches and unclassified errors are server faults.
func StatusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindUnknownCategory, errs.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case errs.KindInference:
		return http.StatusBadGateway
	case errs.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteFailure reports err with the status its kind maps to.
func WriteFailure(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	resp := ErrorResponse{
		Error: err.Error(),
		Kind:  string(kind),
		Field: errs.FieldOf(err),
	}
	if werr := WriteJSON(w, StatusFor(kind), resp); werr != nil {
		slog.Error("failed to write failure response", "error", werr, "kind", kind, "original_error", err)
	}
}

// WriteMessage reports a request error that sits outside the taxonomy,
// such as a malformed query parameter.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	if err := WriteJSON(w, status, ErrorResponse{Error: message}); err != nil {
		slog.Error("failed to write error message", "error", err, "message", message)
	}
}

// HealthHandlerWithCheck answers 200 "OK" while check passes. A failing
// check is reported as a storage failure, so health checks see 503.
func HealthHandlerWithCheck(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			WriteFailure(w, errs.Storage("health", err))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	}
}
