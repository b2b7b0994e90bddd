// ABOUTME: JSON response helpers and domain-to-HTTP error mapping
// ABOUTME: One error envelope shared by agent and dashboard routes

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/netwarden/netwarden/internal/pairing"
	"github.com/netwarden/netwarden/internal/reconcile"
	"github.com/netwarden/netwarden/internal/store"
)

// errorBody is the error envelope for every non-2xx JSON response.
type errorBody struct {
	Message string                `json:"message"`
	Errors  reconcile.FieldErrors `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// writeDomainError maps domain errors onto HTTP statuses. Missing and
// foreign-owned entities produce the same 404, so the API cannot be
// used to probe other users' IDs.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *reconcile.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "validation failed", Errors: verr.Fields})
	case errors.Is(err, pairing.ErrNotBound):
		writeError(w, http.StatusBadRequest, "no agent has connected on this credential")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
