// Package httputil centralizes JSON response writing so every handler emits
// the same envelopes.
package httputil

import (
	"encoding/json"
	"net/http"

	httpErrors "dealerdesk/pkg/http-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the uniform JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError translates a domain error into the uniform error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code, status := httpErrors.FromError(err)
	WriteJSON(w, status, ErrorResponse{
		Error:   string(code),
		Message: err.Error(),
	})
}
