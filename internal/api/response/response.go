// Package response writes JSON API responses.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// MsgInternalError is the only detail ever returned for unexpected failures.
const MsgInternalError = "An unexpected error occurred"

// ErrorBody is the body of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// RespondError writes {"error": message} with statusCode.
func RespondError(w http.ResponseWriter, statusCode int, message string) {
	RespondJSON(w, statusCode, ErrorBody{Error: message})
}

// RespondBadRequest writes a 400 Bad Request error response.
func RespondBadRequest(w http.ResponseWriter, message string) {
	RespondError(w, http.StatusBadRequest, message)
}

// RespondUnauthorized writes a 401 Unauthorized error response.
func RespondUnauthorized(w http.ResponseWriter, message string) {
	RespondError(w, http.StatusUnauthorized, message)
}

// RespondRequestEntityTooLarge writes a 413 error response.
func RespondRequestEntityTooLarge(w http.ResponseWriter) {
	RespondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
}

// RespondInternalServerError writes a 500 response with the generic message.
func RespondInternalServerError(w http.ResponseWriter) {
	RespondError(w, http.StatusInternalServerError, MsgInternalError)
}

// RespondJSON writes data as JSON with statusCode.
func RespondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
