package thumbnail

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error body of the v3 and upload endpoints.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LegacyErrorResponse is the error body of the v2 endpoints.
type LegacyErrorResponse struct {
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// writeJSON encodes v as JSON and writes it to w with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// writeError writes a v3 style error body.
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, ErrorResponse{
		Status:  status,
		Error:   http.StatusText(status),
		Message: message,
	})
}

// writeLegacyError writes a v2 style error body.
func writeLegacyError(w http.ResponseWriter, status int, message string, details ...string) {
	if details == nil {
		details = []string{}
	}
	_ = writeJSON(w, status, LegacyErrorResponse{
		Message: message,
		Details: details,
	})
}

// writeInternalError writes a generic v3 style 500 response.
func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "We encountered an internal error. Please try again.")
}
