package http

import (
	"encoding/json"
	"net/http"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
)

// WriteJSONError writes a JSON error response with the given message and status code.
// It sets the Content-Type header to application/json and automatically formats
// the response as {"error": "message"}.
func WriteJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON writes a JSON response with the given status code and data.
// It sets the Content-Type header to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps domain error types onto HTTP status codes:
// validation and ingestion problems are the caller's fault, a missing
// campaign is 404 and an illegal lifecycle action is 409.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidationError(err), domain.IsIngestionError(err):
		WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case domain.IsNotFound(err):
		WriteJSONError(w, "campaign not found", http.StatusNotFound)
	case domain.IsInvalidState(err):
		WriteJSONError(w, err.Error(), http.StatusConflict)
	default:
		WriteJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
