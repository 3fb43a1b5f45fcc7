package api

import (
	"encoding/json"
	"net/http"

	"github.com/pitwall-ai/pitwall/internal/log"
)

// ErrorResponse is the JSON body sent on request failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code. Encoding
// failures after WriteHeader cannot be reported to the client, so they
// are only logged.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, logger log.Logger, status int, errMsg, details string) {
	writeJSON(w, logger, status, ErrorResponse{Error: errMsg, Details: details})
}
