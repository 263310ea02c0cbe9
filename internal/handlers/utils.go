package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"media-converter/internal/engine"
	"media-converter/internal/logging"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, statusCode, ErrorResponse{Error: message})
}

// writeError maps err to a status code and writes it. Oversized bodies get
// 413, classified conversion failures get their kind's status and message,
// anything else is a 500 with a generic message.
func writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(w, "Upload exceeds the size limit", http.StatusRequestEntityTooLarge)
		return
	}

	e := engine.AsError(err)
	writeJSONStatus(w, e.Kind.HTTPStatus(), ErrorResponse{
		Error: e.Message(),
		Kind:  string(e.Kind),
	})
}
