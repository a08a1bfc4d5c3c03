package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// WriteJSON encodes v as the response body with the given status code.
// This is a shared helper function used across handlers for consistent
// response formatting.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
	}
}

// DecodeJSON decodes the request body into v and writes a 400 when the
// body is malformed. Returns true on success.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Printf("API: Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}
