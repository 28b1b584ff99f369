// Package httpx holds the JSON response helpers shared by the decision and
// admin handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// APIError is the uniform error body of every endpoint.
type APIError struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, APIError{Error: msg})
}
