package api

import (
	"encoding/json"
	"net/http"
)

// JSON writes v as the response body. Payload shapes are part of the demo
// client contract, so bodies are written as-is rather than wrapped in an
// envelope.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func JSONErrorMessage(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
