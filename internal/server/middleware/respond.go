package middleware

import (
	"encoding/json"
	"net/http"
)

// reject writes a JSON error body. Handlers have their own writer; this one
// serves requests that never reach them.
func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
