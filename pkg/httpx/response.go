package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// WriteJSON writes a JSON response with the given status code. Responses are
// marked no-store since most of them carry tokens or security decisions.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	writeJSON(w, code, v)
}

// WriteJSONCached writes a JSON response with an explicit Cache-Control value.
func WriteJSONCached(w http.ResponseWriter, code int, v any, cacheControl string) {
	w.Header().Set("Cache-Control", cacheControl)
	writeJSON(w, code, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the server's error body: error, error_description and
// an RFC 3339 timestamp.
func WriteError(w http.ResponseWriter, status int, code, description string) {
	WriteJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// ParseSpaceDelimitedFields splits a space-delimited list such as a scope
// parameter. Returns nil for blank input.
func ParseSpaceDelimitedFields(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// IsFormContentType reports whether the request body is form-encoded.
func IsFormContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.EqualFold(strings.TrimSpace(ct), "application/x-www-form-urlencoded")
}
