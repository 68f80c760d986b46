package api

import (
	"encoding/json"
	"net/http"

	"github.com/example/dispute-engine/internal/security"
)

// writeJSON emits a response body. Dispute payloads carry account and
// card-derived data, so every response is marked non-cacheable.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	if cid := security.CorrelationIDFromContext(r.Context()); cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated is writeJSON for a newly opened dispute, with Location
// pointing at the canonical resource.
func writeCreated(w http.ResponseWriter, r *http.Request, location string, v any) {
	w.Header().Set("Location", location)
	writeJSON(w, r, http.StatusCreated, v)
}
