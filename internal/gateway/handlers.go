package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is returned by health endpoints. The public endpoint only
// populates Status; the authenticated status endpoint populates all fields.
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version,omitempty"`
	Clients int      `json:"clients,omitempty"`
	Active  []string `json:"active,omitempty"`
	Uptime  string   `json:"uptime,omitempty"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
		Active:  s.conversations.Active(),
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorShape{Code: code, Message: message})
}
