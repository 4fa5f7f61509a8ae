package httpapi

import (
	"net/http"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
)

type healthComponent struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string                     `json:"status"`
	Checks map[string]healthComponent `json:"checks"`
}

// handleSystemHealth reports connectivity to the metadata store, vector
// store, and queue backend, per the platform's external interfaces.
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request, _ authresolve.AuthContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	checks := map[string]healthComponent{}
	overallStatus := "ok"

	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = healthComponent{Status: "down", Error: err.Error()}
		overallStatus = "degraded"
	} else {
		checks["store"] = healthComponent{Status: "ok"}
	}

	if err := s.vectors.Ping(r.Context()); err != nil {
		checks["vector"] = healthComponent{Status: "down", Error: err.Error()}
		overallStatus = "degraded"
	} else {
		checks["vector"] = healthComponent{Status: "ok"}
	}

	if err := s.queue.Ping(r.Context()); err != nil {
		checks["queue"] = healthComponent{Status: "down", Error: err.Error()}
		overallStatus = "degraded"
	} else {
		checks["queue"] = healthComponent{Status: "ok"}
	}

	status := http.StatusOK
	if overallStatus != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Status: overallStatus, Checks: checks})
}
