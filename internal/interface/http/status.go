package http

import (
	"net/http"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "casino-hub",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":      "/health",
			"ready":       "/ready",
			"metrics":     "/metrics",
			"player":      "GET /api/players/{id}",
			"profile":     "POST /api/players",
			"bonus":       "POST /api/bonuses",
			"leaderboard": "GET /api/leaderboards/global",
		},
	})
}

// handleHealth reports every check. Any failure answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeRawJSON(w, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeRawJSON(w, code, status)
}

// handleReady answers 503 while a critical dependency (the database) is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeRawJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeRawJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeRawJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics exposes counters as JSON: server uptime plus one section per
// registered source (webhook router, connection pool, Telegram breaker).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]any{
		"uptime_seconds": int64(s.Uptime().Seconds()),
		"running":        s.IsRunning(),
	}
	for _, src := range s.deps.Metrics {
		if src.Snapshot != nil {
			metrics[src.Name] = src.Snapshot()
		}
	}
	writeRawJSON(w, http.StatusOK, metrics)
}
