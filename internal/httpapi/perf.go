package httpapi

import "net/http"

// handlePerfLatency reports the rolling p50/p95 window for turn and
// dashboard stages.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"latency":         s.metrics.SnapshotStages(),
		"active_sessions": s.sessions.ActiveCount(),
		"live_engines":    s.engines.Len(),
	})
}
