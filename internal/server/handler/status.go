package handler

import (
	"net/http"
	"time"
)

// StatusInfo describes the running instance.
type StatusInfo struct {
	Mode      string
	Storage   string
	DemoMode  bool
	StartedAt time.Time
}

// StatusHandler serves the backend status for dashboards.
type StatusHandler struct {
	info StatusInfo
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo) *StatusHandler {
	return &StatusHandler{info: info}
}

// GetStatus responds with the run mode, storage backend and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":          h.info.Mode,
		"storage":       h.info.Storage,
		"demoMode":      h.info.DemoMode,
		"startedAt":     h.info.StartedAt.UTC().Format(time.RFC3339),
		"uptimeSeconds": int64(time.Since(h.info.StartedAt).Seconds()),
	})
}
