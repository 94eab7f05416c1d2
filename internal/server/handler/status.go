package handler

import (
	"net/http"
	"time"
)

// PendingCounter reports commits held only in the local tier, and those
// that could not be replayed.
type PendingCounter interface {
	PendingCount() int
	DeadLetterCount() int
}

// StatusHandler serves the engine's runtime status.
type StatusHandler struct {
	mode      string
	storage   string
	startedAt time.Time
	pending   PendingCounter
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, storage string, startedAt time.Time, pending PendingCounter) *StatusHandler {
	return &StatusHandler{mode: mode, storage: storage, startedAt: startedAt, pending: pending}
}

// GetStatus responds with the run mode, storage driver, uptime and the number
// of local-only commits awaiting resync or dead-lettered.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":                  h.mode,
		"storage":               h.storage,
		"uptime_seconds":        int64(time.Since(h.startedAt).Seconds()),
		"pending_local_commits": h.pending.PendingCount(),
		"dead_lettered_commits": h.pending.DeadLetterCount(),
	})
}
