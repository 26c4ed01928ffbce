package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/executor"
)

// StatusSource is the scan loop.
type StatusSource interface {
	Status() executor.Status
}

// StatusHandler serves the engine status.
type StatusHandler struct {
	mode      string
	exchanges []string
	source    StatusSource
	startedAt time.Time
}

func NewStatusHandler(mode string, exchanges []string, source StatusSource) *StatusHandler {
	return &StatusHandler{mode: mode, exchanges: exchanges, source: source, startedAt: time.Now()}
}

// GetStatus responds with the mode, the exchanges in play and the loop's
// current threshold and last result.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"exchanges":      h.exchanges,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"engine":         h.source.Status(),
	})
}
