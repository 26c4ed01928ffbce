package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/executor"
)

// StreamReader is the part of domain.SignalBus this handler needs.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// CycleHandler lists finished cycles from the audit stream.
type CycleHandler struct {
	stream StreamReader
	logger *slog.Logger
}

func NewCycleHandler(stream StreamReader, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{stream: stream, logger: logger.With(slog.String("handler", "cycles"))}
}

type cycleEntry struct {
	StreamID string            `json:"stream_id"`
	Event    domain.CycleEvent `json:"event"`
}

// ListRecent returns terminal cycle events, oldest first. ?after= resumes
// from a stream id.
// GET /api/cycles
func (h *CycleHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	msgs, err := h.stream.StreamRead(r.Context(), executor.CyclesStream, after, parseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read cycle stream", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "cycle history unavailable")
		return
	}

	out := make([]cycleEntry, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.CycleEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			h.logger.WarnContext(r.Context(), "skip malformed stream entry",
				slog.String("stream_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, cycleEntry{StreamID: m.ID, Event: ev})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": out})
}
