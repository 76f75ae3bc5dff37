package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// StreamHandler replays the durable fill stream so clients can catch up
// after a WebSocket reconnect.
type StreamHandler struct {
	streams domain.StreamReader
	logger  *slog.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(streams domain.StreamReader, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{streams: streams, logger: logHandler(logger, "streams")}
}

type streamEntry struct {
	ID   string          `json:"id"`
	Fill json.RawMessage `json:"fill"`
}

type fillStreamResponse struct {
	Entries []streamEntry `json:"entries"`
	LastID  string        `json:"last_id"`
}

// ReadFills returns up to count fills recorded after the given entry id.
// GET /api/streams/fills?after=0-0&count=100
func (h *StreamHandler) ReadFills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0-0"
	}
	count, err := queryInt(q, "count", 100, 1, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.streams.StreamRead(r.Context(), domain.StreamFills, after, count)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to read fill stream", err)
		return
	}

	resp := fillStreamResponse{Entries: make([]streamEntry, 0, len(msgs)), LastID: after}
	for _, m := range msgs {
		resp.Entries = append(resp.Entries, streamEntry{ID: m.ID, Fill: m.Payload})
		resp.LastID = m.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
