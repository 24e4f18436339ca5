package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// streamFrame is the SSE payload envelope. Progress events arrive as they
// happen; the full job list is re-sent on a ticker so late subscribers and
// clients that missed an event converge anyway.
type streamFrame struct {
	Type   string `json:"type"`
	Event  any    `json:"event,omitempty"`
	Jobs   any    `json:"jobs,omitempty"`
	Status any    `json:"status,omitempty"`
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(frame streamFrame) bool {
		payload, err := json.Marshal(frame)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	snapshot := func() bool {
		return send(streamFrame{
			Type:   "jobs",
			Jobs:   s.orc.Jobs(),
			Status: s.status(),
		})
	}

	if !snapshot() {
		return
	}

	events, cancel := s.orc.Events().Subscribe()
	defer cancel()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !send(streamFrame{Type: "event", Event: ev}) {
				return
			}
		case <-ticker.C:
			if !snapshot() {
				return
			}
		}
	}
}
