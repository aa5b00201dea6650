// internal/api/handler/stream.go
package handler

import (
	"net/http"

	"herdvest-agent/internal/domain"
	"herdvest-agent/internal/store"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Surfaces are local pages; the agent binds to loopback.
		return true
	},
}

// streamFrame is one push message to a connected surface.
type streamFrame struct {
	Type string `json:"type"` // "records" | "session"
	Data any    `json:"data"`
}

// Stream handles GET /stream: a websocket that pushes the current record
// snapshot and session state to the surface whenever either changes.
// This is how surfaces that share no in-memory state observe the same
// logical entities.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan streamFrame, 32)
	drop := func(frame streamFrame) {
		select {
		case send <- frame:
		default:
			// A surface that stops draining gets the next snapshot
			// instead of a backlog; snapshots are complete, not deltas.
		}
	}

	unsubRecords := h.records.Subscribe(func(snap store.Snapshot) {
		drop(streamFrame{Type: "records", Data: snap})
	})
	defer unsubRecords()
	unsubSession := h.session.Subscribe(func(state domain.SessionState) {
		drop(streamFrame{Type: "session", Data: state})
	})
	defer unsubSession()

	// Prime the surface with the current view.
	if snap, err := h.records.Snapshot(r.Context()); err == nil {
		drop(streamFrame{Type: "records", Data: snap})
	}
	drop(streamFrame{Type: "session", Data: h.session.Snapshot()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			// Surfaces never send application frames; reading just
			// detects the close.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-send:
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
