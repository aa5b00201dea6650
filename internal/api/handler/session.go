// internal/api/handler/session.go
package handler

import (
	"net/http"

	"herdvest-agent/internal/api/types"
)

// GetSession handles GET /session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, types.OK(h.session.Snapshot()))
}

// Connect handles POST /session/connect. It blocks until the user
// approves or dismisses the wallet prompt.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	state, err := h.session.Connect(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(state))
}

// Disconnect handles POST /session/disconnect.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.session.Disconnect()
	h.respondWithJSON(w, http.StatusOK, types.OK(h.session.Snapshot()))
}

// SwitchNetwork handles POST /network/switch. Failures are reported to
// the surface, which decides whether to re-prompt; no automatic retry.
func (h *Handler) SwitchNetwork(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.SwitchNetwork(r.Context()); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(nil))
}
