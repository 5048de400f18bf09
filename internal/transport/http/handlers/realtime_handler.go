package handlers

import (
	"net/http"

	"github.com/vedran77/pulse-relay/internal/transport/ws"
)

type RealtimeHandler struct {
	registry *ws.Registry
}

func NewRealtimeHandler(registry *ws.Registry) *RealtimeHandler {
	return &RealtimeHandler{registry: registry}
}

func (h *RealtimeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Stats())
}
