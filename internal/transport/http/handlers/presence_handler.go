package handlers

import (
	"net/http"

	"github.com/vedran77/pulse-relay/internal/service"
	"github.com/vedran77/pulse-relay/internal/transport/http/middleware"
)

type PresenceHandler struct {
	presence *service.PresenceService
}

func NewPresenceHandler(presence *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

func (h *PresenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	targetID, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	status, err := h.presence.Status(r.Context(), userID, targetID)
	if err != nil {
		writeServiceError(w, err, "presence status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Online lists the caller's contacts that are online.
func (h *PresenceHandler) Online(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	online, err := h.presence.OnlineContacts(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "online contacts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"online": online})
}
