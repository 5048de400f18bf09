package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/service"
	"github.com/vedran77/pulse-relay/internal/transport/http/middleware"
)

type ChannelHandler struct {
	channelService *service.ChannelService
}

func NewChannelHandler(channelService *service.ChannelService) *ChannelHandler {
	return &ChannelHandler{channelService: channelService}
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	workspaceID, ok := pathID(w, r, "wid", "workspace")
	if !ok {
		return
	}

	var input service.CreateChannelInput
	if !decode(w, r, &input) {
		return
	}

	ch, err := h.channelService.Create(r.Context(), userID, workspaceID, input)
	if err != nil {
		writeServiceError(w, err, "create channel")
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	workspaceID, ok := pathID(w, r, "wid", "workspace")
	if !ok {
		return
	}

	channels, err := h.channelService.ListByWorkspace(r.Context(), userID, workspaceID)
	if err != nil {
		writeServiceError(w, err, "list channels")
		return
	}

	writeJSON(w, http.StatusOK, channels)
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, ok := pathID(w, r, "id", "channel")
	if !ok {
		return
	}

	ch, err := h.channelService.GetByID(r.Context(), userID, channelID)
	if err != nil {
		writeServiceError(w, err, "get channel")
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, ok := pathID(w, r, "id", "channel")
	if !ok {
		return
	}

	var input service.UpdateChannelInput
	if !decode(w, r, &input) {
		return
	}

	ch, err := h.channelService.Update(r.Context(), userID, channelID, input)
	if err != nil {
		writeServiceError(w, err, "update channel")
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, ok := pathID(w, r, "id", "channel")
	if !ok {
		return
	}

	if err := h.channelService.Delete(r.Context(), userID, channelID); err != nil {
		writeServiceError(w, err, "delete channel")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, ok := pathID(w, r, "id", "channel")
	if !ok {
		return
	}

	if err := h.channelService.AddMember(r.Context(), userID, channelID, userID); err != nil {
		writeServiceError(w, err, "join channel")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type memberInput struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

type roleInput struct {
	Role string `json:"role" validate:"required,oneof=member moderator admin"`
}

func (h *ChannelHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.GetUserID(r.Context())
	channelID, ok := pathID(w, r, "id", "channel")
	if !ok {
		return
	}

	var input memberInput
	if !decode(w, r, &input) {
		return
	}

	if err := h.channelService.AddMember(r.Context(), requesterID, channelID, input.UserID); err != nil {
		writeServiceError(w, err, "add channel member")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.GetUserID(r.Context())
	channelID, ok := pathID(w, r, "id", "channel")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "uid", "user")
	if !ok {
		return
	}

	if err := h.channelService.RemoveMember(r.Context(), requesterID, channelID, targetID); err != nil {
		writeServiceError(w, err, "remove channel member")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.GetUserID(r.Context())
	channelID, ok := pathID(w, r, "id", "channel")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "uid", "user")
	if !ok {
		return
	}

	var input roleInput
	if !decode(w, r, &input) {
		return
	}

	if err := h.channelService.SetMemberRole(r.Context(), requesterID, channelID, targetID, input.Role); err != nil {
		writeServiceError(w, err, "set channel role")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, ok := pathID(w, r, "id", "channel")
	if !ok {
		return
	}

	members, err := h.channelService.ListMembers(r.Context(), userID, channelID)
	if err != nil {
		writeServiceError(w, err, "list channel members")
		return
	}

	writeJSON(w, http.StatusOK, members)
}
