package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/service"
	"github.com/vedran77/pulse-relay/internal/transport/http/middleware"
)

type ConversationHandler struct {
	directory *service.ConversationDirectory
}

func NewConversationHandler(directory *service.ConversationDirectory) *ConversationHandler {
	return &ConversationHandler{directory: directory}
}

// Create returns 201 for a new conversation and 200 when an existing 1:1
// was reused.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateConversationInput
	if !decode(w, r, &input) {
		return
	}

	conv, created, err := h.directory.Create(r.Context(), userID, input.ParticipantIDs, input.Title)
	if err != nil {
		writeServiceError(w, err, "create conversation")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs, err := h.directory.ListForUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "list conversations")
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id", "conversation")
	if !ok {
		return
	}

	conv, err := h.directory.Get(r.Context(), userID, convID)
	if err != nil {
		writeServiceError(w, err, "get conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var input memberInput
	if !decode(w, r, &input) {
		return
	}

	conv, err := h.directory.AddParticipant(r.Context(), userID, convID, input.UserID)
	if err != nil {
		writeServiceError(w, err, "add participant")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id", "conversation")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "uid", "user")
	if !ok {
		return
	}

	removal, err := h.directory.Kick(r.Context(), userID, convID, targetID)
	if err != nil {
		writeServiceError(w, err, "remove participant")
		return
	}

	writeJSON(w, http.StatusOK, removalResponse(removal))
}

func (h *ConversationHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id", "conversation")
	if !ok {
		return
	}

	removal, err := h.directory.Leave(r.Context(), userID, convID)
	if err != nil {
		writeServiceError(w, err, "leave conversation")
		return
	}

	writeJSON(w, http.StatusOK, removalResponse(removal))
}

type closeInput struct {
	Acknowledge bool `json:"acknowledge"`
}

func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var input closeInput
	if !decode(w, r, &input) {
		return
	}

	if err := h.directory.Close(r.Context(), userID, convID, input.Acknowledge); err != nil {
		writeServiceError(w, err, "close conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type removalJSON struct {
	Conversation *domain.PrivateConversation `json:"conversation"`
	Removed      uuid.UUID                   `json:"removed"`
	NewOwner     *uuid.UUID                  `json:"new_owner,omitempty"`
	Closed       bool                        `json:"closed"`
}

func removalResponse(r *domain.Removal) removalJSON {
	return removalJSON{
		Conversation: r.Conversation,
		Removed:      r.Removed,
		NewOwner:     r.NewOwner,
		Closed:       r.ShouldClose,
	}
}
