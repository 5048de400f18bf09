package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/service"
	"github.com/vedran77/pulse-relay/internal/transport/http/middleware"
)

// MessageHandler serves message routes for both channels and conversations.
type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) SendToChannel(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, domain.ScopeChannel)
}

func (h *MessageHandler) ListChannel(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.ScopeChannel)
}

func (h *MessageHandler) SendToConversation(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, domain.ScopeConversation)
}

func (h *MessageHandler) ListConversation(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.ScopeConversation)
}

func (h *MessageHandler) send(w http.ResponseWriter, r *http.Request, kind domain.ScopeKind) {
	userID := middleware.GetUserID(r.Context())
	id, ok := pathID(w, r, "id", string(kind))
	if !ok {
		return
	}

	var input service.SendMessageInput
	if !decode(w, r, &input) {
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, domain.Scope{Kind: kind, ID: id}, input)
	if err != nil {
		writeServiceError(w, err, "send message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) list(w http.ResponseWriter, r *http.Request, kind domain.ScopeKind) {
	userID := middleware.GetUserID(r.Context())
	id, ok := pathID(w, r, "id", string(kind))
	if !ok {
		return
	}

	// Cursor-based pagination
	var before *uuid.UUID
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		b, err := uuid.Parse(beforeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid before cursor")
			return
		}
		before = &b
	}

	resp, err := h.messageService.List(r.Context(), userID, domain.Scope{Kind: kind, ID: id}, before, queryLimit(r))
	if err != nil {
		writeServiceError(w, err, "list messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	var input service.EditMessageInput
	if !decode(w, r, &input) {
		return
	}

	msg, err := h.messageService.Edit(r.Context(), userID, messageID, input)
	if err != nil {
		writeServiceError(w, err, "edit message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	if err := h.messageService.Delete(r.Context(), userID, messageID); err != nil {
		writeServiceError(w, err, "delete message")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
