package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/service"
	"github.com/vedran77/pulse-relay/internal/transport/http/middleware"
)

// ReadHandler serves unread counts, read pointers and notifications.
type ReadHandler struct {
	readService *service.ReadService
}

func NewReadHandler(readService *service.ReadService) *ReadHandler {
	return &ReadHandler{readService: readService}
}

type markReadInput struct {
	UpTo uuid.UUID `json:"up_to" validate:"required"`
}

func pathScope(w http.ResponseWriter, r *http.Request) (domain.Scope, bool) {
	scope, err := domain.ParseScope(r.PathValue("kind"), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SCOPE", err.Error())
		return domain.Scope{}, false
	}
	return scope, true
}

func (h *ReadHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	scope, ok := pathScope(w, r)
	if !ok {
		return
	}

	var input markReadInput
	if !decode(w, r, &input) {
		return
	}

	state, err := h.readService.MarkRead(r.Context(), userID, scope, input.UpTo)
	if err != nil {
		writeServiceError(w, err, "mark read")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *ReadHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	scope, ok := pathScope(w, r)
	if !ok {
		return
	}

	state, err := h.readService.MarkAllRead(r.Context(), userID, scope)
	if err != nil {
		writeServiceError(w, err, "mark all read")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// Unread lists every scope with unread messages, optionally narrowed to one
// workspace with ?workspace_id=.
func (h *ReadHandler) Unread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var workspaceID *uuid.UUID
	if wsStr := r.URL.Query().Get("workspace_id"); wsStr != "" {
		id, err := uuid.Parse(wsStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid workspace ID")
			return
		}
		workspaceID = &id
	}

	summary, err := h.readService.Unread(r.Context(), userID, workspaceID)
	if err != nil {
		writeServiceError(w, err, "unread summary")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *ReadHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	onlyUnread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	notifications, err := h.readService.Notifications(r.Context(), userID, onlyUnread, queryLimit(r))
	if err != nil {
		writeServiceError(w, err, "list notifications")
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}

	writeJSON(w, http.StatusOK, notifications)
}

func (h *ReadHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	notificationID, ok := pathID(w, r, "id", "notification")
	if !ok {
		return
	}

	n, err := h.readService.MarkNotificationRead(r.Context(), userID, notificationID)
	if err != nil {
		writeServiceError(w, err, "mark notification read")
		return
	}

	writeJSON(w, http.StatusOK, n)
}
