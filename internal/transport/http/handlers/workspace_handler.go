package handlers

import (
	"net/http"

	"github.com/vedran77/pulse-relay/internal/service"
	"github.com/vedran77/pulse-relay/internal/transport/http/middleware"
)

type WorkspaceHandler struct {
	workspaceService *service.WorkspaceService
}

func NewWorkspaceHandler(workspaceService *service.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaceService: workspaceService}
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateWorkspaceInput
	if !decode(w, r, &input) {
		return
	}

	ws, err := h.workspaceService.Create(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, err, "create workspace")
		return
	}

	writeJSON(w, http.StatusCreated, ws)
}

func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	workspaces, err := h.workspaceService.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "list workspaces")
		return
	}

	writeJSON(w, http.StatusOK, workspaces)
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	workspaceID, ok := pathID(w, r, "wid", "workspace")
	if !ok {
		return
	}

	ws, err := h.workspaceService.GetByID(r.Context(), userID, workspaceID)
	if err != nil {
		writeServiceError(w, err, "get workspace")
		return
	}

	writeJSON(w, http.StatusOK, ws)
}

func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	workspaceID, ok := pathID(w, r, "wid", "workspace")
	if !ok {
		return
	}

	var input service.UpdateWorkspaceInput
	if !decode(w, r, &input) {
		return
	}

	ws, err := h.workspaceService.Update(r.Context(), userID, workspaceID, input)
	if err != nil {
		writeServiceError(w, err, "update workspace")
		return
	}

	writeJSON(w, http.StatusOK, ws)
}

func (h *WorkspaceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.GetUserID(r.Context())
	workspaceID, ok := pathID(w, r, "wid", "workspace")
	if !ok {
		return
	}

	var input service.AddWorkspaceMemberInput
	if !decode(w, r, &input) {
		return
	}

	if err := h.workspaceService.AddMember(r.Context(), requesterID, workspaceID, input); err != nil {
		writeServiceError(w, err, "add workspace member")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkspaceHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.GetUserID(r.Context())
	workspaceID, ok := pathID(w, r, "wid", "workspace")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "uid", "user")
	if !ok {
		return
	}

	if err := h.workspaceService.RemoveMember(r.Context(), requesterID, workspaceID, targetID); err != nil {
		writeServiceError(w, err, "remove workspace member")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkspaceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	workspaceID, ok := pathID(w, r, "wid", "workspace")
	if !ok {
		return
	}

	members, err := h.workspaceService.ListMembers(r.Context(), userID, workspaceID)
	if err != nil {
		writeServiceError(w, err, "list workspace members")
		return
	}

	writeJSON(w, http.StatusOK, members)
}
