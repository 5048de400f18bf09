package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

type WorkspaceRepo struct {
	s *Store
}

func (r *WorkspaceRepo) Create(_ context.Context, ws *domain.Workspace) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.workspaces {
		if existing.Slug == ws.Slug {
			return repository.ErrConflict
		}
	}
	r.s.workspaces[ws.ID] = *ws
	return nil
}

func (r *WorkspaceRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Workspace, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ws, ok := r.s.workspaces[id]
	if !ok {
		return nil, nil
	}
	return &ws, nil
}

func (r *WorkspaceRepo) GetBySlug(_ context.Context, slug string) (*domain.Workspace, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, ws := range r.s.workspaces {
		if ws.Slug == slug {
			return &ws, nil
		}
	}
	return nil, nil
}

func (r *WorkspaceRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Workspace, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Workspace
	for key := range r.s.workspaceMembers {
		if key.userID != userID {
			continue
		}
		if ws, ok := r.s.workspaces[key.scopeID]; ok {
			out = append(out, ws)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *WorkspaceRepo) Update(_ context.Context, ws *domain.Workspace) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.workspaces[ws.ID]
	if !ok {
		return nil
	}
	existing.Name = ws.Name
	existing.Description = ws.Description
	r.s.workspaces[ws.ID] = existing
	return nil
}

func (r *WorkspaceRepo) AddMember(_ context.Context, m *domain.WorkspaceMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{scopeID: m.WorkspaceID, userID: m.UserID}
	if _, ok := r.s.workspaceMembers[key]; ok {
		return repository.ErrConflict
	}
	r.s.workspaceMembers[key] = *m
	return nil
}

func (r *WorkspaceRepo) RemoveMember(_ context.Context, workspaceID, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.workspaceMembers, memberKey{scopeID: workspaceID, userID: userID})
	return nil
}

func (r *WorkspaceRepo) GetMember(_ context.Context, workspaceID, userID uuid.UUID) (*domain.WorkspaceMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.workspaceMembers[memberKey{scopeID: workspaceID, userID: userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *WorkspaceRepo) ListMembers(_ context.Context, workspaceID uuid.UUID) ([]domain.WorkspaceMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.WorkspaceMember
	for key, m := range r.s.workspaceMembers {
		if key.scopeID == workspaceID {
			out = append(out, m)
		}
	}
	sortByJoined(out, func(m domain.WorkspaceMember) int64 { return m.JoinedAt.UnixNano() })
	return out, nil
}
