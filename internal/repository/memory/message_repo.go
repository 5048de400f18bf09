package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
)

type MessageRepo struct {
	s *Store
}

func cloneMessage(m domain.Message) *domain.Message {
	m.Mentions = append([]uuid.UUID(nil), m.Mentions...)
	return &m
}

func (r *MessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.messages[msg.ID] = *cloneMessage(*msg)
	return nil
}

func (r *MessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.messages[id]
	if !ok {
		return nil, nil
	}
	return cloneMessage(m), nil
}

func (r *MessageRepo) ListByScope(_ context.Context, scope domain.Scope, before *uuid.UUID, limit int) ([]domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Message
	for _, m := range r.s.messages {
		if m.Scope != scope || m.DeletedAt != nil {
			continue
		}
		if before != nil && domain.CompareMessageIDs(m.ID, *before) >= 0 {
			continue
		}
		out = append(out, *cloneMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return domain.CompareMessageIDs(out[i].ID, out[j].ID) < 0 })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *MessageRepo) LatestID(_ context.Context, scope domain.Scope) (*uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *uuid.UUID
	for id, m := range r.s.messages {
		if m.Scope != scope {
			continue
		}
		if latest == nil || domain.CompareMessageIDs(id, *latest) > 0 {
			id := id
			latest = &id
		}
	}
	return latest, nil
}

func (r *MessageRepo) Update(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[msg.ID]
	if !ok {
		return nil
	}
	now := time.Now()
	m.Content = msg.Content
	m.EditedAt = &now
	r.s.messages[msg.ID] = m
	msg.EditedAt = &now
	return nil
}

func (r *MessageRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok {
		return nil
	}
	now := time.Now()
	m.DeletedAt = &now
	r.s.messages[id] = m
	return nil
}

func (r *MessageRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.messages, id)
	return nil
}

func (r *MessageRepo) DeleteByScope(_ context.Context, scope domain.Scope) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, m := range r.s.messages {
		if m.Scope == scope {
			delete(r.s.messages, id)
		}
	}
	return nil
}
