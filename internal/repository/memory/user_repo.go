package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

type UserRepo struct {
	s *Store
}

func (r *UserRepo) Upsert(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.ID != user.ID && strings.EqualFold(u.Username, user.Username) {
			return repository.ErrConflict
		}
	}
	if existing, ok := r.s.users[user.ID]; ok {
		existing.Username = user.Username
		existing.DisplayName = user.DisplayName
		r.s.users[user.ID] = existing
		return nil
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

