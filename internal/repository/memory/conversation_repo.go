package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

type ConversationRepo struct {
	s *Store
}

func cloneConversation(c domain.PrivateConversation) *domain.PrivateConversation {
	c.Participants = append([]domain.Participant(nil), c.Participants...)
	return &c
}

func (r *ConversationRepo) directKeyTaken(conv *domain.PrivateConversation) bool {
	key := conv.DirectKey()
	if key == nil {
		return false
	}
	for id, existing := range r.s.conversations {
		if id == conv.ID {
			continue
		}
		if k := existing.DirectKey(); k != nil && *k == *key {
			return true
		}
	}
	return false
}

func (r *ConversationRepo) Create(_ context.Context, conv *domain.PrivateConversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.directKeyTaken(conv) {
		return repository.ErrConflict
	}
	r.s.conversations[conv.ID] = *cloneConversation(*conv)
	return nil
}

func (r *ConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PrivateConversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	conv, ok := r.s.conversations[id]
	if !ok {
		return nil, nil
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepo) GetByDirectKey(_ context.Context, key string) (*domain.PrivateConversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, conv := range r.s.conversations {
		if k := conv.DirectKey(); k != nil && *k == key {
			return cloneConversation(conv), nil
		}
	}
	return nil, nil
}

func (r *ConversationRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.PrivateConversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.PrivateConversation
	for _, conv := range r.s.conversations {
		if !conv.Retired() && conv.HasParticipant(userID) {
			out = append(out, *cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Update holds the store lock from load to store, so concurrent updates of
// one conversation apply one after the other.
func (r *ConversationRepo) Update(_ context.Context, id uuid.UUID, fn func(conv *domain.PrivateConversation) error) (*domain.PrivateConversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.conversations[id]
	if !ok {
		return nil, nil
	}
	conv := cloneConversation(stored)
	if err := fn(conv); err != nil {
		return nil, err
	}
	conv.ID = id
	if r.directKeyTaken(conv) {
		return nil, repository.ErrConflict
	}
	r.s.conversations[id] = *cloneConversation(*conv)
	return conv, nil
}

func (r *ConversationRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.conversations, id)
	return nil
}
