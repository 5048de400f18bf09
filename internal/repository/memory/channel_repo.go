package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

type ChannelRepo struct {
	s *Store
}

func (r *ChannelRepo) nameTaken(ch *domain.Channel) bool {
	for _, existing := range r.s.channels {
		if existing.ID != ch.ID && existing.WorkspaceID == ch.WorkspaceID &&
			strings.EqualFold(existing.Name, ch.Name) {
			return true
		}
	}
	return false
}

func (r *ChannelRepo) Create(_ context.Context, ch *domain.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.nameTaken(ch) {
		return repository.ErrConflict
	}
	r.s.channels[ch.ID] = *ch
	return nil
}

func (r *ChannelRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Channel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ch, ok := r.s.channels[id]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (r *ChannelRepo) ListByWorkspace(_ context.Context, workspaceID uuid.UUID) ([]domain.Channel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Channel
	for _, ch := range r.s.channels {
		if ch.WorkspaceID == workspaceID && ch.ArchivedAt == nil {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ChannelRepo) Update(_ context.Context, ch *domain.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.channels[ch.ID]; !ok {
		return nil
	}
	if r.nameTaken(ch) {
		return repository.ErrConflict
	}
	r.s.channels[ch.ID] = *ch
	return nil
}

func (r *ChannelRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.channels, id)
	for key := range r.s.channelMembers {
		if key.scopeID == id {
			delete(r.s.channelMembers, key)
		}
	}
	return nil
}

func (r *ChannelRepo) AddMember(_ context.Context, m *domain.ChannelMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{scopeID: m.ChannelID, userID: m.UserID}
	if _, ok := r.s.channelMembers[key]; ok {
		return repository.ErrConflict
	}
	r.s.channelMembers[key] = *m
	return nil
}

func (r *ChannelRepo) RemoveMember(_ context.Context, channelID, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.channelMembers, memberKey{scopeID: channelID, userID: userID})
	return nil
}

func (r *ChannelRepo) UpdateMemberRole(_ context.Context, channelID, userID uuid.UUID, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{scopeID: channelID, userID: userID}
	m, ok := r.s.channelMembers[key]
	if !ok {
		return nil
	}
	m.Role = role
	r.s.channelMembers[key] = m
	return nil
}

func (r *ChannelRepo) GetMember(_ context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.channelMembers[memberKey{scopeID: channelID, userID: userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *ChannelRepo) ListMembers(_ context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.ChannelMember
	for key, m := range r.s.channelMembers {
		if key.scopeID == channelID {
			out = append(out, m)
		}
	}
	sortByJoined(out, func(m domain.ChannelMember) int64 { return m.JoinedAt.UnixNano() })
	return out, nil
}
