package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

// ScopePurger removes everything stored against a scope once the channel or
// conversation behind it is gone.
type ScopePurger interface {
	PurgeScope(ctx context.Context, scope domain.Scope) error
}

// DirectPurger deletes messages and read state inline.
type DirectPurger struct {
	messages      repository.MessageRepository
	notifications *NotificationStore
}

func NewDirectPurger(messages repository.MessageRepository, notifications *NotificationStore) *DirectPurger {
	return &DirectPurger{messages: messages, notifications: notifications}
}

func (p *DirectPurger) PurgeScope(ctx context.Context, scope domain.Scope) error {
	if err := p.notifications.PurgeScope(ctx, scope); err != nil {
		return err
	}
	if err := p.messages.DeleteByScope(ctx, scope); err != nil {
		return fmt.Errorf("purging messages: %w", err)
	}
	log.Info().Str("scope", scope.String()).Msg("scope purged")
	return nil
}
