package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-relay/internal/domain"
)

type recordingPurger struct {
	scopes []domain.Scope
	err    error
}

func (p *recordingPurger) PurgeScope(_ context.Context, scope domain.Scope) error {
	p.scopes = append(p.scopes, scope)
	return p.err
}

func TestPurgeHandlerRunsPurger(t *testing.T) {
	purger := &recordingPurger{}
	scope := domain.ConversationScope(uuid.New())

	task, err := NewPurgeTask(scope)
	require.NoError(t, err)
	assert.Equal(t, TypeScopePurge, task.Type())

	require.NoError(t, NewPurgeHandler(purger).ProcessTask(context.Background(), task))
	assert.Equal(t, []domain.Scope{scope}, purger.scopes)
}

func TestPurgeHandlerSkipsRetryOnBadPayload(t *testing.T) {
	purger := &recordingPurger{}

	err := NewPurgeHandler(purger).ProcessTask(context.Background(), asynq.NewTask(TypeScopePurge, []byte(`{"kind":"room"}`)))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, purger.scopes)
}

func TestPurgeHandlerReturnsPurgeFailure(t *testing.T) {
	boom := errors.New("db down")
	purger := &recordingPurger{err: boom}
	task, err := NewPurgeTask(domain.ChannelScope(uuid.New()))
	require.NoError(t, err)

	err = NewPurgeHandler(purger).ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
