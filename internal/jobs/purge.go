// Package jobs runs deferred work on asynq: purging the stored data of a
// retired conversation or deleted channel outside the request that retired it.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/service"
)

const TypeScopePurge = "scope:purge"

type purgePayload struct {
	Kind domain.ScopeKind `json:"kind"`
	ID   string           `json:"id"`
}

func NewPurgeTask(scope domain.Scope) (*asynq.Task, error) {
	payload, err := json.Marshal(purgePayload{Kind: scope.Kind, ID: scope.ID.String()})
	if err != nil {
		return nil, fmt.Errorf("encoding purge payload: %w", err)
	}
	return asynq.NewTask(TypeScopePurge, payload, asynq.MaxRetry(10), asynq.Timeout(5*time.Minute)), nil
}

func parsePurgeTask(t *asynq.Task) (domain.Scope, error) {
	var p purgePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return domain.Scope{}, err
	}
	return domain.ParseScope(string(p.Kind), p.ID)
}

// Enqueuer defers scope purges to the job queue. It satisfies
// service.ScopePurger so services never know the purge is asynchronous.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(redisURL string) (*Enqueuer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &Enqueuer{client: asynq.NewClient(opt)}, nil
}

var _ service.ScopePurger = (*Enqueuer)(nil)

func (e *Enqueuer) PurgeScope(ctx context.Context, scope domain.Scope) error {
	task, err := NewPurgeTask(scope)
	if err != nil {
		return err
	}
	// Jedan purge po scope-u je dovoljan
	info, err := e.client.EnqueueContext(ctx, task, asynq.TaskID(TypeScopePurge+":"+scope.String()))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue purge of %s: %w", scope, err)
	}
	log.Debug().Str("task_id", info.ID).Str("scope", scope.String()).Msg("purge enqueued")
	return nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// PurgeHandler runs purge tasks against the inline purger.
type PurgeHandler struct {
	purger service.ScopePurger
}

func NewPurgeHandler(purger service.ScopePurger) *PurgeHandler {
	return &PurgeHandler{purger: purger}
}

func (h *PurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	scope, err := parsePurgeTask(t)
	if err != nil {
		// Neispravan payload se nece popraviti ponavljanjem
		return fmt.Errorf("decoding purge task: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.purger.PurgeScope(ctx, scope); err != nil {
		return fmt.Errorf("purging %s: %w", scope, err)
	}
	return nil
}
