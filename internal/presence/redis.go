// Package presence tracks which users have at least one live connection.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	onlineKey   = "presence:online"
	lastSeenKey = "presence:last_seen:"
	lastSeenTTL = 30 * 24 * time.Hour
)

// RedisTracker keeps the online set and last-seen stamps in Redis so every
// server instance sees the same state.
type RedisTracker struct {
	client *redis.Client
}

func NewRedisTracker(redisURL string) (*RedisTracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisTracker{client: client}, nil
}

func NewRedisTrackerWithClient(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client}
}

func (t *RedisTracker) MarkOnline(ctx context.Context, userID uuid.UUID) error {
	if err := t.client.SAdd(ctx, onlineKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}

// MarkOffline drops the user from the online set and stamps last seen.
func (t *RedisTracker) MarkOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, onlineKey, userID.String())
		pipe.Set(ctx, lastSeenKey+userID.String(), at.Unix(), lastSeenTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

func (t *RedisTracker) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	ok, err := t.client.SIsMember(ctx, onlineKey, userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check online: %w", err)
	}
	return ok, nil
}

// LastSeen returns nil when the user was never seen going offline.
func (t *RedisTracker) LastSeen(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	raw, err := t.client.Get(ctx, lastSeenKey+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup last seen: %w", err)
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last seen: %w", err)
	}
	ts := time.Unix(secs, 0)
	return &ts, nil
}

// Online lists every user currently marked online.
func (t *RedisTracker) Online(ctx context.Context) ([]uuid.UUID, error) {
	members, err := t.client.SMembers(ctx, onlineKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list online: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
