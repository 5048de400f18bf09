package postgres_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-relay/internal/database"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
	"github.com/vedran77/pulse-relay/internal/repository/postgres"
	"github.com/vedran77/pulse-relay/internal/service"
)

// openTestPool connects to PULSE_TEST_DATABASE_URL and migrates it. Every
// test works on fresh ids, so runs do not interfere.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("PULSE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PULSE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

func TestReadStateRollsBackPostgres(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := postgres.NewReadStateStore(pool)
	reader := uuid.New()
	scope := domain.ChannelScope(uuid.New())
	m1, m2 := domain.NewMessageID(), domain.NewMessageID()

	require.NoError(t, store.WithinTx(ctx, func(tx repository.ReadStateTx) error {
		_, err := tx.Unread().Mark(ctx, reader, scope, nil, m1)
		return err
	}))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx repository.ReadStateTx) error {
		if _, err := tx.Unread().Mark(ctx, reader, scope, nil, m2); err != nil {
			return err
		}
		if _, err := tx.Unread().ClearUpTo(ctx, reader, scope, m2, time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, store.Read(ctx, func(tx repository.ReadStateTx) error {
		st, err := tx.Unread().Get(ctx, reader, scope)
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.Equal(t, 1, st.Count)
		assert.Nil(t, st.LastReadMessageID)
		return nil
	}))
}

func TestConcurrentCountingAndReadingPostgres(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	ledger := service.NewUnreadLedger(postgres.NewReadStateStore(pool))
	author, reader := uuid.New(), uuid.New()
	scope := domain.ChannelScope(uuid.New())

	ids := make([]uuid.UUID, 30)
	for i := range ids {
		ids[i] = domain.NewMessageID()
	}
	readUpTo := ids[14]

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.OnNewMessage(ctx, scope, nil, author, []uuid.UUID{author, reader}, id)
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.MarkRead(ctx, reader, scope, readUpTo)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := ledger.Count(ctx, reader, scope)
	require.NoError(t, err)
	assert.Equal(t, 15, count)
}

func TestConcurrentConversationUpdatesPostgres(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	users := postgres.NewUserRepo(pool)
	convs := postgres.NewConversationRepo(pool)

	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, users.Upsert(ctx, &domain.User{
			ID: ids[i], Username: "it-" + ids[i].String()[:12], DisplayName: "IT", CreatedAt: time.Now(),
		}))
	}
	conv, err := domain.NewConversation(ids[0], ids, time.Now())
	require.NoError(t, err)
	require.NoError(t, convs.Create(ctx, conv))

	var wg sync.WaitGroup
	for _, leaving := range ids[1:3] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := convs.Update(ctx, conv.ID, func(c *domain.PrivateConversation) error {
				_, err := c.RemoveParticipant(leaving)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.ElementsMatch(t, []uuid.UUID{ids[0], ids[3]}, stored.ParticipantIDs())
	assert.Nil(t, stored.DirectKey(), "a shrunk group is not a 1:1")

	missing, err := convs.Update(ctx, uuid.New(), func(*domain.PrivateConversation) error { return nil })
	require.NoError(t, err)
	assert.Nil(t, missing)
}
