package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulse-relay/internal/domain"
)

// ConversationRepo stores private conversations. The partial unique index on
// direct_key keeps at most one open 1:1 conversation per user pair.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.PrivateConversation) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO conversations (id, title, owner_id, is_group, is_direct, direct_key, created_at, retired_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.Exec(ctx, query,
			conv.ID, conv.Title, conv.OwnerID, conv.IsGroup, conv.Direct, conv.DirectKey(), conv.CreatedAt, conv.RetiredAt,
		); err != nil {
			return err
		}
		return insertParticipants(ctx, tx, conv)
	})
	return classify(err)
}

func insertParticipants(ctx context.Context, tx pgx.Tx, conv *domain.PrivateConversation) error {
	batch := &pgx.Batch{}
	for i, p := range conv.Participants {
		batch.Queue(`
			INSERT INTO conversation_participants (conversation_id, user_id, position, joined_at)
			VALUES ($1, $2, $3, $4)`, conv.ID, p.UserID, i, p.JoinedAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PrivateConversation, error) {
	return getOne(ctx, r.pool, `WHERE c.id = $1`, id)
}

func (r *ConversationRepo) GetByDirectKey(ctx context.Context, key string) (*domain.PrivateConversation, error) {
	return getOne(ctx, r.pool, `WHERE c.direct_key = $1 AND c.retired_at IS NULL`, key)
}

func getOne(ctx context.Context, q Querier, where string, arg any) (*domain.PrivateConversation, error) {
	convs, err := listConversations(ctx, q, where, arg)
	if err != nil || len(convs) == 0 {
		return nil, err
	}
	return &convs[0], nil
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.PrivateConversation, error) {
	return listConversations(ctx, r.pool, `
		WHERE c.retired_at IS NULL AND c.id IN (
			SELECT conversation_id FROM conversation_participants WHERE user_id = $1
		)`, userID)
}

// listConversations loads conversations with their participants in one
// round trip, newest conversation first.
func listConversations(ctx context.Context, q Querier, where string, arg any) ([]domain.PrivateConversation, error) {
	query := `
		SELECT c.id, c.title, c.owner_id, c.is_group, c.is_direct, c.created_at, c.retired_at,
			p.user_id, p.joined_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		` + where + `
		ORDER BY c.created_at DESC, c.id, p.position`

	rows, err := q.Query(ctx, query, arg)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var convs []domain.PrivateConversation
	for rows.Next() {
		var c domain.PrivateConversation
		var p domain.Participant
		if err := rows.Scan(&c.ID, &c.Title, &c.OwnerID, &c.IsGroup, &c.Direct, &c.CreatedAt, &c.RetiredAt,
			&p.UserID, &p.JoinedAt); err != nil {
			return nil, err
		}
		if n := len(convs); n > 0 && convs[n-1].ID == c.ID {
			convs[n-1].Participants = append(convs[n-1].Participants, p)
			continue
		}
		c.Participants = []domain.Participant{p}
		convs = append(convs, c)
	}
	return convs, classify(rows.Err())
}

// Update locks the conversation row for the whole transaction, so
// concurrent updates of one conversation queue up behind each other and each
// sees the participants the previous one stored.
func (r *ConversationRepo) Update(ctx context.Context, id uuid.UUID, fn func(conv *domain.PrivateConversation) error) (*domain.PrivateConversation, error) {
	var updated *domain.PrivateConversation
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		conv, err := getOne(ctx, tx, `WHERE c.id = $1`, id)
		if err != nil || conv == nil {
			return err
		}
		if err := fn(conv); err != nil {
			return err
		}

		query := `
			UPDATE conversations
			SET title = $2, owner_id = $3, is_group = $4, is_direct = $5, direct_key = $6, retired_at = $7
			WHERE id = $1`
		if _, err := tx.Exec(ctx, query,
			id, conv.Title, conv.OwnerID, conv.IsGroup, conv.Direct, conv.DirectKey(), conv.RetiredAt,
		); err != nil {
			return err
		}
		// Participants are rewritten in order under the row lock.
		if _, err := tx.Exec(ctx, `DELETE FROM conversation_participants WHERE conversation_id = $1`, id); err != nil {
			return err
		}
		if err := insertParticipants(ctx, tx, conv); err != nil {
			return err
		}
		updated = conv
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return updated, nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return classify(err)
}
