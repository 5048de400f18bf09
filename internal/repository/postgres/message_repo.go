package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulse-relay/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, scope_kind, scope_id, workspace_id, sender_id, content, type, parent_id,
	mentions, edited_at, deleted_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, msg *domain.Message) error {
	return row.Scan(
		&msg.ID, &msg.Scope.Kind, &msg.Scope.ID, &msg.WorkspaceID, &msg.SenderID, &msg.Content,
		&msg.Type, &msg.ParentID, &msg.Mentions, &msg.EditedAt, &msg.DeletedAt, &msg.CreatedAt,
	)
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, scope_kind, scope_id, workspace_id, sender_id, content, type, parent_id, mentions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	mentions := msg.Mentions
	if mentions == nil {
		mentions = []uuid.UUID{}
	}
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.Scope.Kind, msg.Scope.ID, msg.WorkspaceID, msg.SenderID, msg.Content,
		msg.Type, msg.ParentID, mentions, msg.CreatedAt,
	)
	return classify(err)
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	var msg domain.Message
	err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id), &msg)
	return scanOne(&msg, err)
}

// ListByScope pages backwards by message id. Ids are time ordered, so the
// cursor needs no extra lookup.
func (r *MessageRepo) ListByScope(ctx context.Context, scope domain.Scope, before *uuid.UUID, limit int) ([]domain.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE scope_kind = $1 AND scope_id = $2 AND deleted_at IS NULL
			AND ($3::uuid IS NULL OR id < $3)
		ORDER BY id DESC
		LIMIT %d`, messageColumns, limit)

	rows, err := r.pool.Query(ctx, query, scope.Kind, scope.ID, before)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// Reverse da budu chronological (query ih daje DESC)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, classify(rows.Err())
}

func (r *MessageRepo) LatestID(ctx context.Context, scope domain.Scope) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM messages WHERE scope_kind = $1 AND scope_id = $2 ORDER BY id DESC LIMIT 1`,
		scope.Kind, scope.ID,
	).Scan(&id)
	return scanOne(&id, err)
}

func (r *MessageRepo) Update(ctx context.Context, msg *domain.Message) error {
	now := time.Now()
	_, err := r.pool.Exec(ctx, `UPDATE messages SET content = $1, edited_at = $2 WHERE id = $3`, msg.Content, now, msg.ID)
	if err == nil {
		msg.EditedAt = &now
	}
	return classify(err)
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE messages SET deleted_at = $1 WHERE id = $2`, time.Now(), id)
	return classify(err)
}

func (r *MessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return classify(err)
}

func (r *MessageRepo) DeleteByScope(ctx context.Context, scope domain.Scope) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE scope_kind = $1 AND scope_id = $2`, scope.Kind, scope.ID)
	return classify(err)
}
