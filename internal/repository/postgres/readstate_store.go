package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

// ReadStateStore runs ledger and notification work on one pgx transaction.
type ReadStateStore struct {
	pool *pgxpool.Pool
}

func NewReadStateStore(pool *pgxpool.Pool) *ReadStateStore {
	return &ReadStateStore{pool: pool}
}

func (s *ReadStateStore) WithinTx(ctx context.Context, fn func(tx repository.ReadStateTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(readStateTx{q: tx}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

func (s *ReadStateStore) Read(ctx context.Context, fn func(tx repository.ReadStateTx) error) error {
	return fn(readStateTx{q: s.pool})
}

type readStateTx struct {
	q Querier
}

func (t readStateTx) Unread() repository.UnreadRepository {
	return &UnreadRepo{q: t.q}
}

func (t readStateTx) Notifications() repository.NotificationRepository {
	return &NotificationRepo{q: t.q}
}

// UnreadRepo works on unread_state rows and their pending unread_marks.
// Every write starts by upserting the unread_state row, which takes its row
// lock and serializes concurrent writers of the same (reader, scope).
type UnreadRepo struct {
	q Querier
}

const unreadColumns = `reader_id, scope_kind, scope_id, workspace_id, count, last_read_message_id, last_read_at`

func scanUnread(row rowScanner, st *domain.UnreadState) error {
	return row.Scan(&st.ReaderID, &st.Scope.Kind, &st.Scope.ID, &st.WorkspaceID,
		&st.Count, &st.LastReadMessageID, &st.LastReadAt)
}

func (r *UnreadRepo) Get(ctx context.Context, readerID uuid.UUID, scope domain.Scope) (*domain.UnreadState, error) {
	query := `SELECT ` + unreadColumns + ` FROM unread_state
		WHERE reader_id = $1 AND scope_kind = $2 AND scope_id = $3`
	var st domain.UnreadState
	err := scanUnread(r.q.QueryRow(ctx, query, readerID, scope.Kind, scope.ID), &st)
	return scanOne(&st, err)
}

func (r *UnreadRepo) lockRow(ctx context.Context, readerID uuid.UUID, scope domain.Scope, workspaceID *uuid.UUID) (*domain.UnreadState, error) {
	query := `
		INSERT INTO unread_state (reader_id, scope_kind, scope_id, workspace_id, count)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (reader_id, scope_kind, scope_id)
		DO UPDATE SET workspace_id = COALESCE(unread_state.workspace_id, EXCLUDED.workspace_id)
		RETURNING ` + unreadColumns
	var st domain.UnreadState
	if err := scanUnread(r.q.QueryRow(ctx, query, readerID, scope.Kind, scope.ID, workspaceID), &st); err != nil {
		return nil, classify(err)
	}
	return &st, nil
}

func (r *UnreadRepo) Mark(ctx context.Context, readerID uuid.UUID, scope domain.Scope, workspaceID *uuid.UUID, messageID uuid.UUID) (bool, error) {
	st, err := r.lockRow(ctx, readerID, scope, workspaceID)
	if err != nil {
		return false, err
	}
	if st.HasRead(messageID) {
		return false, nil
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO unread_marks (reader_id, scope_kind, scope_id, message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`, readerID, scope.Kind, scope.ID, messageID)
	if err != nil {
		return false, classify(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = r.q.Exec(ctx, `
		UPDATE unread_state SET count = count + 1
		WHERE reader_id = $1 AND scope_kind = $2 AND scope_id = $3`, readerID, scope.Kind, scope.ID)
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

func (r *UnreadRepo) ClearUpTo(ctx context.Context, readerID uuid.UUID, scope domain.Scope, upto uuid.UUID, at time.Time) (*domain.UnreadState, error) {
	if _, err := r.lockRow(ctx, readerID, scope, nil); err != nil {
		return nil, err
	}

	if _, err := r.q.Exec(ctx, `
		DELETE FROM unread_marks
		WHERE reader_id = $1 AND scope_kind = $2 AND scope_id = $3 AND message_id <= $4`,
		readerID, scope.Kind, scope.ID, upto); err != nil {
		return nil, classify(err)
	}

	// uuid comparison is bytewise, which matches message id order.
	query := `
		UPDATE unread_state SET
			count = (
				SELECT count(*) FROM unread_marks
				WHERE reader_id = $1 AND scope_kind = $2 AND scope_id = $3
			),
			last_read_message_id = CASE
				WHEN last_read_message_id IS NULL OR last_read_message_id < $4 THEN $4
				ELSE last_read_message_id
			END,
			last_read_at = $5
		WHERE reader_id = $1 AND scope_kind = $2 AND scope_id = $3
		RETURNING ` + unreadColumns
	var st domain.UnreadState
	if err := scanUnread(r.q.QueryRow(ctx, query, readerID, scope.Kind, scope.ID, upto, at), &st); err != nil {
		return nil, classify(err)
	}
	return &st, nil
}

func (r *UnreadRepo) ListUnread(ctx context.Context, readerID uuid.UUID, workspaceID *uuid.UUID) ([]domain.UnreadState, error) {
	query := `SELECT ` + unreadColumns + ` FROM unread_state
		WHERE reader_id = $1 AND count > 0 AND ($2::uuid IS NULL OR workspace_id = $2)
		ORDER BY scope_kind, scope_id`

	rows, err := r.q.Query(ctx, query, readerID, workspaceID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.UnreadState
	for rows.Next() {
		var st domain.UnreadState
		if err := scanUnread(rows, &st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, classify(rows.Err())
}

func (r *UnreadRepo) DeleteScope(ctx context.Context, scope domain.Scope) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM unread_marks WHERE scope_kind = $1 AND scope_id = $2`, scope.Kind, scope.ID); err != nil {
		return classify(err)
	}
	_, err := r.q.Exec(ctx, `DELETE FROM unread_state WHERE scope_kind = $1 AND scope_id = $2`, scope.Kind, scope.ID)
	return classify(err)
}

type NotificationRepo struct {
	q Querier
}

const notificationColumns = `id, user_id, kind, scope_kind, reference_id, message_id, read, created_at`

func scanNotification(row rowScanner, n *domain.Notification) error {
	return row.Scan(&n.ID, &n.UserID, &n.Kind, &n.ScopeKind, &n.ReferenceID, &n.MessageID, &n.Read, &n.CreatedAt)
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, message_id, kind) DO NOTHING`,
		n.ID, n.UserID, n.Kind, n.ScopeKind, n.ReferenceID, n.MessageID, n.Read, n.CreatedAt)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	var n domain.Notification
	err := scanNotification(r.q.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id), &n)
	return scanOne(&n, err)
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read = false)
		ORDER BY message_id DESC, kind
		LIMIT $3`

	rows, err := r.q.Query(ctx, query, userID, onlyUnread, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, classify(rows.Err())
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `UPDATE notifications SET read = true WHERE id = $1`, id)
	return classify(err)
}

func (r *NotificationRepo) MarkReadUpTo(ctx context.Context, userID uuid.UUID, scope domain.Scope, upto uuid.UUID) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE notifications SET read = true
		WHERE user_id = $1 AND scope_kind = $2 AND reference_id = $3
			AND message_id <= $4 AND read = false`,
		userID, scope.Kind, scope.ID, upto)
	if err != nil {
		return 0, classify(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *NotificationRepo) DeleteByScope(ctx context.Context, scope domain.Scope) error {
	_, err := r.q.Exec(ctx, `DELETE FROM notifications WHERE scope_kind = $1 AND reference_id = $2`, scope.Kind, scope.ID)
	return classify(err)
}

