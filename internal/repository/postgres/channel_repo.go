package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulse-relay/internal/domain"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

const channelColumns = `id, workspace_id, name, description, visibility, created_by, created_at, archived_at`

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	query := `
		INSERT INTO channels (id, workspace_id, name, description, visibility, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		ch.ID, ch.WorkspaceID, ch.Name, ch.Description, ch.Visibility, ch.CreatedBy, ch.CreatedAt,
	)
	return classify(err)
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`
	var ch domain.Channel
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Description, &ch.Visibility,
		&ch.CreatedBy, &ch.CreatedAt, &ch.ArchivedAt,
	)
	return scanOne(&ch, err)
}

func (r *ChannelRepo) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]domain.Channel, error) {
	query := `SELECT ` + channelColumns + `
		FROM channels WHERE workspace_id = $1 AND archived_at IS NULL ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Description, &ch.Visibility,
			&ch.CreatedBy, &ch.CreatedAt, &ch.ArchivedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, classify(rows.Err())
}

func (r *ChannelRepo) Update(ctx context.Context, ch *domain.Channel) error {
	query := `UPDATE channels SET name = $1, description = $2, visibility = $3 WHERE id = $4`
	_, err := r.pool.Exec(ctx, query, ch.Name, ch.Description, ch.Visibility, ch.ID)
	return classify(err)
}

// Delete removes the channel and, through the foreign key, its memberships.
// Messages and read state are cleaned up by the scope purge.
func (r *ChannelRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	return classify(err)
}

func (r *ChannelRepo) AddMember(ctx context.Context, m *domain.ChannelMember) error {
	query := `INSERT INTO channel_members (channel_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, m.ChannelID, m.UserID, m.Role, m.JoinedAt)
	return classify(err)
}

func (r *ChannelRepo) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	return classify(err)
}

func (r *ChannelRepo) UpdateMemberRole(ctx context.Context, channelID, userID uuid.UUID, role string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE channel_members SET role = $1 WHERE channel_id = $2 AND user_id = $3`,
		role, channelID, userID,
	)
	return classify(err)
}

func (r *ChannelRepo) GetMember(ctx context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error) {
	query := `SELECT channel_id, user_id, role, joined_at
		FROM channel_members WHERE channel_id = $1 AND user_id = $2`
	var m domain.ChannelMember
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(&m.ChannelID, &m.UserID, &m.Role, &m.JoinedAt)
	return scanOne(&m, err)
}

func (r *ChannelRepo) ListMembers(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	query := `SELECT channel_id, user_id, role, joined_at
		FROM channel_members WHERE channel_id = $1 ORDER BY joined_at`

	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var members []domain.ChannelMember
	for rows.Next() {
		var m domain.ChannelMember
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, classify(rows.Err())
}
