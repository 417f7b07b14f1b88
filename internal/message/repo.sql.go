package message

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novachat/nova/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a channel message and fills in its generated ID.
func (r *Repository) Insert(ctx context.Context, m *Message) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO messages (channel_id, planet_id, author_user_id, content, embed_data, fingerprint, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		m.ChannelID, m.PlanetID, m.AuthorUserID, m.Content, m.EmbedData, m.Fingerprint, m.CreatedAt).
		Scan(&m.ID)
}

// Find returns a channel message by ID.
func (r *Repository) Find(ctx context.Context, id int64) (*Message, error) {
	var m Message
	err := r.pool.QueryRow(ctx,
		`SELECT id, channel_id, planet_id, author_user_id, content, embed_data, fingerprint, created_at
		 FROM messages WHERE id = $1`, id).
		Scan(&m.ID, &m.ChannelID, &m.PlanetID, &m.AuthorUserID, &m.Content, &m.EmbedData, &m.Fingerprint, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Delete removes a channel message.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// InsertDirect stores a direct message and fills in its generated ID.
func (r *Repository) InsertDirect(ctx context.Context, m *DirectMessage) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO direct_messages (author_user_id, target_user_id, content, embed_data, fingerprint, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		m.AuthorUserID, m.TargetUserID, m.Content, m.EmbedData, m.Fingerprint, m.CreatedAt).
		Scan(&m.ID)
}

// FindDirect returns a direct message by ID.
func (r *Repository) FindDirect(ctx context.Context, id int64) (*DirectMessage, error) {
	var m DirectMessage
	err := r.pool.QueryRow(ctx,
		`SELECT id, author_user_id, target_user_id, content, embed_data, fingerprint, created_at
		 FROM direct_messages WHERE id = $1`, id).
		Scan(&m.ID, &m.AuthorUserID, &m.TargetUserID, &m.Content, &m.EmbedData, &m.Fingerprint, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// DeleteDirect removes a direct message.
func (r *Repository) DeleteDirect(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM direct_messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
