package channelstate

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novachat/nova/internal/shared"
)

// Repository provides PostgreSQL backed cursor persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Find returns the cursor for (user, channel).
func (r *Repository) Find(ctx context.Context, userID, channelID int64) (*Cursor, error) {
	var cursor Cursor
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, channel_id, last_viewed_state
		 FROM user_channel_states WHERE user_id = $1 AND channel_id = $2`,
		userID, channelID).
		Scan(&cursor.UserID, &cursor.ChannelID, &cursor.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &cursor, nil
}

// Upsert writes the cursor, creating the row on first join. GREATEST keeps the
// stored value forward-only even when two sessions race the same cursor.
func (r *Repository) Upsert(ctx context.Context, cursor *Cursor) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_channel_states (user_id, channel_id, last_viewed_state)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, channel_id)
		 DO UPDATE SET last_viewed_state = GREATEST(user_channel_states.last_viewed_state, EXCLUDED.last_viewed_state)`,
		cursor.UserID, cursor.ChannelID, cursor.LastSeen)
	return err
}
