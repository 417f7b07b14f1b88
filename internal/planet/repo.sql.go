package planet

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

// Find returns a planet by ID.
func (r *Repository) Find(ctx context.Context, id int64) (*Planet, error) {
	var p Planet
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, public FROM planets WHERE id = $1`, id).
		Scan(&p.ID, &p.OwnerID, &p.Name, &p.Public)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
