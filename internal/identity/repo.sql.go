package identity

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

// FindToken returns the token record by ID.
func (r *Repository) FindToken(ctx context.Context, id string) (*Token, error) {
	var token Token
	err := r.pool.QueryRow(ctx,
		`SELECT id, app_id, user_id, scope, time_created, time_expires, issued_address
		 FROM auth_tokens WHERE id = $1`, id).
		Scan(&token.ID, &token.AppID, &token.UserID, &token.Scope, &token.IssuedAt, &token.ExpiresAt, &token.IssuedAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// InsertToken stores a freshly issued token.
func (r *Repository) InsertToken(ctx context.Context, token *Token) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_tokens (id, app_id, user_id, scope, time_created, time_expires, issued_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.AppID, token.UserID, token.Scope, token.IssuedAt, token.ExpiresAt, token.IssuedAddr)
	return err
}

// DeleteToken removes a token record.
func (r *Repository) DeleteToken(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindCredential returns the login record for an email.
func (r *Repository) FindCredential(ctx context.Context, email string) (*Credential, error) {
	var cred Credential
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, is_active FROM users WHERE email = $1`, email).
		Scan(&cred.UserID, &cred.Email, &cred.PasswordHash, &cred.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}
