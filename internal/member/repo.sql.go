package member

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novachat/nova/internal/perms"
	"github.com/novachat/nova/internal/platform/db"
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

// Find returns a member by ID.
func (r *Repository) Find(ctx context.Context, id int64) (*Member, error) {
	return r.scanMember(ctx,
		`SELECT id, planet_id, user_id, nickname, is_deleted FROM planet_members WHERE id = $1`, id)
}

// FindByUser returns a member by (user, planet).
func (r *Repository) FindByUser(ctx context.Context, userID, planetID int64) (*Member, error) {
	return r.scanMember(ctx,
		`SELECT id, planet_id, user_id, nickname, is_deleted
		 FROM planet_members WHERE user_id = $1 AND planet_id = $2`, userID, planetID)
}

func (r *Repository) scanMember(ctx context.Context, query string, args ...any) (*Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, query, args...).
		Scan(&m.ID, &m.PlanetID, &m.UserID, &m.Nickname, &m.IsDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// RolesFor returns the member's roles ordered by position ascending, highest
// priority first.
func (r *Repository) RolesFor(ctx context.Context, memberID int64) ([]perms.Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.planet_id, r.position, r.name, r.planet_perms
		 FROM planet_roles r
		 JOIN planet_role_members rm ON rm.role_id = r.id
		 WHERE rm.member_id = $1
		 ORDER BY r.position`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []perms.Role
	for rows.Next() {
		var role perms.Role
		if err := rows.Scan(&role.ID, &role.PlanetID, &role.Position, &role.Name, &role.PlanetPerms); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// FindRole returns a role by ID.
func (r *Repository) FindRole(ctx context.Context, roleID int64) (*perms.Role, error) {
	var role perms.Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, planet_id, position, name, planet_perms FROM planet_roles WHERE id = $1`, roleID).
		Scan(&role.ID, &role.PlanetID, &role.Position, &role.Name, &role.PlanetPerms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// HasRole reports whether the member holds the role.
func (r *Repository) HasRole(ctx context.Context, memberID, roleID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM planet_role_members WHERE member_id = $1 AND role_id = $2)`,
		memberID, roleID).Scan(&exists)
	return exists, err
}

// AttachRole grants a role to a member. A duplicate grant surfaces as a
// validation error via the unique constraint.
func (r *Repository) AttachRole(ctx context.Context, m *Member, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO planet_role_members (member_id, role_id, user_id, planet_id)
		 VALUES ($1, $2, $3, $4)`,
		m.ID, roleID, m.UserID, m.PlanetID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrValidation
	}
	return err
}

// DetachRole revokes a role from a member.
func (r *Repository) DetachRole(ctx context.Context, memberID, roleID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM planet_role_members WHERE member_id = $1 AND role_id = $2`, memberID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SoftDelete flips the member's deleted flag and removes its role rows as a
// single atomic unit.
func (r *Repository) SoftDelete(ctx context.Context, memberID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM planet_role_members WHERE member_id = $1`, memberID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE planet_members SET is_deleted = TRUE WHERE id = $1`, memberID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}
