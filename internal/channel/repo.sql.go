package channel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novachat/nova/internal/perms"
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

// FindChannel returns a chat channel by ID.
func (r *Repository) FindChannel(ctx context.Context, id int64) (*Channel, error) {
	var ch Channel
	err := r.pool.QueryRow(ctx,
		`SELECT id, planet_id, parent_id, name, position, description, inherits_perms
		 FROM planet_channels WHERE id = $1`, id).
		Scan(&ch.ID, &ch.PlanetID, &ch.ParentID, &ch.Name, &ch.Position, &ch.Description, &ch.InheritsPerms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// FindCategory returns a category by ID.
func (r *Repository) FindCategory(ctx context.Context, id int64) (*Category, error) {
	var cat Category
	err := r.pool.QueryRow(ctx,
		`SELECT id, planet_id, parent_id, name, position FROM planet_categories WHERE id = $1`, id).
		Scan(&cat.ID, &cat.PlanetID, &cat.ParentID, &cat.Name, &cat.Position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &cat, nil
}

// NodesForTarget returns permission nodes for one target keyed by role ID.
// Targets with no nodes yield an empty map; nodes are created lazily per
// role and target, so absence is the common case.
func (r *Repository) NodesForTarget(ctx context.Context, targetID int64, kind perms.Kind, roleIDs []int64) (map[int64]*perms.Node, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role_id, target_id, target_kind, allow_mask, deny_mask
		 FROM permission_nodes WHERE target_id = $1 AND target_kind = $2 AND role_id = ANY($3)`,
		targetID, int16(kind), roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make(map[int64]*perms.Node)
	for rows.Next() {
		var node perms.Node
		var k int16
		if err := rows.Scan(&node.RoleID, &node.TargetID, &k, &node.Allow, &node.Deny); err != nil {
			return nil, err
		}
		node.TargetKind = perms.Kind(k)
		nodes[node.RoleID] = &node
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// UpsertNode writes a role's allow/deny masks for one target.
func (r *Repository) UpsertNode(ctx context.Context, node *perms.Node) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO permission_nodes (role_id, target_id, target_kind, allow_mask, deny_mask)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (role_id, target_id, target_kind)
		 DO UPDATE SET allow_mask = EXCLUDED.allow_mask, deny_mask = EXCLUDED.deny_mask`,
		node.RoleID, node.TargetID, int16(node.TargetKind), node.Allow, node.Deny)
	return err
}
