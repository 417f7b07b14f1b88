package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/novachat/nova/internal/channel"
	"github.com/novachat/nova/internal/perms"
	"github.com/novachat/nova/internal/planet"
	"github.com/novachat/nova/internal/shared"
)

// Store provides member and role persistence.
type Store interface {
	Find(ctx context.Context, id int64) (*Member, error)
	FindByUser(ctx context.Context, userID, planetID int64) (*Member, error)
	RolesFor(ctx context.Context, memberID int64) ([]perms.Role, error)
	FindRole(ctx context.Context, roleID int64) (*perms.Role, error)
	HasRole(ctx context.Context, memberID, roleID int64) (bool, error)
	AttachRole(ctx context.Context, m *Member, roleID int64) error
	DetachRole(ctx context.Context, memberID, roleID int64) error
	SoftDelete(ctx context.Context, memberID int64) error
}

// PlanetStore looks up planets for ownership checks.
type PlanetStore interface {
	Find(ctx context.Context, id int64) (*planet.Planet, error)
}

// ChannelStore looks up channels and their permission nodes.
type ChannelStore interface {
	FindChannel(ctx context.Context, id int64) (*channel.Channel, error)
	NodesForTarget(ctx context.Context, targetID int64, kind perms.Kind, roleIDs []int64) (map[int64]*perms.Node, error)
}

// Notifier publishes membership changes to live listeners. Implemented by
// the realtime hub; a nil notifier is a no-op.
type Notifier interface {
	RoleMembershipChanged(planetID, memberID, roleID int64)
	RoleMembershipRemoved(planetID, memberID, roleID int64)
	MemberDeleted(planetID, memberID int64)
}

// Service orchestrates membership, role overlay resolution and privileged
// member actions.
type Service struct {
	store    Store
	planets  PlanetStore
	channels ChannelStore
	notifier Notifier
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, planets PlanetStore, channels ChannelStore, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, planets: planets, channels: channels, notifier: notifier, logger: logger}
}

// Find returns a live membership by ID. Soft-deleted members read as not
// found.
func (s *Service) Find(ctx context.Context, id int64) (*Member, error) {
	m, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, shared.ErrNotFound
	}
	return m, nil
}

// FindByUser returns the live membership for (user, planet). Soft-deleted
// members read as not found.
func (s *Service) FindByUser(ctx context.Context, userID, planetID int64) (*Member, error) {
	m, err := s.store.FindByUser(ctx, userID, planetID)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, shared.ErrNotFound
	}
	return m, nil
}

// Authority returns the member's privilege rank.
func (s *Service) Authority(ctx context.Context, m *Member) (int64, error) {
	p, err := s.planets.Find(ctx, m.PlanetID)
	if err != nil {
		return 0, err
	}
	if p.IsOwner(m.UserID) {
		return perms.Authority(true, nil), nil
	}
	roles, err := s.store.RolesFor(ctx, m.ID)
	if err != nil {
		return 0, err
	}
	if len(roles) == 0 {
		return perms.Authority(false, nil), nil
	}
	return perms.Authority(false, &roles[0]), nil
}

// HasPlanetPermission reports whether the member holds a planet-wide
// permission. The owner always does; otherwise any role granting the bit
// suffices.
func (s *Service) HasPlanetPermission(ctx context.Context, m *Member, perm perms.Permission) (bool, error) {
	if err := perms.CheckPair(perm, perms.KindPlanet); err != nil {
		return false, err
	}
	p, err := s.planets.Find(ctx, m.PlanetID)
	if err != nil {
		return false, err
	}
	if p.IsOwner(m.UserID) {
		return true, nil
	}
	roles, err := s.store.RolesFor(ctx, m.ID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if perms.Has(role.PlanetPerms, perm) {
			return true, nil
		}
	}
	return false, nil
}

// ChannelPermissions resolves the member's effective mask for a channel by
// overlaying the member's role nodes, falling back to category nodes when
// the channel inherits.
func (s *Service) ChannelPermissions(ctx context.Context, m *Member, ch *channel.Channel) (uint64, error) {
	p, err := s.planets.Find(ctx, ch.PlanetID)
	if err != nil {
		return 0, err
	}
	if p.IsOwner(m.UserID) {
		return perms.Resolve(true, nil), nil
	}

	roles, err := s.store.RolesFor(ctx, m.ID)
	if err != nil {
		return 0, err
	}
	roleIDs := make([]int64, len(roles))
	for i, role := range roles {
		roleIDs[i] = role.ID
	}

	nodes, err := s.channels.NodesForTarget(ctx, ch.ID, perms.KindChannel, roleIDs)
	if err != nil {
		return 0, err
	}
	var fallback map[int64]*perms.Node
	if ch.InheritsPerms && ch.ParentID != nil {
		fallback, err = s.channels.NodesForTarget(ctx, *ch.ParentID, perms.KindCategory, roleIDs)
		if err != nil {
			return 0, err
		}
	}

	overlays := make([]perms.RoleOverlay, len(roles))
	for i, role := range roles {
		overlays[i] = perms.RoleOverlay{Role: role, Node: nodes[role.ID], Fallback: fallback[role.ID]}
	}
	return perms.Resolve(false, overlays), nil
}

// HasChannelPermission checks one channel permission bit for the member.
func (s *Service) HasChannelPermission(ctx context.Context, m *Member, ch *channel.Channel, perm perms.Permission) (bool, error) {
	if err := perms.CheckPair(perm, perms.KindChannel); err != nil {
		return false, err
	}
	mask, err := s.ChannelPermissions(ctx, m, ch)
	if err != nil {
		return false, err
	}
	return perms.Has(mask, perm), nil
}

// AddRole grants a role to a member on behalf of an actor. The actor needs
// the manage-roles bit and at least the role's authority; both checks must
// pass.
func (s *Service) AddRole(ctx context.Context, actor, target *Member, roleID int64) error {
	role, err := s.store.FindRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.PlanetID != target.PlanetID {
		return shared.ErrNotFound
	}

	if err := s.requireRoleManagement(ctx, actor, role); err != nil {
		return err
	}

	held, err := s.store.HasRole(ctx, target.ID, roleID)
	if err != nil {
		return s.storageFailure("check role membership", err)
	}
	if held {
		return fmt.Errorf("%w: member already has this role", shared.ErrValidation)
	}

	if err := s.store.AttachRole(ctx, target, roleID); err != nil {
		return s.storageFailure("attach role", err)
	}
	if s.notifier != nil {
		s.notifier.RoleMembershipChanged(target.PlanetID, target.ID, roleID)
	}
	return nil
}

// RemoveRole revokes a role from a member on behalf of an actor.
func (s *Service) RemoveRole(ctx context.Context, actor, target *Member, roleID int64) error {
	role, err := s.store.FindRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.PlanetID != target.PlanetID {
		return shared.ErrNotFound
	}

	if err := s.requireRoleManagement(ctx, actor, role); err != nil {
		return err
	}

	if err := s.store.DetachRole(ctx, target.ID, roleID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: member does not have this role", shared.ErrValidation)
		}
		return s.storageFailure("detach role", err)
	}
	if s.notifier != nil {
		s.notifier.RoleMembershipRemoved(target.PlanetID, target.ID, roleID)
	}
	return nil
}

// Kick soft-deletes a membership. Members may always remove themselves;
// removing another member requires the kick bit plus an authority at or
// above the target's.
func (s *Service) Kick(ctx context.Context, actor, target *Member) error {
	if actor.ID != target.ID {
		allowed, err := s.HasPlanetPermission(ctx, actor, perms.PlanetKick)
		if err != nil {
			return err
		}
		if !allowed {
			return shared.ErrPermissionDenied
		}

		actorAuth, err := s.Authority(ctx, actor)
		if err != nil {
			return err
		}
		targetAuth, err := s.Authority(ctx, target)
		if err != nil {
			return err
		}
		if !perms.RequireAuthority(actorAuth, targetAuth) {
			return shared.ErrAuthorityInsufficient
		}
	}

	if err := s.store.SoftDelete(ctx, target.ID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		return s.storageFailure("soft delete member", err)
	}
	if s.notifier != nil {
		s.notifier.MemberDeleted(target.PlanetID, target.ID)
	}
	return nil
}

func (s *Service) requireRoleManagement(ctx context.Context, actor *Member, role *perms.Role) error {
	allowed, err := s.HasPlanetPermission(ctx, actor, perms.PlanetManageRoles)
	if err != nil {
		return err
	}
	if !allowed {
		return shared.ErrPermissionDenied
	}

	actorAuth, err := s.Authority(ctx, actor)
	if err != nil {
		return err
	}
	if !perms.RequireAuthority(actorAuth, role.Authority()) {
		return shared.ErrAuthorityInsufficient
	}
	return nil
}

// storageFailure logs the underlying error and returns the generic storage
// sentinel so internals never leak to callers.
func (s *Service) storageFailure(op string, err error) error {
	s.logger.Error("member storage failure", slog.String("op", op), slog.Any("error", err))
	return shared.ErrStorage
}
