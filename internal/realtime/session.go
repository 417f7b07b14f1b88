package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/novachat/nova/internal/channel"
	"github.com/novachat/nova/internal/channelstate"
	"github.com/novachat/nova/internal/identity"
	"github.com/novachat/nova/internal/member"
	"github.com/novachat/nova/internal/perms"
	"github.com/novachat/nova/internal/shared"
)

// Authorizer resolves opaque tokens to identities.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*identity.Token, error)
}

// MemberFinder resolves memberships and channel permissions.
type MemberFinder interface {
	FindByUser(ctx context.Context, userID, planetID int64) (*member.Member, error)
	HasChannelPermission(ctx context.Context, m *member.Member, ch *channel.Channel, perm perms.Permission) (bool, error)
}

// ChannelFinder looks up channels.
type ChannelFinder interface {
	FindChannel(ctx context.Context, id int64) (*channel.Channel, error)
}

// CursorRefresher refreshes read cursors on channel join.
type CursorRefresher interface {
	RefreshOnJoin(ctx context.Context, userID, channelID int64) (*channelstate.Cursor, error)
}

// CursorFlusher queues a cursor write for background retry.
type CursorFlusher interface {
	EnqueueCursorFlush(ctx context.Context, userID, channelID, lastSeen int64) error
}

// SessionDeps groups the collaborators a Session needs. Flusher is optional;
// without it a failed cursor write is only logged.
type SessionDeps struct {
	Registry  *Registry
	Broadcast *Broadcaster
	Identity  Authorizer
	Members   MemberFinder
	Channels  ChannelFinder
	Cursors   CursorRefresher
	Flusher   CursorFlusher
	Logger    *slog.Logger
}

// Session drives the realtime operations for one connection. Operations on
// a single session are invoked in the order the connection sent them; the
// transport adapter owns that serialization.
type Session struct {
	conn Conn
	deps SessionDeps
}

// NewSession registers the connection and returns its session.
func NewSession(conn Conn, deps SessionDeps) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Registry.Register(conn)
	return &Session{conn: conn, deps: deps}
}

// Authorize validates the token and binds the identity to the connection.
// On failure the connection stays unauthenticated and every join fails
// closed.
func (s *Session) Authorize(ctx context.Context, token string) shared.Result {
	authToken, err := s.deps.Identity.Authorize(ctx, token)
	if err != nil {
		if !errors.Is(err, shared.ErrAuthFailure) {
			s.deps.Logger.Error("authorize connection", slog.Any("error", err))
		}
		return shared.Fail("Failed to authenticate connection.")
	}
	if !s.deps.Registry.Bind(s.conn.ID(), authToken) {
		return shared.Fail("Failed to authenticate connection.")
	}
	return shared.OK("Authenticated connection successfully.")
}

// JoinUser subscribes the connection to the user's own event group and
// registers it as a primary connection for presence.
func (s *Session) JoinUser(ctx context.Context) shared.Result {
	token := s.deps.Registry.Identity(s.conn.ID())
	if token == nil {
		return shared.Fail("Failed to connect to user: connection is not authenticated.")
	}

	groupKey := UserGroup(token.UserID)
	if !s.deps.Registry.JoinGroup(s.conn.ID(), groupKey) {
		return shared.Fail("Failed to connect to user: connection is closed.")
	}
	s.deps.Registry.AddPrimary(ctx, s.conn.ID(), token.UserID)
	return shared.OK("Connected to user " + groupKey)
}

// LeaveUser drops the user group subscription and presence registration.
func (s *Session) LeaveUser(ctx context.Context) {
	token := s.deps.Registry.Identity(s.conn.ID())
	if token == nil {
		return
	}
	s.deps.Registry.LeaveGroup(s.conn.ID(), UserGroup(token.UserID))
	s.deps.Registry.RemovePrimary(ctx, s.conn.ID(), token.UserID)
}

// JoinPlanet subscribes to planet-wide events. Requires a live membership.
func (s *Session) JoinPlanet(ctx context.Context, planetID int64) shared.Result {
	token := s.deps.Registry.Identity(s.conn.ID())
	if token == nil {
		return shared.Fail("Failed to connect to planet: connection is not authenticated.")
	}

	if _, err := s.deps.Members.FindByUser(ctx, token.UserID, planetID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Fail("Failed to connect to planet: you are not a member.")
		}
		s.deps.Logger.Error("join planet membership lookup", slog.Any("error", err))
		return shared.Fail("Failed to connect to planet.")
	}

	if !s.deps.Registry.JoinGroup(s.conn.ID(), PlanetGroup(planetID)) {
		return shared.Fail("Failed to connect to planet: connection is closed.")
	}
	return shared.OK(fmt.Sprintf("Connected to planet %d", planetID))
}

// LeavePlanet is an idempotent unsubscribe.
func (s *Session) LeavePlanet(planetID int64) {
	s.deps.Registry.LeaveGroup(s.conn.ID(), PlanetGroup(planetID))
}

// JoinChannel subscribes to a channel's messages after a view-permission
// check, then refreshes the user's read cursor to the channel's current
// state and tells the user's other devices about the new position. Joining
// an already-joined channel repeats the cursor refresh without duplicating
// membership.
func (s *Session) JoinChannel(ctx context.Context, channelID int64) shared.Result {
	token := s.deps.Registry.Identity(s.conn.ID())
	if token == nil {
		return shared.Fail("Failed to connect to channel: connection is not authenticated.")
	}

	ch, err := s.deps.Channels.FindChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Fail("Failed to connect to channel: channel was not found.")
		}
		s.deps.Logger.Error("join channel lookup", slog.Any("error", err))
		return shared.Fail("Failed to connect to channel.")
	}

	m, err := s.deps.Members.FindByUser(ctx, token.UserID, ch.PlanetID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Fail("Failed to connect to channel: you are not a member.")
		}
		s.deps.Logger.Error("join channel membership lookup", slog.Any("error", err))
		return shared.Fail("Failed to connect to channel.")
	}

	allowed, err := s.deps.Members.HasChannelPermission(ctx, m, ch, perms.ChannelView)
	if err != nil {
		s.deps.Logger.Error("join channel permission check", slog.Any("error", err))
		return shared.Fail("Failed to connect to channel.")
	}
	if !allowed {
		return shared.Fail("Failed to connect to channel: member lacks view permission.")
	}

	if !s.deps.Registry.JoinGroup(s.conn.ID(), ChannelGroup(channelID)) {
		return shared.Fail("Failed to connect to channel: connection is closed.")
	}

	cursor, err := s.deps.Cursors.RefreshOnJoin(ctx, token.UserID, channelID)
	if err != nil {
		// Membership is established; hand the write to the worker to retry.
		s.deps.Logger.Warn("cursor refresh on join", slog.Int64("channel_id", channelID), slog.Any("error", err))
		if cursor != nil && s.deps.Flusher != nil {
			if qerr := s.deps.Flusher.EnqueueCursorFlush(ctx, token.UserID, channelID, cursor.LastSeen); qerr != nil {
				s.deps.Logger.Warn("queue cursor flush", slog.Int64("channel_id", channelID), slog.Any("error", qerr))
			}
		}
	} else if event, err := NewEvent(EventChannelStateUpdate, cursor); err == nil {
		s.deps.Broadcast.Publish(UserGroup(token.UserID), event)
	}

	return shared.OK(fmt.Sprintf("Connected to channel %d", channelID))
}

// LeaveChannel is an idempotent unsubscribe.
func (s *Session) LeaveChannel(channelID int64) {
	s.deps.Registry.LeaveGroup(s.conn.ID(), ChannelGroup(channelID))
}

// JoinInteractionGroup subscribes to embed interactions for a planet.
// Membership is required; no permission bit is checked.
func (s *Session) JoinInteractionGroup(ctx context.Context, planetID int64) shared.Result {
	token := s.deps.Registry.Identity(s.conn.ID())
	if token == nil {
		return shared.Fail("Failed to connect to interaction group: connection is not authenticated.")
	}

	if _, err := s.deps.Members.FindByUser(ctx, token.UserID, planetID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Fail("Failed to connect to interaction group: you are not a member.")
		}
		s.deps.Logger.Error("join interaction membership lookup", slog.Any("error", err))
		return shared.Fail("Failed to connect to interaction group.")
	}

	if !s.deps.Registry.JoinGroup(s.conn.ID(), InteractionGroup(planetID)) {
		return shared.Fail("Failed to connect to interaction group: connection is closed.")
	}
	return shared.OK(fmt.Sprintf("Connected to interaction group %d", planetID))
}

// LeaveInteractionGroup is an idempotent unsubscribe.
func (s *Session) LeaveInteractionGroup(planetID int64) {
	s.deps.Registry.LeaveGroup(s.conn.ID(), InteractionGroup(planetID))
}

// Ping answers liveness probes.
func (s *Session) Ping() string {
	return "Pong"
}

// Disconnect tears the connection down. Safe to call more than once.
func (s *Session) Disconnect(ctx context.Context) {
	s.deps.Registry.Disconnect(ctx, s.conn.ID())
}
