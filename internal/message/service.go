package message

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/novachat/nova/internal/channel"
	"github.com/novachat/nova/internal/member"
	"github.com/novachat/nova/internal/perms"
	"github.com/novachat/nova/internal/shared"
)

// ChannelFinder resolves channels for permission checks.
type ChannelFinder interface {
	FindChannel(ctx context.Context, id int64) (*channel.Channel, error)
}

// MemberGuard answers membership and channel-permission questions.
type MemberGuard interface {
	FindByUser(ctx context.Context, userID, planetID int64) (*member.Member, error)
	HasChannelPermission(ctx context.Context, m *member.Member, ch *channel.Channel, perm perms.Permission) (bool, error)
}

// StateBumper advances the per-channel state counter.
type StateBumper interface {
	Bump(ctx context.Context, channelID int64) (int64, error)
}

// Hub pushes accepted messages to live connections.
type Hub interface {
	RelayMessage(channelID int64, message any)
	NotifyMessageDeletion(channelID int64, message any)
	RelayDirectMessage(ctx context.Context, payload json.RawMessage, targetUserID int64)
	NotifyDirectMessageDeletion(ctx context.Context, payload json.RawMessage, targetUserID int64)
}

// Service runs the post/delete pipeline for channel and direct messages.
type Service struct {
	store    Store
	channels ChannelFinder
	members  MemberGuard
	state    StateBumper
	hub      Hub
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(store Store, channels ChannelFinder, members MemberGuard, state StateBumper, hub Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		channels: channels,
		members:  members,
		state:    state,
		hub:      hub,
		clock:    clock.New(),
		logger:   logger,
	}
}

// WithClock swaps the time source, for tests.
func (s *Service) WithClock(c clock.Clock) { s.clock = c }

// PostInput carries a channel message submission.
type PostInput struct {
	ChannelID   int64  `json:"channelId" validate:"required"`
	Content     string `json:"content"`
	EmbedData   string `json:"embedData"`
	Fingerprint string `json:"fingerprint"`
}

// Post validates, authorizes, persists and relays a channel message. The
// channel's state counter is bumped exactly once per accepted message.
func (s *Service) Post(ctx context.Context, authorUserID int64, in PostInput) (*Message, error) {
	if err := validateBody(in.Content, in.EmbedData); err != nil {
		return nil, err
	}

	ch, err := s.channels.FindChannel(ctx, in.ChannelID)
	if err != nil {
		return nil, err
	}
	m, err := s.members.FindByUser(ctx, authorUserID, ch.PlanetID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.members.HasChannelPermission(ctx, m, ch, perms.ChannelPostMessages)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, shared.ErrPermissionDenied
	}

	msg := &Message{
		ChannelID:    ch.ID,
		PlanetID:     ch.PlanetID,
		AuthorUserID: authorUserID,
		Content:      in.Content,
		EmbedData:    in.EmbedData,
		Fingerprint:  in.Fingerprint,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, s.storageFailure("insert message", err)
	}

	// The message is durable; a failed bump only delays unread badges, so
	// it is logged rather than surfaced.
	if _, err := s.state.Bump(ctx, ch.ID); err != nil {
		s.logger.Warn("bump channel state", slog.Int64("channel_id", ch.ID), slog.Any("error", err))
	}

	s.hub.RelayMessage(ch.ID, msg)
	return msg, nil
}

// Delete removes a channel message. Authors may delete their own messages;
// anyone else needs the manage-messages permission on the channel.
func (s *Service) Delete(ctx context.Context, actorUserID, messageID int64) error {
	msg, err := s.store.Find(ctx, messageID)
	if err != nil {
		return err
	}

	if msg.AuthorUserID != actorUserID {
		ch, err := s.channels.FindChannel(ctx, msg.ChannelID)
		if err != nil {
			return err
		}
		m, err := s.members.FindByUser(ctx, actorUserID, ch.PlanetID)
		if err != nil {
			return err
		}
		allowed, err := s.members.HasChannelPermission(ctx, m, ch, perms.ChannelManageMessages)
		if err != nil {
			return err
		}
		if !allowed {
			return shared.ErrPermissionDenied
		}
	}

	if err := s.store.Delete(ctx, messageID); err != nil {
		return s.storageFailure("delete message", err)
	}
	s.hub.NotifyMessageDeletion(msg.ChannelID, msg)
	return nil
}

// DirectPostInput carries a direct-message submission.
type DirectPostInput struct {
	TargetUserID int64  `json:"targetUserId" validate:"required"`
	Content      string `json:"content"`
	EmbedData    string `json:"embedData"`
	Fingerprint  string `json:"fingerprint"`
}

// PostDirect validates, persists and relays a direct message to both
// parties, wherever their nodes are.
func (s *Service) PostDirect(ctx context.Context, authorUserID int64, in DirectPostInput) (*DirectMessage, error) {
	if err := validateBody(in.Content, in.EmbedData); err != nil {
		return nil, err
	}
	if in.TargetUserID <= 0 || in.TargetUserID == authorUserID {
		return nil, shared.ErrValidation
	}

	msg := &DirectMessage{
		AuthorUserID: authorUserID,
		TargetUserID: in.TargetUserID,
		Content:      in.Content,
		EmbedData:    in.EmbedData,
		Fingerprint:  in.Fingerprint,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.store.InsertDirect(ctx, msg); err != nil {
		return nil, s.storageFailure("insert direct message", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("message: encode direct message: %w", err)
	}
	s.hub.RelayDirectMessage(ctx, payload, msg.TargetUserID)
	s.hub.RelayDirectMessage(ctx, payload, msg.AuthorUserID)
	return msg, nil
}

// DeleteDirect removes a direct message. Only the author may delete one.
func (s *Service) DeleteDirect(ctx context.Context, actorUserID, messageID int64) error {
	msg, err := s.store.FindDirect(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorUserID != actorUserID {
		return shared.ErrPermissionDenied
	}

	if err := s.store.DeleteDirect(ctx, messageID); err != nil {
		return s.storageFailure("delete direct message", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("message: encode direct message: %w", err)
	}
	s.hub.NotifyDirectMessageDeletion(ctx, payload, msg.TargetUserID)
	s.hub.NotifyDirectMessageDeletion(ctx, payload, msg.AuthorUserID)
	return nil
}

func (s *Service) storageFailure(op string, err error) error {
	s.logger.Error(op, slog.Any("error", err))
	return shared.ErrStorage
}
