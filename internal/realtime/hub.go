package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
)

// DirectRelayer forwards direct-message events to whichever node hosts the
// target user. Implemented by the relay service; delivery is best-effort.
type DirectRelayer interface {
	RelayDirect(ctx context.Context, payload json.RawMessage, targetUserID int64)
	RelayDirectDeletion(ctx context.Context, payload json.RawMessage, targetUserID int64)
}

// Hub publishes domain events to their owning broadcast groups. It is the
// single entry point services use to reach live connections.
type Hub struct {
	broadcast *Broadcaster
	relayer   DirectRelayer
	logger    *slog.Logger
}

// NewHub constructs a Hub. relayer may be nil on single-node deployments;
// direct messages then only reach locally hosted users.
func NewHub(broadcast *Broadcaster, relayer DirectRelayer, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{broadcast: broadcast, relayer: relayer, logger: logger}
}

// SetRelayer installs the cross-node relayer after construction. The hub
// and relay service reference each other, so one side is wired late.
func (h *Hub) SetRelayer(relayer DirectRelayer) {
	h.relayer = relayer
}

func (h *Hub) publish(groupKey, name string, payload any) {
	event, err := NewEvent(name, payload)
	if err != nil {
		h.logger.Error("encode push event", slog.String("event", name), slog.Any("error", err))
		return
	}
	h.broadcast.Publish(groupKey, event)
}

// RelayMessage pushes a posted message to the channel's subscribers.
func (h *Hub) RelayMessage(channelID int64, message any) {
	h.publish(ChannelGroup(channelID), EventMessageRelay, message)
}

// NotifyMessageDeletion pushes a message removal to the channel's
// subscribers.
func (h *Hub) NotifyMessageDeletion(channelID int64, message any) {
	h.publish(ChannelGroup(channelID), EventMessageDelete, message)
}

// RelayDirectMessage routes a direct message toward the target user,
// crossing nodes when needed.
func (h *Hub) RelayDirectMessage(ctx context.Context, payload json.RawMessage, targetUserID int64) {
	if h.relayer == nil {
		h.DeliverDirect(payload, targetUserID)
		return
	}
	h.relayer.RelayDirect(ctx, payload, targetUserID)
}

// NotifyDirectMessageDeletion routes a direct-message removal toward the
// target user, crossing nodes when needed.
func (h *Hub) NotifyDirectMessageDeletion(ctx context.Context, payload json.RawMessage, targetUserID int64) {
	if h.relayer == nil {
		h.DeliverDirectDeletion(payload, targetUserID)
		return
	}
	h.relayer.RelayDirectDeletion(ctx, payload, targetUserID)
}

// DeliverDirect fans a direct message out to the target user's local
// connections. Called by the relay surface once the event reaches the
// hosting node.
func (h *Hub) DeliverDirect(payload json.RawMessage, targetUserID int64) {
	h.broadcast.Publish(UserGroup(targetUserID), Event{Name: EventDirectRelay, Payload: payload})
}

// DeliverDirectDeletion fans a direct-message removal out to the target
// user's local connections.
func (h *Hub) DeliverDirectDeletion(payload json.RawMessage, targetUserID int64) {
	h.broadcast.Publish(UserGroup(targetUserID), Event{Name: EventDirectDelete, Payload: payload})
}

// NotifyUserChange pushes a profile update to all of the user's devices.
func (h *Hub) NotifyUserChange(userID int64, user any) {
	h.publish(UserGroup(userID), EventUserChange, user)
}

// NotifyUserDelete pushes an account removal to all of the user's devices.
func (h *Hub) NotifyUserDelete(userID int64, user any) {
	h.publish(UserGroup(userID), EventUserDelete, user)
}

// NotifyChannelStateUpdate tells a user's devices about a moved read
// cursor.
func (h *Hub) NotifyChannelStateUpdate(userID int64, cursor any) {
	h.publish(UserGroup(userID), EventChannelStateUpdate, cursor)
}

// NotifyPlanetItemChange pushes a planet-scoped item update.
func (h *Hub) NotifyPlanetItemChange(planetID int64, item any) {
	h.publish(PlanetGroup(planetID), EventItemChange, item)
}

// NotifyPlanetItemDelete pushes a planet-scoped item removal.
func (h *Hub) NotifyPlanetItemDelete(planetID int64, item any) {
	h.publish(PlanetGroup(planetID), EventItemDelete, item)
}

// NotifyPlanetChange pushes a planet update.
func (h *Hub) NotifyPlanetChange(planetID int64, planet any) {
	h.publish(PlanetGroup(planetID), EventPlanetChange, planet)
}

// NotifyPlanetDelete pushes a planet removal.
func (h *Hub) NotifyPlanetDelete(planetID int64, planet any) {
	h.publish(PlanetGroup(planetID), EventPlanetDelete, planet)
}

// NotifyInteractionEvent pushes an embed interaction to its planet scope.
func (h *Hub) NotifyInteractionEvent(planetID int64, interaction any) {
	h.publish(InteractionGroup(planetID), EventInteraction, interaction)
}

// NotifyPersonalEmbedUpdate pushes an embed update targeted at one user.
func (h *Hub) NotifyPersonalEmbedUpdate(targetUserID int64, update any) {
	h.publish(UserGroup(targetUserID), EventPersonalEmbed, update)
}

// NotifyChannelEmbedUpdate pushes an embed update scoped to a channel.
func (h *Hub) NotifyChannelEmbedUpdate(channelID int64, update any) {
	h.publish(ChannelGroup(channelID), EventChannelEmbed, update)
}

// roleMembershipEvent is the payload for role grant/revoke pushes.
type roleMembershipEvent struct {
	PlanetID int64 `json:"planetId"`
	MemberID int64 `json:"memberId"`
	RoleID   int64 `json:"roleId,omitempty"`
}

// RoleMembershipChanged implements member.Notifier.
func (h *Hub) RoleMembershipChanged(planetID, memberID, roleID int64) {
	h.NotifyPlanetItemChange(planetID, roleMembershipEvent{PlanetID: planetID, MemberID: memberID, RoleID: roleID})
}

// RoleMembershipRemoved implements member.Notifier.
func (h *Hub) RoleMembershipRemoved(planetID, memberID, roleID int64) {
	h.NotifyPlanetItemDelete(planetID, roleMembershipEvent{PlanetID: planetID, MemberID: memberID, RoleID: roleID})
}

// MemberDeleted implements member.Notifier.
func (h *Hub) MemberDeleted(planetID, memberID int64) {
	h.NotifyPlanetItemDelete(planetID, roleMembershipEvent{PlanetID: planetID, MemberID: memberID})
}
