package realtime

import (
	"encoding/json"
	"fmt"
)

// Event is one server-to-client push frame. Payload is pre-encoded so a
// single event can be fanned out to many connections without re-marshaling.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Push event names.
const (
	EventMessageRelay       = "message.relay"
	EventMessageDelete      = "message.delete"
	EventDirectRelay        = "dm.relay"
	EventDirectDelete       = "dm.delete"
	EventUserChange         = "user.update"
	EventUserDelete         = "user.delete"
	EventChannelStateUpdate = "channelstate.update"
	EventItemChange         = "item.update"
	EventItemDelete         = "item.delete"
	EventPlanetChange       = "planet.update"
	EventPlanetDelete       = "planet.delete"
	EventInteraction        = "interaction.event"
	EventPersonalEmbed      = "embed.personal"
	EventChannelEmbed       = "embed.channel"
)

// NewEvent encodes a payload into an Event.
func NewEvent(name string, payload any) (Event, error) {
	if payload == nil {
		return Event{Name: name}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("realtime: encode %s event: %w", name, err)
	}
	return Event{Name: name, Payload: data}, nil
}
