// Package message implements the chat message pipeline: validation,
// persistence, channel-state bumps and live fan-out.
package message

import (
	"context"
	"strings"
	"time"

	"github.com/novachat/nova/internal/shared"
)

// Content limits enforced before anything is persisted or relayed.
const (
	MaxContentLength = 2048
	MaxEmbedLength   = 65535
)

// Message is a channel message inside a planet.
type Message struct {
	ID           int64     `json:"id"`
	ChannelID    int64     `json:"channelId"`
	PlanetID     int64     `json:"planetId"`
	AuthorUserID int64     `json:"authorUserId"`
	Content      string    `json:"content"`
	EmbedData    string    `json:"embedData,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DirectMessage is a user-to-user message outside any planet.
type DirectMessage struct {
	ID           int64     `json:"id"`
	AuthorUserID int64     `json:"authorUserId"`
	TargetUserID int64     `json:"targetUserId"`
	Content      string    `json:"content"`
	EmbedData    string    `json:"embedData,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// validateBody applies the shared content rules for both message kinds.
func validateBody(content, embed string) error {
	if strings.TrimSpace(content) == "" && embed == "" {
		return shared.ErrValidation
	}
	if len(content) > MaxContentLength || len(embed) > MaxEmbedLength {
		return shared.ErrValidation
	}
	return nil
}

// Store persists messages.
type Store interface {
	Insert(ctx context.Context, m *Message) error
	Find(ctx context.Context, id int64) (*Message, error)
	Delete(ctx context.Context, id int64) error
	InsertDirect(ctx context.Context, m *DirectMessage) error
	FindDirect(ctx context.Context, id int64) (*DirectMessage, error)
	DeleteDirect(ctx context.Context, id int64) error
}
