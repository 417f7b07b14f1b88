package channelstate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/novachat/nova/internal/shared"
)

// Cursor is a user's last observed state counter value for one channel.
type Cursor struct {
	UserID    int64 `json:"userId"`
	ChannelID int64 `json:"channelId"`
	LastSeen  int64 `json:"lastSeen"`
}

// CursorStore persists read cursors. Upsert must keep the stored value
// forward-only: a write below the current value leaves the row unchanged, so
// concurrent writers cannot move a cursor backward.
type CursorStore interface {
	Find(ctx context.Context, userID, channelID int64) (*Cursor, error)
	Upsert(ctx context.Context, cursor *Cursor) error
}

// Tracker combines the channel state counter with per-user read cursors.
type Tracker struct {
	states *StateService
	store  CursorStore
	logger *slog.Logger
}

// NewTracker constructs a Tracker.
func NewTracker(states *StateService, store CursorStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{states: states, store: store, logger: logger}
}

// Unread returns how far the user's cursor trails the channel state.
func (t *Tracker) Unread(ctx context.Context, userID, channelID int64) (int64, error) {
	current, err := t.states.Current(ctx, channelID)
	if err != nil {
		return 0, err
	}
	cursor, err := t.store.Find(ctx, userID, channelID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return current, nil
		}
		return 0, err
	}
	return current - cursor.LastSeen, nil
}

// Advance moves the stored cursor forward. A request for a value at or below
// the stored one is a no-op; the early return is a fast path only, the store's
// Upsert enforces the forward-only rule under concurrent advances.
func (t *Tracker) Advance(ctx context.Context, userID, channelID, toState int64) (*Cursor, error) {
	cursor, err := t.store.Find(ctx, userID, channelID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		cursor = &Cursor{UserID: userID, ChannelID: channelID}
	}
	if toState <= cursor.LastSeen {
		return cursor, nil
	}
	cursor.LastSeen = toState
	if err := t.store.Upsert(ctx, cursor); err != nil {
		return nil, err
	}
	return cursor, nil
}

// RefreshOnJoin loads or creates the user's cursor for a channel and sets it
// to the channel's current state. Called on every channel join, so a repeat
// join simply refreshes the cursor. When the counter was read but the write
// failed, the returned cursor carries the intended target alongside the error
// so the caller can retry the write out of band.
func (t *Tracker) RefreshOnJoin(ctx context.Context, userID, channelID int64) (*Cursor, error) {
	current, err := t.states.Current(ctx, channelID)
	if err != nil {
		return nil, err
	}
	cursor, err := t.Advance(ctx, userID, channelID, current)
	if err != nil {
		return &Cursor{UserID: userID, ChannelID: channelID, LastSeen: current}, err
	}
	return cursor, nil
}
