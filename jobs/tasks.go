// Package jobs holds the background task definitions and the Asynq worker
// wiring.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/novachat/nova/internal/channelstate"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPresenceSweep drops node-locator entries for dead nodes.
	TaskPresenceSweep = "presence:sweep"
	// TaskCursorFlush re-persists read cursors that were advanced in memory.
	TaskCursorFlush = "cursor:flush"
)

// PresenceSweeper removes presence entries whose node stopped heartbeating.
type PresenceSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

// NewPresenceSweepTask constructs an Asynq task.
func NewPresenceSweepTask() *asynq.Task {
	return asynq.NewTask(TaskPresenceSweep, nil)
}

// HandlePresenceSweepTask returns the handler for TaskPresenceSweep tasks.
func HandlePresenceSweepTask(sweeper PresenceSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := sweeper.SweepStale(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("presence sweep", slog.Int("removed", removed))
		}
		return nil
	}
}

// CursorFlushPayload identifies one cursor to re-persist.
type CursorFlushPayload struct {
	UserID    int64 `json:"userId"`
	ChannelID int64 `json:"channelId"`
	LastSeen  int64 `json:"lastSeen"`
}

// CursorAdvancer moves a stored cursor forward. Backward moves are no-ops.
type CursorAdvancer interface {
	Advance(ctx context.Context, userID, channelID, toState int64) (*channelstate.Cursor, error)
}

// NewCursorFlushTask constructs an Asynq task.
func NewCursorFlushTask(payload CursorFlushPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCursorFlush, data), nil
}

// HandleCursorFlushTask returns the handler for TaskCursorFlush tasks. The
// advance is forward-only, so replaying a stale flush is harmless.
func HandleCursorFlushTask(cursors CursorAdvancer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CursorFlushPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if _, err := cursors.Advance(ctx, payload.UserID, payload.ChannelID, payload.LastSeen); err != nil {
			logger.Warn("cursor flush", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
			return err
		}
		return nil
	}
}
