package channelstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StateService maintains the monotonically increasing per-channel state
// counter, bumped once per accepted message.
type StateService struct {
	client *redis.Client
}

// NewStateService constructs a StateService.
func NewStateService(client *redis.Client) *StateService {
	return &StateService{client: client}
}

func stateKey(channelID int64) string {
	return fmt.Sprintf("chstate:%d", channelID)
}

// Current returns the channel's state counter. A channel that has never been
// posted to reads as zero.
func (s *StateService) Current(ctx context.Context, channelID int64) (int64, error) {
	value, err := s.client.Get(ctx, stateKey(channelID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("channelstate: read state: %w", err)
	}
	return value, nil
}

// Bump increments the channel's state counter and returns the new value.
func (s *StateService) Bump(ctx context.Context, channelID int64) (int64, error) {
	value, err := s.client.Incr(ctx, stateKey(channelID)).Result()
	if err != nil {
		return 0, fmt.Errorf("channelstate: bump state: %w", err)
	}
	return value, nil
}
