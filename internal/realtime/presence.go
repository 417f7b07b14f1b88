package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresence implements PresenceStore on Redis. One key per online user
// names the hosting node; node liveness keys let the sweep job clear
// entries left behind by dead nodes.
type RedisPresence struct {
	client *redis.Client
}

// NewRedisPresence constructs a RedisPresence.
func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func primaryKey(userID int64) string {
	return fmt.Sprintf("primary:%d", userID)
}

func nodeKey(node string) string {
	return "node:" + node
}

// Deletes the user's placement only when it still points at this node, so a
// user reconnecting to another node is not clobbered by a late offline.
var offlineScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SetOnline records the node hosting the user's primary connections.
func (p *RedisPresence) SetOnline(ctx context.Context, userID int64, node string) error {
	return p.client.Set(ctx, primaryKey(userID), node, 0).Err()
}

// SetOffline clears the user's placement if it still belongs to this node.
func (p *RedisPresence) SetOffline(ctx context.Context, userID int64, node string) error {
	return offlineScript.Run(ctx, p.client, []string{primaryKey(userID)}, node).Err()
}

// NodeFor returns the node hosting the user, or "" when offline.
func (p *RedisPresence) NodeFor(ctx context.Context, userID int64) (string, error) {
	node, err := p.client.Get(ctx, primaryKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return node, nil
}

// Heartbeat marks this node alive for the given window.
func (p *RedisPresence) Heartbeat(ctx context.Context, node string, ttl time.Duration) error {
	return p.client.Set(ctx, nodeKey(node), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// NodeAlive reports whether a node's heartbeat is current.
func (p *RedisPresence) NodeAlive(ctx context.Context, node string) (bool, error) {
	err := p.client.Get(ctx, nodeKey(node)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SweepStale removes placements pointing at nodes without a live heartbeat.
// Returns how many entries were dropped.
func (p *RedisPresence) SweepStale(ctx context.Context) (int, error) {
	var dropped int
	iter := p.client.Scan(ctx, 0, "primary:*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		node, err := p.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return dropped, err
		}
		alive, err := p.NodeAlive(ctx, node)
		if err != nil {
			return dropped, err
		}
		if !alive {
			if err := p.client.Del(ctx, key).Err(); err != nil {
				return dropped, err
			}
			dropped++
		}
	}
	if err := iter.Err(); err != nil {
		return dropped, err
	}
	return dropped, nil
}
