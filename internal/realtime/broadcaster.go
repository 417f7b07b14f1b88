package realtime

import (
	"log/slog"
)

// Broadcaster delivers events to every connection joined to a group.
// Delivery order across connections is unspecified; per-connection ordering
// is owned by the Conn implementation.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
	observer PublishObserver
}

// PublishObserver counts publishes for metrics. May be nil.
type PublishObserver interface {
	EventPublished(event string, recipients int)
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(registry *Registry, observer PublishObserver, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{registry: registry, observer: observer, logger: logger}
}

// Publish sends the event to every current member of the group. Publishing
// to an empty group is a no-op. Send failures are logged and skipped; the
// database remains the durable source of truth.
func (b *Broadcaster) Publish(groupKey string, event Event) {
	members := b.registry.GroupMembers(groupKey)
	for _, conn := range members {
		if err := conn.Send(event); err != nil {
			b.logger.Warn("event send failed",
				slog.String("group", groupKey),
				slog.String("event", event.Name),
				slog.String("conn_id", conn.ID()),
				slog.Any("error", err))
		}
	}
	if b.observer != nil {
		b.observer.EventPublished(event.Name, len(members))
	}
}
