package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novachat/nova/internal/identity"
	"github.com/novachat/nova/internal/realtime"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []realtime.Event
	fail   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection gone")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) received() []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Event, len(c.events))
	copy(out, c.events)
	return out
}

type fakePresence struct {
	mu     sync.Mutex
	placed map[int64]string
}

func newFakePresence() *fakePresence {
	return &fakePresence{placed: make(map[int64]string)}
}

func (p *fakePresence) SetOnline(ctx context.Context, userID int64, node string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed[userID] = node
	return nil
}

func (p *fakePresence) SetOffline(ctx context.Context, userID int64, node string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.placed[userID] == node {
		delete(p.placed, userID)
	}
	return nil
}

func (p *fakePresence) NodeFor(ctx context.Context, userID int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placed[userID], nil
}

func TestJoinGroupIdempotent(t *testing.T) {
	registry := realtime.NewRegistry("node-a", nil, nil)
	conn := newFakeConn("conn-1")
	registry.Register(conn)

	require.True(t, registry.JoinGroup("conn-1", "c-7"))
	require.True(t, registry.JoinGroup("conn-1", "c-7"))
	assert.Len(t, registry.GroupMembers("c-7"), 1)

	// Leaving a never-joined group is a no-op.
	registry.LeaveGroup("conn-1", "c-99")
	assert.Len(t, registry.GroupMembers("c-7"), 1)

	registry.LeaveGroup("conn-1", "c-7")
	assert.Empty(t, registry.GroupMembers("c-7"))
}

func TestDisconnectRemovesAllMemberships(t *testing.T) {
	registry := realtime.NewRegistry("node-a", nil, nil)
	conn := newFakeConn("conn-1")
	registry.Register(conn)
	registry.Bind("conn-1", &identity.Token{ID: "tok", UserID: 42})

	registry.JoinGroup("conn-1", "u-42")
	registry.JoinGroup("conn-1", "p-1")
	registry.JoinGroup("conn-1", "c-7")
	registry.AddPrimary(context.Background(), "conn-1", 42)

	registry.Disconnect(context.Background(), "conn-1")

	assert.Empty(t, registry.GroupMembers("u-42"))
	assert.Empty(t, registry.GroupMembers("p-1"))
	assert.Empty(t, registry.GroupMembers("c-7"))
	assert.False(t, registry.IsOnline(42))

	// Repeat disconnects are safe.
	registry.Disconnect(context.Background(), "conn-1")
}

func TestJoinAfterDisconnectRejected(t *testing.T) {
	registry := realtime.NewRegistry("node-a", nil, nil)
	conn := newFakeConn("conn-1")
	registry.Register(conn)

	registry.Disconnect(context.Background(), "conn-1")

	assert.False(t, registry.JoinGroup("conn-1", "c-7"))
	assert.Empty(t, registry.GroupMembers("c-7"))
}

func TestEmptyGroupsAreRetired(t *testing.T) {
	registry := realtime.NewRegistry("node-a", nil, nil)
	ctx := context.Background()
	first := newFakeConn("conn-1")
	second := newFakeConn("conn-2")
	registry.Register(first)
	registry.Register(second)
	registry.Bind("conn-1", &identity.Token{ID: "t1", UserID: 42})

	registry.JoinGroup("conn-1", "c-7")
	registry.JoinGroup("conn-2", "c-7")
	registry.JoinGroup("conn-1", "p-1")
	registry.AddPrimary(ctx, "conn-1", 42)
	assert.Equal(t, 2, registry.GroupEntries())
	assert.Equal(t, 1, registry.PrimaryEntries())

	// A group with remaining members stays tracked.
	registry.LeaveGroup("conn-1", "c-7")
	assert.Equal(t, 2, registry.GroupEntries())

	// The last leave drops the group entry entirely.
	registry.LeaveGroup("conn-2", "c-7")
	assert.Equal(t, 1, registry.GroupEntries())

	registry.RemovePrimary(ctx, "conn-1", 42)
	assert.Zero(t, registry.PrimaryEntries())

	registry.Disconnect(ctx, "conn-1")
	registry.Disconnect(ctx, "conn-2")
	assert.Zero(t, registry.GroupEntries())
}

func TestJoinRacingRetirementKeepsMembership(t *testing.T) {
	registry := realtime.NewRegistry("node-a", nil, nil)
	ctx := context.Background()

	for range 200 {
		leaver := newFakeConn("conn-a")
		joiner := newFakeConn("conn-b")
		registry.Register(leaver)
		registry.Register(joiner)
		require.True(t, registry.JoinGroup("conn-a", "c-7"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			registry.LeaveGroup("conn-a", "c-7")
		}()
		go func() {
			defer wg.Done()
			registry.JoinGroup("conn-b", "c-7")
		}()
		wg.Wait()

		// The join must survive a concurrent retirement of the group entry.
		members := registry.GroupMembers("c-7")
		require.Len(t, members, 1)
		assert.Equal(t, "conn-b", members[0].ID())

		registry.Disconnect(ctx, "conn-a")
		registry.Disconnect(ctx, "conn-b")
		require.Zero(t, registry.GroupEntries())
	}
}

func TestMultiConnectionPresence(t *testing.T) {
	presence := newFakePresence()
	registry := realtime.NewRegistry("node-a", presence, nil)
	ctx := context.Background()

	first := newFakeConn("conn-1")
	second := newFakeConn("conn-2")
	registry.Register(first)
	registry.Register(second)
	registry.Bind("conn-1", &identity.Token{ID: "t1", UserID: 42})
	registry.Bind("conn-2", &identity.Token{ID: "t2", UserID: 42})

	registry.JoinGroup("conn-1", "u-42")
	registry.JoinGroup("conn-2", "u-42")
	registry.AddPrimary(ctx, "conn-1", 42)
	registry.AddPrimary(ctx, "conn-2", 42)

	assert.True(t, registry.IsOnline(42))
	node, _ := presence.NodeFor(ctx, 42)
	assert.Equal(t, "node-a", node)

	// Dropping one connection leaves the other's membership and the online
	// state intact.
	registry.Disconnect(ctx, "conn-1")
	assert.True(t, registry.IsOnline(42))
	assert.Len(t, registry.GroupMembers("u-42"), 1)
	node, _ = presence.NodeFor(ctx, 42)
	assert.Equal(t, "node-a", node)

	// Dropping the last one transitions to offline.
	registry.Disconnect(ctx, "conn-2")
	assert.False(t, registry.IsOnline(42))
	node, _ = presence.NodeFor(ctx, 42)
	assert.Empty(t, node)
}

func TestPublish(t *testing.T) {
	registry := realtime.NewRegistry("node-a", nil, nil)
	broadcast := realtime.NewBroadcaster(registry, nil, nil)

	first := newFakeConn("conn-1")
	second := newFakeConn("conn-2")
	outsider := newFakeConn("conn-3")
	for _, conn := range []*fakeConn{first, second, outsider} {
		registry.Register(conn)
	}
	registry.JoinGroup("conn-1", "c-7")
	registry.JoinGroup("conn-2", "c-7")
	registry.JoinGroup("conn-3", "c-8")

	// Publishing to an empty group is a no-op, not an error.
	broadcast.Publish("c-999", realtime.Event{Name: "noop"})

	for i := range 3 {
		event, err := realtime.NewEvent(realtime.EventMessageRelay, map[string]int{"seq": i})
		require.NoError(t, err)
		broadcast.Publish("c-7", event)
	}

	for _, conn := range []*fakeConn{first, second} {
		events := conn.received()
		require.Len(t, events, 3)
		// Same-origin publishes arrive in publish order.
		for i, event := range events {
			assert.JSONEq(t, string(mustJSON(t, map[string]int{"seq": i})), string(event.Payload))
		}
	}
	assert.Empty(t, outsider.received())
}

func TestPublishSurvivesFailingConn(t *testing.T) {
	registry := realtime.NewRegistry("node-a", nil, nil)
	broadcast := realtime.NewBroadcaster(registry, nil, nil)

	broken := newFakeConn("conn-1")
	broken.fail = true
	healthy := newFakeConn("conn-2")
	registry.Register(broken)
	registry.Register(healthy)
	registry.JoinGroup("conn-1", "c-7")
	registry.JoinGroup("conn-2", "c-7")

	broadcast.Publish("c-7", realtime.Event{Name: realtime.EventMessageRelay})
	assert.Len(t, healthy.received(), 1)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	event, err := realtime.NewEvent("x", v)
	require.NoError(t, err)
	return event.Payload
}
