package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/novachat/nova/internal/identity"
)

// Conn is one live realtime connection. Send must deliver events in call
// order for a given connection; the transport adapter owns the queueing.
type Conn interface {
	ID() string
	Send(Event) error
	Close() error
}

// PresenceStore records which node hosts a user's primary connections so
// peer nodes can locate relay targets. Implementations are best-effort.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID int64, node string) error
	SetOffline(ctx context.Context, userID int64, node string) error
	NodeFor(ctx context.Context, userID int64) (string, error)
}

// ConnObserver counts connection and membership changes for metrics. May
// be nil.
type ConnObserver interface {
	ConnectionOpened()
	ConnectionClosed()
	GroupJoined()
	GroupLeft()
}

// connRecord tracks one connection's identity, group memberships and
// lifecycle. The mutex serializes joins against disconnect so a join that
// loses the race cannot leave orphaned membership behind.
type connRecord struct {
	conn     Conn
	identity atomic.Pointer[identity.Token]
	userConn bool
	groups   map[string]struct{}
	closed   bool
	mu       sync.Mutex
}

// groupSet is one group's live membership. A set that empties is marked
// dead and unlinked from the registry, so the registry never accumulates
// entries for groups nobody is joined to. A join racing the unlink sees
// dead and retries with a fresh set.
type groupSet struct {
	mu    sync.Mutex
	conns map[string]Conn
	dead  bool
}

func newGroupSet() *groupSet {
	return &groupSet{conns: make(map[string]Conn)}
}

func (g *groupSet) add(connID string, conn Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dead {
		return false
	}
	g.conns[connID] = conn
	return true
}

// remove reports whether the set emptied. An emptied set is dead and the
// caller must unlink it.
func (g *groupSet) remove(connID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, connID)
	if len(g.conns) == 0 {
		g.dead = true
		return true
	}
	return false
}

func (g *groupSet) snapshot() []Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	conns := make([]Conn, 0, len(g.conns))
	for _, conn := range g.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (g *groupSet) empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns) == 0
}

// Registry tracks live connections, their authenticated identities and
// their group memberships. All maps are safe for concurrent use without
// caller locking.
type Registry struct {
	node     string
	conns    sync.Map // connID string -> *connRecord
	groups   sync.Map // groupKey string -> *groupSet
	primary  sync.Map // userID int64 -> *groupSet
	presence PresenceStore
	observer ConnObserver
	logger   *slog.Logger
}

// NewRegistry constructs a Registry for this node. presence may be nil for
// single-node deployments.
func NewRegistry(node string, presence PresenceStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{node: node, presence: presence, logger: logger}
}

// SetObserver installs the metrics observer.
func (r *Registry) SetObserver(observer ConnObserver) {
	r.observer = observer
}

// Node returns the name of the local node.
func (r *Registry) Node() string {
	return r.node
}

// Register adds a new, not yet authenticated connection.
func (r *Registry) Register(conn Conn) {
	r.conns.Store(conn.ID(), &connRecord{conn: conn, groups: make(map[string]struct{})})
	if r.observer != nil {
		r.observer.ConnectionOpened()
	}
}

// Bind attaches a validated identity to the connection. Returns false when
// the connection is unknown or already disconnected.
func (r *Registry) Bind(connID string, token *identity.Token) bool {
	record, ok := r.record(connID)
	if !ok {
		return false
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	if record.closed {
		return false
	}
	record.identity.Store(token)
	return true
}

// Identity returns the identity bound to the connection, or nil while the
// connection is unauthenticated.
func (r *Registry) Identity(connID string) *identity.Token {
	record, ok := r.record(connID)
	if !ok {
		return nil
	}
	return record.identity.Load()
}

// JoinGroup adds the connection to a group. Joining twice is a no-op.
// Returns false when the connection is unknown or already disconnected.
func (r *Registry) JoinGroup(connID, groupKey string) bool {
	record, ok := r.record(connID)
	if !ok {
		return false
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	if record.closed {
		return false
	}
	_, rejoined := record.groups[groupKey]
	record.groups[groupKey] = struct{}{}

	for {
		value, _ := r.groups.LoadOrStore(groupKey, newGroupSet())
		if value.(*groupSet).add(connID, record.conn) {
			break
		}
		r.groups.CompareAndDelete(groupKey, value)
	}
	if !rejoined && r.observer != nil {
		r.observer.GroupJoined()
	}
	return true
}

// LeaveGroup removes the connection from a group. A no-op when the
// connection never joined it.
func (r *Registry) LeaveGroup(connID, groupKey string) {
	if record, ok := r.record(connID); ok {
		record.mu.Lock()
		_, joined := record.groups[groupKey]
		delete(record.groups, groupKey)
		record.mu.Unlock()
		if joined && r.observer != nil {
			r.observer.GroupLeft()
		}
	}
	r.dropMembership(connID, groupKey)
}

func (r *Registry) dropMembership(connID, groupKey string) {
	value, ok := r.groups.Load(groupKey)
	if !ok {
		return
	}
	if value.(*groupSet).remove(connID) {
		r.groups.CompareAndDelete(groupKey, value)
	}
}

// GroupMembers snapshots the connections currently joined to a group.
func (r *Registry) GroupMembers(groupKey string) []Conn {
	value, ok := r.groups.Load(groupKey)
	if !ok {
		return nil
	}
	conns := value.(*groupSet).snapshot()
	if len(conns) == 0 {
		return nil
	}
	return conns
}

// AddPrimary registers the connection for user-level presence. The user
// goes online on this node when its first primary connection appears.
func (r *Registry) AddPrimary(ctx context.Context, connID string, userID int64) {
	record, ok := r.record(connID)
	if !ok {
		return
	}
	record.mu.Lock()
	if record.closed {
		record.mu.Unlock()
		return
	}
	record.userConn = true
	record.mu.Unlock()

	for {
		value, _ := r.primary.LoadOrStore(userID, newGroupSet())
		if value.(*groupSet).add(connID, record.conn) {
			break
		}
		r.primary.CompareAndDelete(userID, value)
	}

	if r.presence != nil {
		if err := r.presence.SetOnline(ctx, userID, r.node); err != nil {
			r.logger.Warn("presence set online", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
}

// RemovePrimary clears the connection's presence registration. The user
// goes offline on this node when its last primary connection is gone.
func (r *Registry) RemovePrimary(ctx context.Context, connID string, userID int64) {
	if record, ok := r.record(connID); ok {
		record.mu.Lock()
		record.userConn = false
		record.mu.Unlock()
	}

	set, ok := r.primary.Load(userID)
	if !ok {
		return
	}
	if set.(*groupSet).remove(connID) {
		r.primary.CompareAndDelete(userID, set)
	}

	if !r.IsOnline(userID) && r.presence != nil {
		if err := r.presence.SetOffline(ctx, userID, r.node); err != nil {
			r.logger.Warn("presence set offline", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
}

// IsOnline reports whether the user has at least one primary connection on
// this node.
func (r *Registry) IsOnline(userID int64) bool {
	set, ok := r.primary.Load(userID)
	if !ok {
		return false
	}
	return !set.(*groupSet).empty()
}

// Disconnect tears down all bookkeeping for the connection: every group
// membership, the presence registration and the identity binding. It runs
// exactly once per connection even under concurrent disconnect signals, and
// it never fails loudly.
func (r *Registry) Disconnect(ctx context.Context, connID string) {
	record, ok := r.record(connID)
	if !ok {
		return
	}

	record.mu.Lock()
	if record.closed {
		record.mu.Unlock()
		return
	}
	record.closed = true
	groups := make([]string, 0, len(record.groups))
	for groupKey := range record.groups {
		groups = append(groups, groupKey)
	}
	record.groups = make(map[string]struct{})
	wasPrimary := record.userConn
	token := record.identity.Load()
	record.mu.Unlock()

	for _, groupKey := range groups {
		r.dropMembership(connID, groupKey)
		if r.observer != nil {
			r.observer.GroupLeft()
		}
	}
	if wasPrimary && token != nil {
		r.RemovePrimary(ctx, connID, token.UserID)
	}
	r.conns.Delete(connID)
	if r.observer != nil {
		r.observer.ConnectionClosed()
	}
}

func (r *Registry) record(connID string) (*connRecord, bool) {
	value, ok := r.conns.Load(connID)
	if !ok {
		return nil, false
	}
	return value.(*connRecord), true
}
