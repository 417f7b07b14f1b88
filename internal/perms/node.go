package perms

// Node is a per-role allow/deny override for one permission target. Bits
// absent from both masks are left undefined by the role.
type Node struct {
	TargetID   int64
	TargetKind Kind
	RoleID     int64
	Allow      uint64
	Deny       uint64
}

// State is the tristate a node holds for a single permission bit.
type State uint8

const (
	StateUndefined State = iota
	StateAllow
	StateDeny
)

// Defined returns the bits this node sets either way. A bit present in both
// masks counts as a deny.
func (n *Node) Defined() uint64 {
	return n.Allow | n.Deny
}

// State reports the node's setting for the permission.
func (n *Node) State(p Permission) State {
	switch {
	case n.Deny&p.Value == p.Value:
		return StateDeny
	case n.Allow&p.Value == p.Value:
		return StateAllow
	default:
		return StateUndefined
	}
}

// SetState updates the node's masks for the permission.
func (n *Node) SetState(p Permission, s State) {
	switch s {
	case StateAllow:
		n.Allow |= p.Value
		n.Deny &^= p.Value
	case StateDeny:
		n.Deny |= p.Value
		n.Allow &^= p.Value
	default:
		n.Allow &^= p.Value
		n.Deny &^= p.Value
	}
}
