package perms

import "math"

// RoleOverlay pairs one of a member's roles with the permission nodes that
// apply to the target being resolved. Node is the target's own node for the
// role; Fallback is the parent category's node, and is only populated by the
// caller when the channel inherits permissions from its category.
type RoleOverlay struct {
	Role     Role
	Node     *Node
	Fallback *Node
}

// Resolve computes the effective permission mask for a member against one
// target. Overlays must be ordered by role priority descending (position
// ascending), matching the member's role stack. Nodes are applied from the
// lowest priority role upward so that an explicit setting on a higher
// priority role overwrites lower ones; bits no role defines resolve to deny.
// The planet owner bypasses role data entirely.
func Resolve(isOwner bool, overlays []RoleOverlay) uint64 {
	if isOwner {
		return FullControlMask
	}

	var value uint64
	for i := len(overlays) - 1; i >= 0; i-- {
		node := overlays[i].Node
		if node == nil {
			node = overlays[i].Fallback
		}
		if node == nil {
			continue
		}
		defined := node.Defined()
		value = (value &^ defined) | (node.Allow &^ node.Deny)
	}
	return value
}

// Authority returns the numeric rank gating privileged actions. The owner
// outranks everyone; a member with no roles ranks below everyone.
func Authority(isOwner bool, topRole *Role) int64 {
	if isOwner {
		return math.MaxInt64
	}
	if topRole == nil {
		return math.MinInt64
	}
	return topRole.Authority()
}

// RequireAuthority reports whether an actor may perform a privileged action
// against a target member. This is evaluated independently of any bitmask
// permission; both checks must pass.
func RequireAuthority(actor, target int64) bool {
	return actor >= target
}
