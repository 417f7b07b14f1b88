package perms

import (
	"errors"
	"fmt"
	"math"
)

// Kind tags the target a permission applies to.
type Kind uint8

const (
	KindUser Kind = iota
	KindPlanet
	KindChannel
	KindCategory
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindPlanet:
		return "planet"
	case KindChannel:
		return "channel"
	case KindCategory:
		return "category"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) valid() bool {
	return k <= KindCategory
}

// ErrKindMismatch indicates a permission was checked against the wrong
// target kind.
var ErrKindMismatch = errors.New("perms: permission does not apply to target kind")

// Permission is one capability bit scoped to a target kind.
type Permission struct {
	Kind  Kind
	Value uint64
	Name  string
}

// FullControlMask grants every bit for a target.
const FullControlMask = ^uint64(0)

// Token scope permissions.
var (
	UserFullControl    = Permission{KindUser, FullControlMask, "Full Control"}
	UserMinimum        = Permission{KindUser, 0x01, "Minimum"}
	UserView           = Permission{KindUser, 0x02, "View"}
	UserMembership     = Permission{KindUser, 0x04, "Membership"}
	UserInvites        = Permission{KindUser, 0x08, "Invites"}
	UserPlanetManage   = Permission{KindUser, 0x10, "Planet Management"}
	UserMessages       = Permission{KindUser, 0x20, "Messages"}
	UserFriends        = Permission{KindUser, 0x40, "Friends"}
	UserDirectMessages = Permission{KindUser, 0x80, "Direct Messages"}
)

// Planet-wide permissions.
var (
	PlanetFullControl      = Permission{KindPlanet, FullControlMask, "Full Control"}
	PlanetView             = Permission{KindPlanet, 0x01, "View"}
	PlanetInvite           = Permission{KindPlanet, 0x02, "Invite"}
	PlanetDisplayRole      = Permission{KindPlanet, 0x04, "Display Role"}
	PlanetManage           = Permission{KindPlanet, 0x08, "Manage Planet"}
	PlanetKick             = Permission{KindPlanet, 0x10, "Kick Members"}
	PlanetBan              = Permission{KindPlanet, 0x20, "Ban Members"}
	PlanetManageCategories = Permission{KindPlanet, 0x40, "Manage Categories"}
	PlanetManageChannels   = Permission{KindPlanet, 0x80, "Manage Channels"}
	PlanetManageRoles      = Permission{KindPlanet, 0x100, "Manage Roles"}
)

// Chat channel permissions.
var (
	ChannelFullControl       = Permission{KindChannel, FullControlMask, "Full Control"}
	ChannelView              = Permission{KindChannel, 0x01, "View Messages"}
	ChannelPostMessages      = Permission{KindChannel, 0x02, "Post Messages"}
	ChannelManage            = Permission{KindChannel, 0x04, "Manage Channel"}
	ChannelManagePermissions = Permission{KindChannel, 0x08, "Manage Permissions"}
	ChannelEmbed             = Permission{KindChannel, 0x10, "Embed Content"}
	ChannelAttachContent     = Permission{KindChannel, 0x20, "Attach Content"}
	ChannelManageMessages    = Permission{KindChannel, 0x40, "Manage Messages"}
)

// Category permissions.
var (
	CategoryFullControl       = Permission{KindCategory, FullControlMask, "Full Control"}
	CategoryView              = Permission{KindCategory, 0x01, "View Category"}
	CategoryManage            = Permission{KindCategory, 0x02, "Manage Category"}
	CategoryManagePermissions = Permission{KindCategory, 0x04, "Manage Permissions"}
)

// CheckPair validates that a permission may be resolved against a target of
// the given kind. A mismatched pair is a typed error; an out-of-range kind is
// a programming error and panics.
func CheckPair(p Permission, target Kind) error {
	if !p.Kind.valid() || !target.valid() {
		panic(fmt.Sprintf("perms: unknown permission target kind %d", uint8(target)))
	}
	if p.Kind != target {
		return fmt.Errorf("%w: %s permission %q against %s target",
			ErrKindMismatch, p.Kind, p.Name, target)
	}
	return nil
}

// Has reports whether the resolved mask grants the permission.
func Has(mask uint64, p Permission) bool {
	return mask&p.Value == p.Value
}

// Role is a permission template within a planet. Position 0 is the highest
// priority role; positions are distinct per planet.
type Role struct {
	ID       int64
	PlanetID int64
	Position int32
	Name     string
	// PlanetPerms is the planet-wide mask granted by this role.
	PlanetPerms uint64
}

// Authority derives the role's rank from its position.
func (r Role) Authority() int64 {
	return int64(math.MaxInt32) - int64(r.Position)
}
