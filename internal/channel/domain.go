package channel

// Channel is a chat channel within a planet. ParentID points at the owning
// category when set; InheritsPerms makes permission resolution fall through
// to the category for roles the channel defines no node for.
type Channel struct {
	ID            int64
	PlanetID      int64
	ParentID      *int64
	Name          string
	Position      int32
	Description   string
	InheritsPerms bool
}

// Category groups channels and can carry its own permission nodes.
type Category struct {
	ID       int64
	PlanetID int64
	ParentID *int64
	Name     string
	Position int32
}
