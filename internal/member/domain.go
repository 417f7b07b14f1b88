package member

// Member is a user's membership in one planet. Deletion is a soft flag; the
// member's role rows are removed in the same transaction.
type Member struct {
	ID        int64
	PlanetID  int64
	UserID    int64
	Nickname  string
	IsDeleted bool
}

// MaxNicknameLength bounds planet nicknames.
const MaxNicknameLength = 32
