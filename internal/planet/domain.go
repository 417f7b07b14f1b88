package planet

// Planet is one tenant community.
type Planet struct {
	ID      int64
	OwnerID int64
	Name    string
	Public  bool
}

// IsOwner reports whether the user owns the planet.
func (p *Planet) IsOwner(userID int64) bool {
	return p.OwnerID == userID
}
