package realtime

// GroupEntries counts the group sets the registry currently tracks.
func (r *Registry) GroupEntries() int {
	n := 0
	r.groups.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// PrimaryEntries counts the per-user presence sets the registry currently
// tracks.
func (r *Registry) PrimaryEntries() int {
	n := 0
	r.primary.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
