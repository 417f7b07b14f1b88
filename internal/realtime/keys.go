package realtime

import "fmt"

// Group keys are scope-prefixed strings shared with clients and peer nodes.

// UserGroup is the user-wide event scope, one per user across devices.
func UserGroup(userID int64) string {
	return fmt.Sprintf("u-%d", userID)
}

// PlanetGroup is the planet-wide event scope.
func PlanetGroup(planetID int64) string {
	return fmt.Sprintf("p-%d", planetID)
}

// ChannelGroup is the per-channel message scope.
func ChannelGroup(channelID int64) string {
	return fmt.Sprintf("c-%d", channelID)
}

// InteractionGroup is the embed-interaction scope, keyed per planet.
func InteractionGroup(planetID int64) string {
	return fmt.Sprintf("i-%d", planetID)
}
