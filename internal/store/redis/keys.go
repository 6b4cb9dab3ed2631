package redis

import "fmt"

const (
	// DefaultPrefix namespaces every key the store writes.
	DefaultPrefix = "nexus"

	segmentBan      = ":ban:"
	segmentBansAll  = ":bans:all"
	segmentSnapshot = ":snapshot:"
	segmentChannel  = ":channel:"
	segmentSearch   = ":search:last"
)

// BanKey returns the Redis key for a ban by player ID
func (s *Store) BanKey(playerID string) string {
	return s.prefix + segmentBan + playerID
}

// AllBansKey returns the key for the set of all banned player IDs
func (s *Store) AllBansKey() string {
	return s.prefix + segmentBansAll
}

// SnapshotKey returns the key holding the last state published on topic
func (s *Store) SnapshotKey(topic string) string {
	return s.prefix + segmentSnapshot + topic
}

// ChannelKey returns the Pub/Sub channel for topic
func (s *Store) ChannelKey(topic string) string {
	return s.prefix + segmentChannel + topic
}

// SearchCacheKey returns the key of the shared search result cache
func (s *Store) SearchCacheKey() string {
	return s.prefix + segmentSearch
}

// ExtractPlayerID extracts the player ID from a ban key
func (s *Store) ExtractPlayerID(key string) (string, error) {
	p := s.prefix + segmentBan
	if len(key) <= len(p) || key[:len(p)] != p {
		return "", fmt.Errorf("invalid ban key: %s", key)
	}
	return key[len(p):], nil
}
