package redis

import (
	"strings"

	"github.com/redis/go-redis/v9"
)

// Store handles Redis operations for bans, replicated snapshots and the
// shared search cache
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a new Redis store. An empty prefix means DefaultPrefix.
func NewStore(client *redis.Client, prefix string) *Store {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
	}
}

// Client exposes the underlying client for health checks
func (s *Store) Client() *redis.Client {
	return s.client
}
