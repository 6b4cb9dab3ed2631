package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/redis/go-redis/v9"
)

// banTTL keeps temporary bans around until they expire. Permanent bans
// never expire.
func banTTL(b *domain.Ban, now time.Time) time.Duration {
	if b.Permanent() {
		return 0
	}
	ttl := b.ExpiresAt.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// SaveBan stores a ban in Redis
func (s *Store) SaveBan(ctx context.Context, ban *domain.Ban) error {
	data, err := json.Marshal(ban)
	if err != nil {
		return fmt.Errorf("failed to marshal ban: %w", err)
	}

	key := s.BanKey(ban.PlayerID)

	// Store ban data
	if err := s.client.Set(ctx, key, data, banTTL(ban, time.Now())).Err(); err != nil {
		return fmt.Errorf("failed to save ban: %w", err)
	}

	// Add to set of all bans
	if err := s.client.SAdd(ctx, s.AllBansKey(), ban.PlayerID).Err(); err != nil {
		return fmt.Errorf("failed to add ban to set: %w", err)
	}

	return nil
}

// GetBan retrieves a ban from Redis by player ID
func (s *Store) GetBan(ctx context.Context, playerID string) (*domain.Ban, error) {
	data, err := s.client.Get(ctx, s.BanKey(playerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBanNotFound, playerID)
		}
		return nil, fmt.Errorf("failed to get ban: %w", err)
	}

	var ban domain.Ban
	if err := json.Unmarshal(data, &ban); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ban: %w", err)
	}

	return &ban, nil
}

// GetAllBans retrieves all bans from Redis. IDs whose record already
// expired are pruned from the set.
func (s *Store) GetAllBans(ctx context.Context) ([]*domain.Ban, error) {
	ids, err := s.client.SMembers(ctx, s.AllBansKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get ban IDs: %w", err)
	}

	if len(ids) == 0 {
		return []*domain.Ban{}, nil
	}

	bans := make([]*domain.Ban, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		ban, err := s.GetBan(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrBanNotFound) {
				stale = append(stale, id)
			}
			continue
		}
		bans = append(bans, ban)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.AllBansKey(), stale...).Err(); err != nil {
			return bans, fmt.Errorf("failed to prune expired bans: %w", err)
		}
	}

	return bans, nil
}

// DeleteBan removes a ban from Redis
func (s *Store) DeleteBan(ctx context.Context, playerID string) error {
	// Delete ban data
	if err := s.client.Del(ctx, s.BanKey(playerID)).Err(); err != nil {
		return fmt.Errorf("failed to delete ban: %w", err)
	}

	// Remove from set of all bans
	if err := s.client.SRem(ctx, s.AllBansKey(), playerID).Err(); err != nil {
		return fmt.Errorf("failed to remove ban from set: %w", err)
	}

	return nil
}

// SaveBansMany stores multiple bans in Redis (bulk operation)
func (s *Store) SaveBansMany(ctx context.Context, bans []*domain.Ban) error {
	pipe := s.client.Pipeline()
	now := time.Now()

	for _, ban := range bans {
		data, err := json.Marshal(ban)
		if err != nil {
			return fmt.Errorf("failed to marshal ban %s: %w", ban.PlayerID, err)
		}

		pipe.Set(ctx, s.BanKey(ban.PlayerID), data, banTTL(ban, now))
		pipe.SAdd(ctx, s.AllBansKey(), ban.PlayerID)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save bans: %w", err)
	}

	return nil
}
