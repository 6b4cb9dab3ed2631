package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/redis/go-redis/v9"
)

// defaultCacheOpTimeout bounds each cache round trip. The cache is read
// on the control thread.
const defaultCacheOpTimeout = 250 * time.Millisecond

// SearchCache is a search result cache shared by every peer using the
// same Redis. Any Redis error is treated as a miss.
type SearchCache struct {
	store     *Store
	ttl       time.Duration
	opTimeout time.Duration
	logger    logger.Logger
}

// NewSearchCache returns a cache whose entries expire after ttl
func NewSearchCache(store *Store, ttl time.Duration, log logger.Logger) *SearchCache {
	return &SearchCache{
		store:     store,
		ttl:       ttl,
		opTimeout: defaultCacheOpTimeout,
		logger:    logger.Component(log, "search_cache"),
	}
}

func (c *SearchCache) Get() ([]domain.SearchResult, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	data, err := c.store.client.Get(ctx, c.store.SearchCacheKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("search cache read failed", logger.Error(err))
		}
		return nil, false
	}

	var results []domain.SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("search cache entry unreadable", logger.Error(err))
		return nil, false
	}
	return results, true
}

func (c *SearchCache) Put(results []domain.SearchResult) {
	if results == nil {
		results = []domain.SearchResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Warn("search cache encode failed", logger.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()
	if err := c.store.client.Set(ctx, c.store.SearchCacheKey(), data, c.ttl).Err(); err != nil {
		c.logger.Warn("search cache write failed", logger.Error(err))
	}
}

func (c *SearchCache) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()
	if err := c.store.client.Del(ctx, c.store.SearchCacheKey()).Err(); err != nil {
		c.logger.Warn("search cache invalidate failed", logger.Error(err))
	}
}
