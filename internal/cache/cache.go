// Package cache holds the last search results for a short window so that
// rapid repeated searches reuse them instead of querying the backend.
package cache

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/domain"
)

// DefaultTTL is the lifetime of cached results.
const DefaultTTL = 3 * time.Second

// SearchCache stores one result set. It is shared by every caller and
// every session type.
type SearchCache interface {
	Get() ([]domain.SearchResult, bool)
	Put(results []domain.SearchResult)
	Invalidate()
}

// Memory is an in-process SearchCache.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	results []domain.SearchResult
	stored  time.Time
	valid   bool
}

// NewMemory returns a cache whose entries live for ttl. now is the clock;
// nil means time.Now.
func NewMemory(ttl time.Duration, now func() time.Time) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{ttl: ttl, now: now}
}

func (c *Memory) Get() ([]domain.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.now().Sub(c.stored) >= c.ttl {
		return nil, false
	}
	return domain.CloneResults(c.results), true
}

func (c *Memory) Put(results []domain.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = domain.CloneResults(results)
	c.stored = c.now()
	c.valid = true
}

func (c *Memory) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = nil
	c.valid = false
}

// TTL returns the configured lifetime.
func (c *Memory) TTL() time.Duration { return c.ttl }

// Nop never caches anything.
type Nop struct{}

func (Nop) Get() ([]domain.SearchResult, bool) { return nil, false }
func (Nop) Put([]domain.SearchResult)          {}
func (Nop) Invalidate()                        {}
