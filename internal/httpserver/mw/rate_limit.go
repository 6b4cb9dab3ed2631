package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/utils"
)

// RateLimitConfig configures a token bucket per client IP and scope.
type RateLimitConfig struct {
	Burst             int
	RefillPerIPPerMin int
	MaxEntries        int           // sweep early once this many buckets are tracked, 0 = no cap
	SweepInterval     time.Duration // default 1m
	IdleTTL           time.Duration // default 15m
	TrustProxy        bool
	// Scope splits a client's budget, e.g. per session type searched.
	// nil gives one bucket per client IP.
	Scope func(*http.Request) string
	// Cost is the number of tokens a request takes, default 1. It is
	// capped at Burst.
	Cost   func(*http.Request) int
	Logger logger.Logger    // optional
	Now    func() time.Time // defaults to time.Now
}

type bucket struct {
	mu       sync.Mutex
	tokens   float64
	refilled time.Time
	seen     time.Time
}

type limiter struct {
	cfg       RateLimitConfig
	rate      float64 // tokens per second
	capacity  float64
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type decision struct {
	ok         bool
	remaining  int
	retryAfter int // seconds
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.RefillPerIPPerMin < 1 {
		cfg.RefillPerIPPerMin = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Logger = logger.Component(cfg.Logger, "rate-limit")
	return &limiter{
		cfg:       cfg,
		rate:      float64(cfg.RefillPerIPPerMin) / 60.0,
		capacity:  float64(cfg.Burst),
		buckets:   make(map[string]*bucket, 256),
		lastSweep: cfg.Now(),
	}
}

func (l *limiter) bucketFor(key string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.SweepInterval ||
		(l.cfg.MaxEntries > 0 && len(l.buckets) >= l.cfg.MaxEntries) {
		l.sweepLocked(now)
	}
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: l.capacity, refilled: now, seen: now}
		l.buckets[key] = b
	}
	return b
}

func (l *limiter) take(key string, cost float64, now time.Time) decision {
	b := l.bucketFor(key, now)
	if cost > l.capacity {
		cost = l.capacity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.refilled).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.rate)
		b.refilled = now
	}
	b.seen = now

	if b.tokens >= cost {
		b.tokens -= cost
		return decision{ok: true, remaining: int(math.Floor(b.tokens))}
	}

	wait := int(math.Ceil((cost - b.tokens) / l.rate))
	if wait < 1 {
		wait = 1
	}
	return decision{retryAfter: wait}
}

func (l *limiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.seen) > l.cfg.IdleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// RateLimit throttles each client IP, per scope, with a token bucket and
// answers 429 with Retry-After once the bucket cannot cover the request.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newLimiter(cfg)
	limit := strconv.Itoa(l.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, l.cfg.TrustProxy)
			key, scope := ip, ""
			if l.cfg.Scope != nil {
				scope = l.cfg.Scope(r)
				key = ip + "|" + scope
			}
			cost := 1
			if l.cfg.Cost != nil {
				if c := l.cfg.Cost(r); c > 1 {
					cost = c
				}
			}
			d := l.take(key, float64(cost), l.cfg.Now())

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			if !d.ok {
				l.cfg.Logger.Debug("request throttled",
					logger.String("client_ip", ip),
					logger.String("scope", scope),
					logger.Int("cost", cost),
					logger.String("path", r.URL.Path),
					logger.Int("retry_after", d.retryAfter))
				w.Header().Set("Retry-After", strconv.Itoa(d.retryAfter))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
