package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Peer identity
	PeerID        string // network identity of this process (ex: "peer-a")
	LocalPlayerID string // player identity of the local user (defaults to PeerID)
	NetMode       string // "standalone" | "dedicated_server" | "listen_server" | "client"
	LoopCapacity  int    // control thread queue size

	// Sessions
	SearchCacheTTL       time.Duration // lifetime of the shared search cache (default: 3s)
	SearchCacheShared    bool          // true => cache search results in Redis (needs NEXUS_REDIS_ADDR)
	PresetFile           string        // path to the filter presets file (optional, empty = no presets)
	PresetReloadInterval time.Duration // interval to reload the presets file (default: 5m)
	BanGCInterval        time.Duration // interval to purge expired bans (default: 1h)
	MigrationFile        string        // path to the migration config file (optional, empty = defaults)
	ProtectedPlayers     []string      // players that can never be banned (the local player always is)

	// Search rate limit (per client IP)
	SearchBurst        int // tokens per bucket (default: 20)
	SearchRefillPerMin int // tokens added per minute (default: 60)

	// Redis (optional, empty address = in-memory cache, bans and replication)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisPrefix           string        // key prefix (default: "nexus")
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedCIDRS []string // optional, restrict admin routes to specific IP (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

// RedisEnabled reports whether a Redis server is configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

func Load() *Config {
	peerID := getenv("NEXUS_PEER_ID", defaultPeerID())

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("NEXUS_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("NEXUS_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("NEXUS_LOG_LEVEL", "info"),
		PrettyLog: mustBool("NEXUS_PRETTY_LOG", true),

		// Peer identity
		PeerID:        peerID,
		LocalPlayerID: getenv("NEXUS_LOCAL_PLAYER_ID", peerID),
		NetMode:       getenv("NEXUS_NET_MODE", "standalone"),
		LoopCapacity:  getenvInt("NEXUS_LOOP_CAPACITY", 256),

		// Sessions
		SearchCacheTTL:       mustDuration("NEXUS_SEARCH_CACHE_TTL", 3*time.Second),
		SearchCacheShared:    mustBool("NEXUS_SEARCH_CACHE_SHARED", false),
		PresetFile:           getenv("NEXUS_PRESET_FILE", ""), // Optional, empty = presets disabled
		PresetReloadInterval: mustDuration("NEXUS_PRESET_RELOAD_INTERVAL", 5*time.Minute),
		BanGCInterval:        mustDuration("NEXUS_BAN_GC_INTERVAL", time.Hour),
		MigrationFile:        getenv("NEXUS_MIGRATION_FILE", ""),
		ProtectedPlayers:     splitAndTrim(getenv("NEXUS_PROTECTED_PLAYERS", "")),

		SearchBurst:        getenvInt("NEXUS_SEARCH_BURST", 20),
		SearchRefillPerMin: getenvInt("NEXUS_SEARCH_REFILL_PER_MIN", 60),

		// Redis settings
		RedisAddr:             getenv("NEXUS_REDIS_ADDR", ""),
		RedisUser:             getenv("NEXUS_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("NEXUS_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("NEXUS_REDIS_PASSWORD", ""),
		RedisPrefix:           getenv("NEXUS_REDIS_PREFIX", "nexus"),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("NEXUS_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("NEXUS_TRUST_PROXY", false),
	}

	if cfg.RedisEnabled() {
		// The DB number is mandatory once Redis is in use
		cfg.RedisDB = requireEnvInt("NEXUS_REDIS_DB")
		if cfg.RedisPasswordRequired {
			cfg.RedisPassword = requireEnv("NEXUS_REDIS_PASSWORD")
		}
	} else if cfg.SearchCacheShared {
		panic("❌ FATAL: NEXUS_SEARCH_CACHE_SHARED=true requires NEXUS_REDIS_ADDR")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

func defaultPeerID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "nexus"
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
