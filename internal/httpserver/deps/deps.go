package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/nexus/internal/admission"
	"github.com/MrSnakeDoc/nexus/internal/config"
	"github.com/MrSnakeDoc/nexus/internal/index"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/loop"
	"github.com/MrSnakeDoc/nexus/internal/peer"
)

type Deps struct {
	Logger             logger.Logger
	StartTime          time.Time
	Version            string
	Commit             string
	BuildDate          string
	GoVersion          string
	TimeNow            func() time.Time       // for testing, defaults to time.Now
	PeerID             string                 // network identity of this process
	AllowedCIDRS       []string               // IPs allowed to access admin endpoints
	TrustProxy         bool                   // true if running behind a trusted reverse proxy (e.g., cloudflared)
	SearchBurst        int                    // search rate limit bucket size
	SearchRefillPerMin int                    // search rate limit refill
	Loop               *loop.Loop             // control thread every session call runs on
	Peer               *peer.Peer             // local participant (orchestrator, migration, registry)
	Gate               *admission.Gate        // pre-login checks and bans
	MemoryIndex        *index.MemoryIndex     // bans and filter presets
	Migration          config.MigrationSource // live migration settings
	MigrationFile      string                 // path of the watched migration file (empty = static defaults)
	PresetFile         string                 // path of the presets file (empty = presets disabled)
	RedisClient        *redis.Client          // nil when Redis is not configured
	ReloadTrigger      chan struct{}          // Channel to trigger manual preset reload (nil if presets disabled)
}
