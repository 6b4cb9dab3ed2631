// Package migration recovers a session after its host is lost. The heir
// recreates the session under the same migration ID; every other client
// searches for it and joins again.
package migration

import (
	"errors"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/config"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/loop"
	"github.com/MrSnakeDoc/nexus/internal/orchestrator"
	"github.com/MrSnakeDoc/nexus/internal/world"
)

const (
	// clientSearchMaxResults bounds every recovery search.
	clientSearchMaxResults = 20

	ReasonTimedOut      = "Migration Timed Out"
	ReasonNoHeir        = "no heir elected"
	ReasonHostRecovery  = "host recovery failed"
	ReasonNoLocalPlayer = "local player unknown"
)

// ErrNoHeir is reported when a failure arrives before any heir is known.
var ErrNoHeir = errors.New("no heir elected")

// Phase is the recovery state.
type Phase int

const (
	Idle Phase = iota
	HostRecovering
	ClientSearching
	ClientJoining
)

func (p Phase) String() string {
	switch p {
	case HostRecovering:
		return "host_recovering"
	case ClientSearching:
		return "client_searching"
	case ClientJoining:
		return "client_joining"
	default:
		return "idle"
	}
}

// Sessions is the subset of the orchestrator recovery drives.
type Sessions interface {
	Create(req orchestrator.CreateRequest, done func(error))
	Destroy(t domain.SessionType, done func(error))
	FindAndFilter(req orchestrator.FindRequest, done func([]domain.SearchResult, error))
	Join(result domain.SearchResult, t domain.SessionType, done func(error))
	LocalPlayerID() (string, bool)
}

// Status is a point-in-time view of the controller.
type Status struct {
	Phase          string `json:"phase"`
	InFlight       bool   `json:"in_flight"`
	HasSettings    bool   `json:"has_settings"`
	AllowMigration bool   `json:"allow_migration"`
	MigrationID    string `json:"migration_id,omitempty"`
	SessionType    string `json:"session_type,omitempty"`
	Heir           string `json:"heir,omitempty"`
	Retries        int    `json:"retries"`
	HostAttempts   int    `json:"host_attempts"`
	LeavePending   bool   `json:"intentional_leave"`
	LastFailure    string `json:"last_failure,omitempty"`
}

// Controller is the host migration state machine. There is one per
// process. All methods must be called on the control thread.
type Controller struct {
	sessions Sessions
	disp     loop.Dispatcher
	bus      *events.Bus
	source   config.MigrationSource
	logger   logger.Logger

	phase    Phase
	settings domain.SessionSettings
	cached   bool
	heir     string
	leaving  bool

	retries      int
	hostAttempts int
	// epoch invalidates completions and timers of an abandoned recovery.
	epoch       uint64
	stopTimer   func()
	startedAt   time.Time
	lastFailure string
}

func New(sessions Sessions, disp loop.Dispatcher, bus *events.Bus, source config.MigrationSource, log logger.Logger) *Controller {
	if source == nil {
		source = config.NewStaticMigration(config.DefaultMigration())
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Controller{
		sessions: sessions,
		disp:     disp,
		bus:      bus,
		source:   source,
		logger:   logger.Component(log, "migration"),
	}
}

func (c *Controller) Phase() Phase { return c.phase }

func (c *Controller) InFlight() bool { return c.phase != Idle }

// CacheSessionSettings remembers the settings of the session being
// played. A migration ID is generated when s has none; the stored copy is
// returned so the caller hosts with the same ID.
func (c *Controller) CacheSessionSettings(s domain.SessionSettings) domain.SessionSettings {
	s = s.Clone()
	if s.MigrationID == "" {
		s.MigrationID = domain.NewMigrationID()
	}
	c.settings = s
	c.cached = true
	c.leaving = false
	c.logger.Info("session settings cached",
		logger.String("session", s.Type.Name()),
		logger.String("migration_id", s.MigrationID),
		logger.Bool("allow_migration", s.AllowMigration))
	return s.Clone()
}

// CacheFromResult caches what a joining client knows about its session:
// the advertised presentation and migration ID. Migration is allowed only
// when the session advertises an ID.
func (c *Controller) CacheFromResult(r domain.SearchResult, t domain.SessionType) {
	s := domain.SessionSettings{
		DisplayName: r.DisplayName,
		MapName:     r.MapName,
		GameMode:    r.GameMode,
		MaxPlayers:  r.MaxPlayers,
		Type:        t,
		SessionID:   r.SessionID,
	}
	if v, ok := r.Attribute(domain.KeyMigrationID); ok && v.Str != "" {
		s.MigrationID = v.Str
		s.AllowMigration = true
	}
	c.settings = s
	c.cached = true
	c.leaving = false
	c.logger.Info("session settings cached from search result",
		logger.String("session", t.Name()),
		logger.String("migration_id", s.MigrationID))
}

// Settings returns the cached settings, if any.
func (c *Controller) Settings() (domain.SessionSettings, bool) {
	return c.settings.Clone(), c.cached
}

// SetHeir records who takes over if the host is lost.
func (c *Controller) SetHeir(playerID string) {
	if playerID == c.heir {
		return
	}
	c.logger.Info("heir updated", logger.String("previous", c.heir), logger.String("heir", playerID))
	c.heir = playerID
}

func (c *Controller) Heir() string { return c.heir }

// MarkIntentionalLeave flags the next network failure as caused by the
// local player leaving. That failure is consumed without recovery.
func (c *Controller) MarkIntentionalLeave() {
	c.leaving = true
	c.logger.Info("intentional leave flagged")
}

// Reset abandons any recovery and returns to Idle. Cached settings and
// the heir are kept.
func (c *Controller) Reset() {
	c.epoch++
	c.cancelTimer()
	if c.phase != Idle {
		c.logger.Warn("recovery abandoned", logger.String("phase", c.phase.String()))
	}
	c.phase = Idle
	c.retries = 0
	c.hostAttempts = 0
}

func (c *Controller) Snapshot() Status {
	return Status{
		Phase:          c.phase.String(),
		InFlight:       c.InFlight(),
		HasSettings:    c.cached,
		AllowMigration: c.cached && c.settings.AllowMigration,
		MigrationID:    c.settings.MigrationID,
		SessionType:    c.sessionTypeName(),
		Heir:           c.heir,
		Retries:        c.retries,
		HostAttempts:   c.hostAttempts,
		LeavePending:   c.leaving,
		LastFailure:    c.lastFailure,
	}
}

func (c *Controller) sessionTypeName() string {
	if !c.cached {
		return ""
	}
	return c.settings.Type.Name()
}

// HandleNetworkFailure starts a recovery when the failure qualifies. It
// reports whether one was started (or failed immediately for lack of an
// heir).
func (c *Controller) HandleNetworkFailure(mode world.NetMode, f world.Failure) bool {
	log := c.logger.With(
		logger.String("failure", f.Kind.String()),
		logger.String("net_mode", mode.String()))

	cfg := c.source.Migration()
	switch {
	case !cfg.Enabled:
		log.Debug("network failure ignored: migration disabled")
		return false
	case !c.cached || !c.settings.AllowMigration:
		log.Debug("network failure ignored: session does not allow migration")
		return false
	case c.InFlight():
		log.Debug("network failure ignored: recovery already in flight", logger.String("phase", c.phase.String()))
		return false
	case c.leaving:
		c.leaving = false
		log.Info("network failure ignored: intentional leave")
		return false
	case !f.Kind.IsConnectionLoss():
		log.Debug("network failure ignored: not a connection loss")
		return false
	case mode != world.Client:
		log.Debug("network failure ignored: not a client")
		return false
	}

	if c.heir == "" {
		log.Warn("no heir elected")
		c.fail(ReasonNoHeir, ErrNoHeir)
		return true
	}

	local, ok := c.sessions.LocalPlayerID()
	if !ok {
		log.Warn("cannot resolve local player, abandoning recovery")
		c.fail(ReasonNoLocalPlayer, domain.ErrContextUnavailable)
		return true
	}

	c.epoch++
	c.retries = 0
	c.hostAttempts = 0
	c.lastFailure = ""
	c.startedAt = c.disp.Now()
	asHost := local == c.heir

	log.Info("host lost, starting recovery",
		logger.String("heir", c.heir),
		logger.String("local_player", local),
		logger.Bool("as_host", asHost),
		logger.String("migration_id", c.settings.MigrationID))
	c.bus.Publish(events.MigrationStarted{MigrationID: c.settings.MigrationID, AsHost: asHost})

	if asHost {
		c.startHost(c.epoch)
	} else {
		c.startClient(c.epoch)
	}
	return true
}

// ─────────────────────────────
// Host recovery
// ─────────────────────────────

func (c *Controller) startHost(epoch uint64) {
	c.phase = HostRecovering
	c.sessions.Destroy(c.settings.Type, func(err error) {
		if epoch != c.epoch {
			return
		}
		if err != nil {
			c.logger.Debug("no stale session to destroy", logger.Error(err))
		}
		c.recreate(epoch)
	})
}

func (c *Controller) recreate(epoch uint64) {
	req := orchestrator.CreateRequest{
		Settings:     c.settings.Clone(),
		ExtraFilters: []domain.SearchFilter{c.migrationFilter()},
	}
	c.logger.Info("recreating session as heir",
		logger.String("migration_id", c.settings.MigrationID),
		logger.Int("attempt", c.hostAttempts+1))

	c.sessions.Create(req, func(err error) {
		if epoch != c.epoch {
			return
		}
		if err == nil {
			c.complete(true)
			return
		}

		c.hostAttempts++
		cfg := c.source.Migration()
		if c.hostAttempts > cfg.HostRecoveryRetries {
			c.logger.Error("host recovery failed",
				logger.Int("attempts", c.hostAttempts),
				logger.Error(err))
			c.fail(ReasonHostRecovery, err)
			return
		}
		c.logger.Warn("host recovery attempt failed, retrying",
			logger.Int("attempt", c.hostAttempts),
			logger.Duration("delay", cfg.HostRetryDelay),
			logger.Error(err))
		c.schedule(epoch, cfg.HostRetryDelay, func() { c.recreate(epoch) })
	})
}

// ─────────────────────────────
// Client recovery
// ─────────────────────────────

func (c *Controller) startClient(epoch uint64) {
	c.phase = ClientSearching
	// The joined session of the lost host is stale and would block a join.
	c.sessions.Destroy(c.settings.Type, func(err error) {
		if epoch != c.epoch {
			return
		}
		if err != nil {
			c.logger.Debug("no stale session to destroy", logger.Error(err))
		}
		delay := c.source.Migration().ClientSearchInterval
		c.logger.Info("waiting for the heir to recreate the session", logger.Duration("delay", delay))
		c.schedule(epoch, delay, func() { c.search(epoch) })
	})
}

func (c *Controller) search(epoch uint64) {
	c.phase = ClientSearching
	req := orchestrator.FindRequest{
		Type:        c.settings.Type,
		MaxResults:  clientSearchMaxResults,
		LAN:         c.settings.LAN,
		Filters:     []domain.SearchFilter{c.migrationFilter()},
		BypassCache: true,
	}
	c.logger.Debug("searching for migrated session",
		logger.String("migration_id", c.settings.MigrationID),
		logger.Int("attempt", c.retries+1))

	c.sessions.FindAndFilter(req, func(results []domain.SearchResult, err error) {
		if epoch != c.epoch {
			return
		}
		if err == nil && len(results) > 0 {
			c.join(epoch, results[0])
			return
		}

		if err != nil {
			c.logger.Warn("migration search failed", logger.Error(err))
		}
		if c.spendRetry() {
			return
		}
		delay := c.source.Migration().ClientRetryDelay
		c.logger.Info("migrated session not found yet",
			logger.Int("retries", c.retries),
			logger.Duration("delay", delay))
		c.schedule(epoch, delay, func() { c.search(epoch) })
	})
}

func (c *Controller) join(epoch uint64, r domain.SearchResult) {
	c.phase = ClientJoining
	c.logger.Info("joining migrated session",
		logger.String("session_id", r.SessionID),
		logger.String("display_name", r.DisplayName))

	c.sessions.Join(r, c.settings.Type, func(err error) {
		if epoch != c.epoch {
			return
		}
		if err == nil {
			c.complete(false)
			return
		}

		c.logger.Warn("join of migrated session failed", logger.Error(err))
		if c.spendRetry() {
			return
		}
		c.phase = ClientSearching
		delay := c.source.Migration().JoinFailureDelay
		c.schedule(epoch, delay, func() { c.search(epoch) })
	})
}

// spendRetry counts a failed client attempt. Once the budget is used up it
// fails the recovery and reports true.
func (c *Controller) spendRetry() bool {
	c.retries++
	budget := c.source.Migration().MaxRetries
	if c.retries < budget {
		return false
	}
	c.logger.Error("migration timed out",
		logger.Int("retries", c.retries),
		logger.Int("max_retries", budget),
		logger.Duration("elapsed", c.disp.Now().Sub(c.startedAt)))
	c.fail(ReasonTimedOut, domain.ErrMigrationTimeout)
	return true
}

// ─────────────────────────────
// Outcomes
// ─────────────────────────────

func (c *Controller) complete(asHost bool) {
	c.logger.Info("migration completed",
		logger.Bool("as_host", asHost),
		logger.String("migration_id", c.settings.MigrationID),
		logger.Duration("elapsed", c.disp.Now().Sub(c.startedAt)))
	c.toIdle()
	// The new authority elects a fresh heir.
	c.heir = ""
	c.bus.Publish(events.MigrationCompleted{MigrationID: c.settings.MigrationID, AsHost: asHost})
}

func (c *Controller) fail(reason string, err error) {
	c.toIdle()
	c.lastFailure = reason
	c.bus.Publish(events.MigrationFailed{Reason: reason, Err: err})
}

func (c *Controller) toIdle() {
	c.epoch++
	c.cancelTimer()
	c.phase = Idle
}

func (c *Controller) schedule(epoch uint64, d time.Duration, fn func()) {
	c.cancelTimer()
	c.stopTimer = c.disp.After(d, func() {
		c.stopTimer = nil
		if epoch != c.epoch {
			return
		}
		fn()
	})
}

func (c *Controller) cancelTimer() {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}

func (c *Controller) migrationFilter() domain.SearchFilter {
	return domain.SearchFilter{
		Key:          domain.KeyMigrationID,
		Value:        domain.StringValue(c.settings.MigrationID),
		Op:           domain.OpEquals,
		ApplyToQuery: true,
	}
}
