package migration

import (
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/config"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/loop/looptest"
	"github.com/MrSnakeDoc/nexus/internal/orchestrator"
	"github.com/MrSnakeDoc/nexus/internal/world"
)

// stubSessions records every call and completes it on the next step.
type stubSessions struct {
	disp  *looptest.Manual
	local string

	creates  []orchestrator.CreateRequest
	destroys int
	finds    []orchestrator.FindRequest
	joins    []domain.SearchResult

	createErrs []error
	joinErrs   []error
	results    []domain.SearchResult
}

func (s *stubSessions) Create(req orchestrator.CreateRequest, done func(error)) {
	s.creates = append(s.creates, req)
	var err error
	if len(s.createErrs) > 0 {
		err, s.createErrs = s.createErrs[0], s.createErrs[1:]
	}
	s.disp.Post(func() { done(err) })
}

func (s *stubSessions) Destroy(_ domain.SessionType, done func(error)) {
	s.destroys++
	s.disp.Post(func() { done(domain.ErrSessionNotFound) })
}

func (s *stubSessions) FindAndFilter(req orchestrator.FindRequest, done func([]domain.SearchResult, error)) {
	s.finds = append(s.finds, req)
	results := domain.CloneResults(s.results)
	s.disp.Post(func() { done(results, nil) })
}

func (s *stubSessions) Join(r domain.SearchResult, _ domain.SessionType, done func(error)) {
	s.joins = append(s.joins, r)
	var err error
	if len(s.joinErrs) > 0 {
		err, s.joinErrs = s.joinErrs[0], s.joinErrs[1:]
	}
	s.disp.Post(func() { done(err) })
}

func (s *stubSessions) LocalPlayerID() (string, bool) { return s.local, s.local != "" }

type harness struct {
	disp     *looptest.Manual
	sessions *stubSessions
	source   *config.StaticMigration
	ctl      *Controller
	log      []events.Event
}

func newHarness(local string) *harness {
	h := &harness{disp: looptest.New()}
	h.sessions = &stubSessions{disp: h.disp, local: local}
	h.source = config.NewStaticMigration(config.DefaultMigration())
	bus := events.NewBus()
	bus.Subscribe(func(e events.Event) { h.log = append(h.log, e) })
	h.ctl = New(h.sessions, h.disp, bus, h.source, logger.NewNop())
	return h
}

// armed caches migratable settings and an heir.
func (h *harness) armed(heir string) domain.SessionSettings {
	s := h.ctl.CacheSessionSettings(domain.SessionSettings{
		DisplayName:    "Friday",
		MaxPlayers:     4,
		Type:           domain.GameSession,
		AllowMigration: true,
	})
	h.ctl.SetHeir(heir)
	return s
}

func (h *harness) names() []string {
	out := make([]string, len(h.log))
	for i, e := range h.log {
		out[i] = e.EventName()
	}
	return out
}

func (h *harness) failures() []events.MigrationFailed {
	var out []events.MigrationFailed
	for _, e := range h.log {
		if f, ok := e.(events.MigrationFailed); ok {
			out = append(out, f)
		}
	}
	return out
}

var lost = world.Failure{Kind: world.ConnectionLost, Message: "host closed"}

func migrationFilter(filters []domain.SearchFilter) (domain.SearchFilter, bool) {
	for _, f := range filters {
		if f.Key == domain.KeyMigrationID {
			return f, true
		}
	}
	return domain.SearchFilter{}, false
}

func TestGuardIgnoresFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		mode    world.NetMode
		failure world.Failure
	}{
		{
			name: "migration disabled",
			setup: func(h *harness) {
				h.armed("p-heir")
				cfg := config.DefaultMigration()
				cfg.Enabled = false
				h.source.Set(cfg)
			},
			mode:    world.Client,
			failure: lost,
		},
		{
			name: "session does not allow migration",
			setup: func(h *harness) {
				h.ctl.CacheSessionSettings(domain.SessionSettings{Type: domain.GameSession, AllowMigration: false})
				h.ctl.SetHeir("p-heir")
			},
			mode:    world.Client,
			failure: lost,
		},
		{
			name:    "no cached session",
			setup:   func(h *harness) { h.ctl.SetHeir("p-heir") },
			mode:    world.Client,
			failure: lost,
		},
		{
			name:    "host observes its own failure",
			setup:   func(h *harness) { h.armed("p-heir") },
			mode:    world.ListenServer,
			failure: lost,
		},
		{
			name:    "authentication failure",
			setup:   func(h *harness) { h.armed("p-heir") },
			mode:    world.Client,
			failure: world.Failure{Kind: world.AuthenticationFailure},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness("p-local")
			tt.setup(h)

			if h.ctl.HandleNetworkFailure(tt.mode, tt.failure) {
				t.Errorf("HandleNetworkFailure() = true, want ignored")
			}
			h.disp.Advance(time.Minute)

			if h.ctl.Phase() != Idle {
				t.Errorf("phase = %v, want idle", h.ctl.Phase())
			}
			if len(h.log) != 0 {
				t.Errorf("events = %v, want none", h.names())
			}
			if n := len(h.sessions.creates) + len(h.sessions.finds) + h.sessions.destroys; n != 0 {
				t.Errorf("%d session calls, want none", n)
			}
		})
	}
}

func TestIntentionalLeaveIsConsumed(t *testing.T) {
	h := newHarness("p-local")
	h.armed("p-heir")
	h.ctl.MarkIntentionalLeave()

	if h.ctl.HandleNetworkFailure(world.Client, lost) {
		t.Fatalf("failure after an intentional leave started a recovery")
	}
	if !h.ctl.HandleNetworkFailure(world.Client, lost) {
		t.Errorf("next failure was ignored")
	}
}

func TestSecondFailureWhileInFlightIsRefused(t *testing.T) {
	h := newHarness("p-local")
	h.armed("p-heir")

	if !h.ctl.HandleNetworkFailure(world.Client, lost) {
		t.Fatal("recovery not started")
	}
	if h.ctl.HandleNetworkFailure(world.Client, world.Failure{Kind: world.ConnectionTimeout}) {
		t.Errorf("second recovery started while one is in flight")
	}
	if got := h.names(); len(got) != 1 || got[0] != "migration_started" {
		t.Errorf("events = %v", got)
	}
}

func TestNoHeirFails(t *testing.T) {
	h := newHarness("p-local")
	h.armed("")

	if !h.ctl.HandleNetworkFailure(world.Client, lost) {
		t.Fatal("HandleNetworkFailure() = false")
	}
	f := h.failures()
	if len(f) != 1 || f[0].Reason != ReasonNoHeir || !errors.Is(f[0].Err, ErrNoHeir) {
		t.Errorf("failures = %+v", f)
	}
	if h.ctl.Phase() != Idle {
		t.Errorf("phase = %v, want idle", h.ctl.Phase())
	}
}

func TestHostRecoveryKeepsMigrationID(t *testing.T) {
	h := newHarness("p-local")
	settings := h.armed("p-local")
	if len(settings.MigrationID) != domain.MigrationIDLength {
		t.Fatalf("migration ID %q not generated", settings.MigrationID)
	}

	h.ctl.HandleNetworkFailure(world.Client, lost)
	if h.ctl.Phase() != HostRecovering {
		t.Errorf("phase = %v, want host_recovering", h.ctl.Phase())
	}
	h.disp.Drain()

	if h.sessions.destroys != 1 || len(h.sessions.creates) != 1 {
		t.Fatalf("destroys=%d creates=%d, want 1/1", h.sessions.destroys, len(h.sessions.creates))
	}
	req := h.sessions.creates[0]
	f, ok := migrationFilter(req.ExtraFilters)
	if !ok || f.Value.Str != settings.MigrationID || f.Op != domain.OpEquals {
		t.Errorf("create filters = %+v, want migration ID %s", req.ExtraFilters, settings.MigrationID)
	}
	if req.Settings.MigrationID != settings.MigrationID {
		t.Errorf("settings migration ID = %q, want %q", req.Settings.MigrationID, settings.MigrationID)
	}

	got := h.names()
	if len(got) != 2 || got[0] != "migration_started" || got[1] != "migration_completed" {
		t.Errorf("events = %v", got)
	}
	if started := h.log[0].(events.MigrationStarted); !started.AsHost {
		t.Errorf("MigrationStarted.AsHost = false")
	}
	if h.ctl.Phase() != Idle || h.ctl.Heir() != "" {
		t.Errorf("phase=%v heir=%q after completion", h.ctl.Phase(), h.ctl.Heir())
	}
}

func TestHostRecoveryRetries(t *testing.T) {
	tests := []struct {
		name        string
		retries     int
		createErrs  int
		wantCreates int
		wantEvent   string
	}{
		{name: "single attempt by default", retries: 0, createErrs: 1, wantCreates: 1, wantEvent: "migration_failed"},
		{name: "retry until success", retries: 2, createErrs: 2, wantCreates: 3, wantEvent: "migration_completed"},
		{name: "retries exhausted", retries: 1, createErrs: 5, wantCreates: 2, wantEvent: "migration_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness("p-local")
			cfg := config.DefaultMigration()
			cfg.HostRecoveryRetries = tt.retries
			h.source.Set(cfg)
			h.armed("p-local")
			for i := 0; i < tt.createErrs; i++ {
				h.sessions.createErrs = append(h.sessions.createErrs, domain.ErrBackendReportedFailure)
			}

			h.ctl.HandleNetworkFailure(world.Client, lost)
			h.disp.Advance(time.Minute)

			if len(h.sessions.creates) != tt.wantCreates {
				t.Errorf("creates = %d, want %d", len(h.sessions.creates), tt.wantCreates)
			}
			got := h.names()
			if got[len(got)-1] != tt.wantEvent {
				t.Errorf("events = %v, want last %s", got, tt.wantEvent)
			}
			if h.ctl.Phase() != Idle {
				t.Errorf("phase = %v, want idle", h.ctl.Phase())
			}
		})
	}
}

func TestClientRecoveryJoinsFoundSession(t *testing.T) {
	h := newHarness("p-local")
	settings := h.armed("p-heir")
	match := domain.SearchResult{SessionID: "ABC123", Handle: "h1"}
	h.sessions.results = []domain.SearchResult{match, {SessionID: "OTHER", Handle: "h2"}}

	h.ctl.HandleNetworkFailure(world.Client, lost)
	h.disp.Drain()
	if h.sessions.destroys != 1 {
		t.Errorf("stale session destroyed %d times, want 1", h.sessions.destroys)
	}

	h.disp.Advance(5*time.Second - time.Millisecond)
	if len(h.sessions.finds) != 0 {
		t.Fatalf("searched before the search interval")
	}
	h.disp.Advance(time.Millisecond)

	if len(h.sessions.finds) != 1 {
		t.Fatalf("finds = %d, want 1", len(h.sessions.finds))
	}
	req := h.sessions.finds[0]
	f, ok := migrationFilter(req.Filters)
	if !ok || f.Value.Str != settings.MigrationID || !f.ApplyToQuery {
		t.Errorf("find filters = %+v", req.Filters)
	}
	if req.MaxResults != clientSearchMaxResults || !req.BypassCache {
		t.Errorf("find request = %+v", req)
	}

	if len(h.sessions.joins) != 1 || h.sessions.joins[0].Handle != "h1" {
		t.Errorf("joins = %+v, want h1 exactly once", h.sessions.joins)
	}
	got := h.names()
	if len(got) != 2 || got[1] != "migration_completed" {
		t.Errorf("events = %v", got)
	}

	h.disp.Advance(time.Minute)
	if len(h.sessions.joins) != 1 || len(h.sessions.finds) != 1 {
		t.Errorf("activity after completion: finds=%d joins=%d", len(h.sessions.finds), len(h.sessions.joins))
	}
}

func TestClientRecoveryRetryBudget(t *testing.T) {
	h := newHarness("p-local")
	cfg := config.DefaultMigration()
	cfg.MaxRetries = 3
	h.source.Set(cfg)
	h.armed("p-heir")

	h.ctl.HandleNetworkFailure(world.Client, lost)
	h.disp.Advance(10 * time.Minute)

	if len(h.sessions.finds) != 3 {
		t.Errorf("finds = %d, want 3", len(h.sessions.finds))
	}
	f := h.failures()
	if len(f) != 1 {
		t.Fatalf("MigrationFailed emitted %d times, want 1", len(f))
	}
	if f[0].Reason != ReasonTimedOut || !errors.Is(f[0].Err, domain.ErrMigrationTimeout) {
		t.Errorf("failure = %+v", f[0])
	}
	if h.ctl.Phase() != Idle || h.disp.PendingTimers() != 0 {
		t.Errorf("phase=%v timers=%d after timeout", h.ctl.Phase(), h.disp.PendingTimers())
	}
}

func TestClientJoinFailureSearchesAgain(t *testing.T) {
	h := newHarness("p-local")
	h.armed("p-heir")
	h.sessions.results = []domain.SearchResult{{SessionID: "ABC123", Handle: "h1"}}
	h.sessions.joinErrs = []error{domain.ErrBackendReportedFailure}

	h.ctl.HandleNetworkFailure(world.Client, lost)
	h.disp.Advance(5 * time.Second)
	if len(h.sessions.joins) != 1 || h.ctl.Phase() != ClientSearching {
		t.Fatalf("joins=%d phase=%v after failed join", len(h.sessions.joins), h.ctl.Phase())
	}

	h.disp.Advance(2 * time.Second)
	if len(h.sessions.finds) != 2 || len(h.sessions.joins) != 2 {
		t.Errorf("finds=%d joins=%d, want a fresh search then a join", len(h.sessions.finds), len(h.sessions.joins))
	}
	if h.ctl.Phase() != Idle || h.ctl.Snapshot().Retries != 1 {
		t.Errorf("status = %+v", h.ctl.Snapshot())
	}
}

func TestDelaysAreReadAtEachStep(t *testing.T) {
	h := newHarness("p-local")
	h.armed("p-heir")

	h.ctl.HandleNetworkFailure(world.Client, lost)
	h.disp.Advance(5 * time.Second)
	if len(h.sessions.finds) != 1 {
		t.Fatalf("finds = %d, want 1", len(h.sessions.finds))
	}

	cfg := config.DefaultMigration()
	cfg.ClientRetryDelay = 10 * time.Second
	h.source.Set(cfg)

	// The delay in force was armed before the change.
	h.disp.Advance(3 * time.Second)
	if len(h.sessions.finds) != 2 {
		t.Fatalf("finds = %d, want 2", len(h.sessions.finds))
	}
	h.disp.Advance(9 * time.Second)
	if len(h.sessions.finds) != 2 {
		t.Errorf("new delay not applied: finds = %d", len(h.sessions.finds))
	}
	h.disp.Advance(time.Second)
	if len(h.sessions.finds) != 3 {
		t.Errorf("finds = %d, want 3", len(h.sessions.finds))
	}
}

func TestResetAbandonsRecovery(t *testing.T) {
	h := newHarness("p-local")
	h.armed("p-heir")

	h.ctl.HandleNetworkFailure(world.Client, lost)
	h.disp.Drain()
	h.ctl.Reset()
	h.disp.Advance(time.Minute)

	if len(h.sessions.finds) != 0 {
		t.Errorf("searched %d times after Reset", len(h.sessions.finds))
	}
	if !h.ctl.HandleNetworkFailure(world.Client, lost) {
		t.Errorf("recovery refused after Reset")
	}
}

func TestCacheFromResult(t *testing.T) {
	h := newHarness("p-local")
	r := domain.SearchResult{
		SessionID:  "ABC123",
		MaxPlayers: 8,
		Attributes: map[string]domain.Value{domain.KeyMigrationID: domain.StringValue("MIG")},
	}
	h.ctl.CacheFromResult(r, domain.PartySession)

	s, ok := h.ctl.Settings()
	if !ok || s.MigrationID != "MIG" || !s.AllowMigration || s.Type != domain.PartySession || s.MaxPlayers != 8 {
		t.Errorf("settings = %+v", s)
	}

	h.ctl.CacheFromResult(domain.SearchResult{SessionID: "X"}, domain.GameSession)
	if s, _ := h.ctl.Settings(); s.AllowMigration {
		t.Errorf("session without migration ID allows migration")
	}
}
