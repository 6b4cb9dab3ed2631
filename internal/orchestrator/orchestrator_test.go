package orchestrator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/backend/memory"
	"github.com/MrSnakeDoc/nexus/internal/cache"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/filter"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/loop/looptest"
	"github.com/MrSnakeDoc/nexus/internal/world"
)

type fixture struct {
	disp  *looptest.Manual
	net   *memory.Network
	be    *memory.Backend
	world *world.World
	bus   *events.Bus
	cache *cache.Memory
	orch  *Orchestrator
}

func newFixture(peer, player string, mode world.NetMode) *fixture {
	f := &fixture{disp: looptest.New(), net: memory.NewNetwork(), bus: events.NewBus()}
	f.be = memory.NewBackend(f.net, peer, player, f.disp)
	f.world = world.New(f.be, mode)
	f.cache = cache.NewMemory(3*time.Second, f.disp.Now)
	f.orch = New(f.world, f.disp, f.cache, f.bus, logger.NewNop())
	return f
}

// remote advertises a session the way Create would, owned by another peer.
func (f *fixture) remote(owner, sessionID string, ping int, extra map[string]domain.Value) string {
	attrs := map[string]domain.Value{
		domain.KeySessionType:  domain.StringValue("GameSession"),
		domain.KeyUsesPresence: domain.BoolValue(true),
		domain.KeySessionID:    domain.StringValue(sessionID),
		domain.KeyDisplayName:  domain.StringValue("Match " + sessionID),
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return f.net.Host(owner, "GameSession", backend.CreateSettings{
		Advertise:            true,
		NumPublicConnections: 4,
		Attributes:           attrs,
	}, ping)
}

func gameSettings() domain.SessionSettings {
	return domain.SessionSettings{
		DisplayName: "Friday",
		MapName:     "Arena",
		GameMode:    "TDM",
		MaxPlayers:  4,
		Type:        domain.GameSession,
	}
}

func ids(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.SessionID
	}
	return out
}

func TestCreateScenario(t *testing.T) {
	f := newFixture("host", "p-host", world.ListenServer)

	var created []bool
	events.On(f.bus, func(e events.SessionCreated) { created = append(created, e.Success) })

	var first error = errors.New("not called")
	f.orch.Create(CreateRequest{Settings: gameSettings()}, func(err error) { first = err })
	f.disp.Drain()

	if first != nil {
		t.Fatalf("first Create() = %v", first)
	}
	if len(created) != 1 || !created[0] {
		t.Fatalf("SessionCreated events = %v, want [true]", created)
	}

	var second error = errors.New("not called")
	f.orch.Create(CreateRequest{Settings: gameSettings()}, func(err error) { second = err })
	f.disp.Drain()

	if second != nil {
		t.Fatalf("second Create() = %v", second)
	}

	var ops []string
	for _, c := range f.be.Calls() {
		ops = append(ops, c.Op)
	}
	if strings.Join(ops, ",") != "create,destroy,create" {
		t.Errorf("backend calls = %v, want create,destroy,create", ops)
	}
	if f.net.Len() != 1 {
		t.Errorf("network holds %d sessions, want 1", f.net.Len())
	}
}

func TestCreateAdvertisesSettings(t *testing.T) {
	f := newFixture("host", "p-host", world.ListenServer)

	s := gameSettings()
	s.MigrationID = "MIGRATION0000001"
	s.Private = true
	s.Attributes = []domain.Attribute{{Key: "REGION", Value: domain.StringValue("eu")}}
	req := CreateRequest{
		Settings:     s,
		ExtraFilters: []domain.SearchFilter{{Key: "RANKED", Value: domain.BoolValue(true), Op: domain.OpEquals}},
	}

	f.orch.Create(req, nil)
	f.disp.Drain()

	ns, ok := f.be.NamedSession("GameSession")
	if !ok {
		t.Fatal("session not created")
	}
	attrs := ns.Settings.Attributes
	checks := map[string]string{
		domain.KeyDisplayName:  "Friday",
		domain.KeyMapName:      "Arena",
		domain.KeyGameMode:     "TDM",
		domain.KeySessionType:  "GameSession",
		domain.KeyUsesPresence: "true",
		domain.KeyMigrationID:  "MIGRATION0000001",
		"REGION":               "eu",
		"RANKED":               "true",
	}
	for key, want := range checks {
		if got := attrs[key].String(); got != want {
			t.Errorf("advertised %s = %q, want %q", key, got, want)
		}
	}
	if id := attrs[domain.KeySessionID].String(); len(id) != domain.DefaultSessionIDLength {
		t.Errorf("generated session id %q", id)
	}
	if ns.Settings.Advertise {
		t.Error("private session is advertised")
	}
	if ns.Settings.NumPublicConnections != 4 {
		t.Errorf("NumPublicConnections = %d, want 4", ns.Settings.NumPublicConnections)
	}
	if len(ns.RegisteredPlayers) != 1 || ns.RegisteredPlayers[0] != "p-host" {
		t.Errorf("registered players = %v, want [p-host]", ns.RegisteredPlayers)
	}
}

func TestCompletionUnregistersHandler(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fixture)
		run     func(f *fixture, done func(error))
		wantErr error
	}{
		{
			name: "create success",
			run: func(f *fixture, done func(error)) {
				f.orch.Create(CreateRequest{Settings: gameSettings()}, done)
			},
		},
		{
			name:    "create failure",
			prepare: func(f *fixture) { f.be.FailNext(backend.CreateComplete) },
			run: func(f *fixture, done func(error)) {
				f.orch.Create(CreateRequest{Settings: gameSettings()}, done)
			},
			wantErr: domain.ErrBackendReportedFailure,
		},
		{
			name:    "create rejected",
			prepare: func(f *fixture) { f.be.RejectNext(backend.CreateComplete) },
			run: func(f *fixture, done func(error)) {
				f.orch.Create(CreateRequest{Settings: gameSettings()}, done)
			},
			wantErr: domain.ErrBackendRejected,
		},
		{
			name: "destroy success",
			prepare: func(f *fixture) {
				f.orch.Create(CreateRequest{Settings: gameSettings()}, nil)
				f.disp.Drain()
			},
			run: func(f *fixture, done func(error)) {
				f.orch.Destroy(domain.GameSession, done)
			},
		},
		{
			name: "destroy failure",
			prepare: func(f *fixture) {
				f.orch.Create(CreateRequest{Settings: gameSettings()}, nil)
				f.disp.Drain()
				f.be.FailNext(backend.DestroyComplete)
			},
			run: func(f *fixture, done func(error)) {
				f.orch.Destroy(domain.GameSession, done)
			},
			wantErr: domain.ErrBackendReportedFailure,
		},
		{
			name: "find success",
			run: func(f *fixture, done func(error)) {
				f.orch.FindAndFilter(FindRequest{}, func(_ []domain.SearchResult, err error) { done(err) })
			},
		},
		{
			name:    "find failure",
			prepare: func(f *fixture) { f.be.FailNext(backend.FindComplete) },
			run: func(f *fixture, done func(error)) {
				f.orch.FindAndFilter(FindRequest{}, func(_ []domain.SearchResult, err error) { done(err) })
			},
			wantErr: domain.ErrBackendReportedFailure,
		},
		{
			name: "join failure",
			run: func(f *fixture, done func(error)) {
				f.orch.Join(domain.SearchResult{Handle: "missing"}, domain.GameSession, done)
			},
			wantErr: domain.ErrBackendReportedFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("peer", "p-local", world.ListenServer)
			if tt.prepare != nil {
				tt.prepare(f)
			}

			calls := 0
			handlersAtCompletion := -1
			var got error
			tt.run(f, func(err error) {
				calls++
				handlersAtCompletion = f.be.HandlerCount()
				got = err
			})

			if calls != 0 {
				t.Fatal("completion fired synchronously")
			}
			f.disp.Drain()

			if calls != 1 {
				t.Fatalf("completion fired %d times, want 1", calls)
			}
			if handlersAtCompletion != 0 {
				t.Errorf("%d service handlers still registered at completion", handlersAtCompletion)
			}
			if tt.wantErr == nil && got != nil {
				t.Errorf("unexpected error %v", got)
			}
			if tt.wantErr != nil && !errors.Is(got, tt.wantErr) {
				t.Errorf("error = %v, want %v", got, tt.wantErr)
			}
		})
	}
}

func TestAwaitDropsSecondNotification(t *testing.T) {
	f := newFixture("host", "", world.ListenServer)

	fired := 0
	await(f.be, backend.CreateComplete, byName("GameSession"), func(backend.Notification) { fired++ })

	f.be.CreateSession(0, "GameSession", backend.CreateSettings{})
	f.be.CreateSession(0, "GameSession", backend.CreateSettings{})
	f.disp.Drain()

	if fired != 1 {
		t.Errorf("handler finished %d times, want 1", fired)
	}
}

func TestUnavailableContext(t *testing.T) {
	t.Run("no world", func(t *testing.T) {
		disp := looptest.New()
		o := New(nil, disp, nil, nil, logger.NewNop())
		var got error
		o.Destroy(domain.GameSession, func(err error) { got = err })
		disp.Drain()
		if !errors.Is(got, domain.ErrContextUnavailable) {
			t.Errorf("error = %v, want ErrContextUnavailable", got)
		}
	})

	t.Run("no subsystem", func(t *testing.T) {
		disp := looptest.New()
		o := New(world.New(nil, world.Client), disp, nil, nil, logger.NewNop())
		var got error
		o.FindAndFilter(FindRequest{}, func(_ []domain.SearchResult, err error) { got = err })
		disp.Drain()
		if !errors.Is(got, domain.ErrBackendUnavailable) {
			t.Errorf("error = %v, want ErrBackendUnavailable", got)
		}
	})

	t.Run("no session interface", func(t *testing.T) {
		f := newFixture("peer", "", world.Client)
		f.be.SetSessionsAvailable(false)
		var got error
		f.orch.Join(domain.SearchResult{}, domain.GameSession, func(err error) { got = err })
		f.disp.Drain()
		if !errors.Is(got, domain.ErrBackendUnavailable) {
			t.Errorf("error = %v, want ErrBackendUnavailable", got)
		}
	})
}

func TestDestroyMissingSession(t *testing.T) {
	f := newFixture("peer", "", world.ListenServer)

	var destroyed []bool
	events.On(f.bus, func(e events.SessionDestroyed) { destroyed = append(destroyed, e.Success) })

	var got error
	f.orch.Destroy(domain.PartySession, func(err error) { got = err })
	f.disp.Drain()

	if !errors.Is(got, domain.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", got)
	}
	if f.be.CallCount("destroy") != 0 {
		t.Error("service destroy called for a missing session")
	}
	if len(destroyed) != 1 || destroyed[0] {
		t.Errorf("SessionDestroyed events = %v, want [false]", destroyed)
	}
}

func TestFindAndFilterPingScenario(t *testing.T) {
	f := newFixture("me", "", world.Client)
	f.remote("a", "s40", 40, nil)
	f.remote("b", "s90", 90, nil)
	f.remote("c", "s60", 60, nil)

	var got []domain.SearchResult
	var gotErr error
	f.orch.FindAndFilter(FindRequest{
		Type:       domain.GameSession,
		MaxResults: 10,
		Rules:      []filter.Rule{filter.NewPingRule(80)},
	}, func(results []domain.SearchResult, err error) {
		got, gotErr = results, err
	})
	f.disp.Drain()

	if gotErr != nil {
		t.Fatalf("FindAndFilter() error = %v", gotErr)
	}
	if strings.Join(ids(got), ",") != "s40,s60" {
		t.Errorf("results = %v, want [s40 s60]", ids(got))
	}
}

func TestFindAndFilterQueryTagsTypeAndPresence(t *testing.T) {
	f := newFixture("me", "", world.Client)
	f.remote("a", "game", 10, nil)
	f.net.Host("b", "PartySession", backend.CreateSettings{
		Advertise:            true,
		NumPublicConnections: 4,
		Attributes: map[string]domain.Value{
			domain.KeySessionType:  domain.StringValue("PartySession"),
			domain.KeyUsesPresence: domain.BoolValue(true),
			domain.KeySessionID:    domain.StringValue("party"),
		},
	}, 10)

	for _, ignore := range []bool{false, true} {
		f.be.IgnoreQuery(ignore)
		f.cache.Invalidate()

		var got []domain.SearchResult
		f.orch.FindAndFilter(FindRequest{Type: domain.PartySession}, func(results []domain.SearchResult, _ error) {
			got = results
		})
		f.disp.Drain()

		if strings.Join(ids(got), ",") != "party" {
			t.Errorf("ignoreQuery=%v: results = %v, want [party]", ignore, ids(got))
		}
	}
}

func TestFindAndFilterSortsAndComputesPlayers(t *testing.T) {
	f := newFixture("me", "", world.Client)
	f.remote("b", "quiet", 50, nil)
	busyID := f.remote("a", "busy", 50, nil)

	other := memory.NewBackend(f.net, "x", "", f.disp)
	search := &backend.Search{Query: domain.SearchQuery{MaxResults: 10}}
	other.FindSessions(0, search)
	f.disp.Drain()
	for _, r := range search.Results {
		if r.Handle == busyID {
			other.JoinSession(0, "GameSession", r.Handle)
		}
	}
	f.disp.Drain()
	other.RegisterPlayer("GameSession", "p1")

	var got []domain.SearchResult
	f.orch.FindAndFilter(FindRequest{
		SortRules: []filter.SortRule{filter.NewPlayerCountSort(0, true)},
	}, func(results []domain.SearchResult, _ error) { got = results })
	f.disp.Drain()

	if strings.Join(ids(got), ",") != "busy,quiet" {
		t.Fatalf("results = %v, want [busy quiet]", ids(got))
	}
	if got[0].CurrentPlayers != 1 || got[0].MaxPlayers != 4 {
		t.Errorf("busy players = %d/%d, want 1/4", got[0].CurrentPlayers, got[0].MaxPlayers)
	}
	if got[0].DisplayName != "Match busy" {
		t.Errorf("DisplayName = %q", got[0].DisplayName)
	}
}

func TestFindAndFilterCache(t *testing.T) {
	f := newFixture("me", "", world.Client)
	f.remote("a", "s1", 10, nil)

	var cachedFlags []bool
	events.On(f.bus, func(e events.SessionsFound) { cachedFlags = append(cachedFlags, e.Cached) })

	search := func(bypass bool) []domain.SearchResult {
		var got []domain.SearchResult
		f.orch.FindAndFilter(FindRequest{BypassCache: bypass}, func(results []domain.SearchResult, _ error) {
			got = results
		})
		f.disp.Drain()
		return got
	}

	search(false)
	again := search(false)
	if f.be.CallCount("find") != 1 {
		t.Errorf("backend queried %d times, want 1", f.be.CallCount("find"))
	}
	if len(again) != 1 || again[0].SessionID != "s1" {
		t.Errorf("cached results = %v", ids(again))
	}

	search(true)
	if f.be.CallCount("find") != 2 {
		t.Errorf("bypass did not query the backend")
	}

	f.disp.Advance(3 * time.Second)
	search(false)
	if f.be.CallCount("find") != 3 {
		t.Errorf("expired cache still served")
	}

	want := []bool{false, true, false, false}
	if len(cachedFlags) != len(want) {
		t.Fatalf("SessionsFound events = %v", cachedFlags)
	}
	for i := range want {
		if cachedFlags[i] != want[i] {
			t.Errorf("event %d cached = %v, want %v", i, cachedFlags[i], want[i])
		}
	}
}

func TestFindByID(t *testing.T) {
	f := newFixture("me", "", world.Client)
	f.remote("a", "ABC234", 10, nil)
	f.remote("b", "XYZ987", 10, nil)

	var got domain.SearchResult
	var err error
	f.orch.FindByID("abc234", domain.GameSession, func(r domain.SearchResult, e error) { got, err = r, e })
	f.disp.Drain()
	if err != nil || got.SessionID != "ABC234" {
		t.Fatalf("FindByID() = %q, %v", got.SessionID, err)
	}

	f.orch.FindByID("NOPE00", domain.GameSession, func(r domain.SearchResult, e error) { err = e })
	f.disp.Drain()
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("FindByID(missing) error = %v", err)
	}
}

func TestJoinTravelsAndRegisters(t *testing.T) {
	f := newFixture("client", "p-client", world.Client)
	host := memory.NewBackend(f.net, "host", "p-host", f.disp)
	hostOrch := New(world.New(host, world.ListenServer), f.disp, nil, nil, logger.NewNop())
	hostOrch.Create(CreateRequest{Settings: gameSettings()}, nil)
	f.disp.Drain()

	var found []domain.SearchResult
	f.orch.FindAndFilter(FindRequest{}, func(r []domain.SearchResult, _ error) { found = r })
	f.disp.Drain()
	if len(found) != 1 {
		t.Fatalf("found %d sessions", len(found))
	}

	var joined []bool
	events.On(f.bus, func(e events.SessionJoined) { joined = append(joined, e.Success) })

	var err error = errors.New("not called")
	f.orch.Join(found[0], domain.GameSession, func(e error) { err = e })
	f.disp.Drain()

	if err != nil {
		t.Fatalf("Join() = %v", err)
	}
	url, travels := f.world.LastTravel()
	if travels != 1 || !strings.HasPrefix(url, "memory://") {
		t.Errorf("travel = %q x%d", url, travels)
	}
	ns, _ := host.NamedSession("GameSession")
	if strings.Join(ns.RegisteredPlayers, ",") != "p-host,p-client" {
		t.Errorf("host players = %v", ns.RegisteredPlayers)
	}
	if len(joined) != 1 || !joined[0] {
		t.Errorf("SessionJoined events = %v", joined)
	}

	pc, err := hostOrch.PlayerCounts(domain.GameSession)
	if err != nil || pc.Current != 2 || pc.Max != 4 {
		t.Errorf("PlayerCounts() = %+v, %v", pc, err)
	}
}

func TestJoinWithoutConnectStringDoesNotTravel(t *testing.T) {
	f := newFixture("client", "p-client", world.Client)
	handle := f.remote("host", "s1", 10, nil)

	var err error
	f.orch.Join(domain.SearchResult{Handle: handle}, domain.GameSession, func(e error) { err = e })
	f.net.Drop("host")
	f.disp.Drain()

	if !errors.Is(err, domain.ErrConnectResolutionFailed) {
		t.Errorf("error = %v, want ErrConnectResolutionFailed", err)
	}
	if _, travels := f.world.LastTravel(); travels != 0 {
		t.Errorf("travelled %d times after a failed resolution", travels)
	}
}

func TestSameNameOperationsDoNotShareCompletions(t *testing.T) {
	f := newFixture("client", "p-client", world.Client)
	first := f.remote("host-a", "s1", 10, nil)
	second := f.remote("host-b", "s2", 20, nil)

	var joined []bool
	events.On(f.bus, func(e events.SessionJoined) { joined = append(joined, e.Success) })

	var err1, err2 error = errors.New("not called"), errors.New("not called")
	f.orch.Join(domain.SearchResult{Handle: first}, domain.GameSession, func(e error) { err1 = e })
	f.orch.Join(domain.SearchResult{Handle: second}, domain.GameSession, func(e error) { err2 = e })
	f.disp.Drain()

	if err1 != nil {
		t.Errorf("first Join() = %v, want nil", err1)
	}
	if !errors.Is(err2, domain.ErrBackendRejected) {
		t.Errorf("second Join() = %v, want ErrBackendRejected", err2)
	}
	if _, travels := f.world.LastTravel(); travels != 1 {
		t.Errorf("travelled %d times, want 1", travels)
	}
	if len(joined) != 2 || !joined[0] || joined[1] {
		t.Errorf("SessionJoined events = %v, want [true false]", joined)
	}
	if n := f.be.CallCount("join"); n != 1 {
		t.Errorf("backend saw %d joins, want 1", n)
	}

	// Once the first join completed, a new one reaches the backend and
	// reports its own result.
	var err3 error
	f.orch.Join(domain.SearchResult{Handle: second}, domain.GameSession, func(e error) { err3 = e })
	f.disp.Drain()
	if !errors.Is(err3, domain.ErrBackendReportedFailure) {
		t.Errorf("third Join() = %v, want ErrBackendReportedFailure", err3)
	}
}

func TestRefusedCallReleasesOperation(t *testing.T) {
	f := newFixture("host", "p-host", world.ListenServer)

	f.be.RejectNext(backend.CreateComplete)
	var err error
	f.orch.Create(CreateRequest{Settings: gameSettings()}, func(e error) { err = e })
	f.disp.Drain()
	if !errors.Is(err, domain.ErrBackendRejected) {
		t.Fatalf("Create() = %v, want ErrBackendRejected", err)
	}

	f.orch.Create(CreateRequest{Settings: gameSettings()}, func(e error) { err = e })
	f.disp.Drain()
	if err != nil {
		t.Errorf("Create() after a refused call = %v", err)
	}
}
