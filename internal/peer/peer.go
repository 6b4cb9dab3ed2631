// Package peer runs one participant of a session. It hosts and joins
// through the orchestrator, keeps the registry authority or mirror that
// matches its current role and hands network failures to the migration
// controller. All methods must be called on the control thread.
package peer

import (
	"context"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/loop"
	"github.com/MrSnakeDoc/nexus/internal/migration"
	"github.com/MrSnakeDoc/nexus/internal/orchestrator"
	"github.com/MrSnakeDoc/nexus/internal/registry"
	"github.com/MrSnakeDoc/nexus/internal/replication"
	"github.com/MrSnakeDoc/nexus/internal/world"
)

// Registry roles reported by RegistryView.
const (
	RoleNone      = "none"
	RoleAuthority = "authority"
	RoleMirror    = "mirror"
)

// RegistryView is what this peer knows about its session's players.
type RegistryView struct {
	Role  string          `json:"role"`
	Topic string          `json:"topic,omitempty"`
	State *registry.State `json:"state,omitempty"`
}

type Peer struct {
	disp     loop.Dispatcher
	world    *world.World
	orch     *orchestrator.Orchestrator
	ctl      *migration.Controller
	channel  replication.Channel
	bus      *events.Bus
	logger   logger.Logger
	baseMode world.NetMode

	ctx         context.Context
	authority   *registry.Authority
	mirror      *registry.Mirror
	mirrorTopic string
	tokens      []events.Token
	unwatch     func()
}

// New builds a peer. ch may be nil, in which case registry state is kept
// locally and never replicated.
func New(w *world.World, orch *orchestrator.Orchestrator, ctl *migration.Controller, ch replication.Channel, disp loop.Dispatcher, log logger.Logger) *Peer {
	p := &Peer{
		disp:     disp,
		world:    w,
		orch:     orch,
		ctl:      ctl,
		channel:  ch,
		bus:      orch.Bus(),
		logger:   logger.Component(log, "peer"),
		baseMode: w.NetMode(),
		ctx:      context.Background(),
	}
	p.mirror = registry.NewMirror(disp, p.bus, log)
	p.mirror.OnState(func(s registry.State) { p.ctl.SetHeir(s.Heir) })
	return p
}

// Start subscribes to session events and network failures. ctx bounds
// the replication subscriptions.
func (p *Peer) Start(ctx context.Context) {
	p.ctx = ctx
	p.tokens = append(p.tokens,
		events.On(p.bus, p.onCreated),
		events.On(p.bus, p.onDestroyed),
		events.On(p.bus, p.onJoined),
		events.On(p.bus, p.onMigrationStarted),
		events.On(p.bus, p.onMigrationCompleted),
		events.On(p.bus, p.onMigrationFailed),
	)
	// NotifyNetworkFailure is only ever called on the control thread.
	p.unwatch = p.world.OnNetworkFailure(func(f world.Failure) {
		p.ctl.HandleNetworkFailure(p.world.NetMode(), f)
	})
	p.logger.Info("peer started", logger.String("net_mode", p.baseMode.String()))
}

// Stop releases every subscription. Sessions are left as they are.
func (p *Peer) Stop() {
	for _, t := range p.tokens {
		p.bus.Unsubscribe(t)
	}
	p.tokens = nil
	if p.unwatch != nil {
		p.unwatch()
		p.unwatch = nil
	}
	p.stopAuthority()
	p.mirror.Detach()
	p.ctl.Reset()
}

func (p *Peer) World() *world.World                      { return p.world }
func (p *Peer) Orchestrator() *orchestrator.Orchestrator { return p.orch }
func (p *Peer) Migration() *migration.Controller         { return p.ctl }

// Host creates a session. Migration-enabled settings are cached first so
// the session advertises the migration ID it will be recreated under.
func (p *Peer) Host(req orchestrator.CreateRequest, done func(domain.SessionSettings, error)) {
	if req.Settings.AllowMigration {
		req.Settings = p.ctl.CacheSessionSettings(req.Settings)
	} else {
		req.Settings.MigrationID = ""
	}
	settings := req.Settings
	p.orch.Create(req, func(err error) {
		if done != nil {
			done(settings, err)
		}
	})
}

// Join joins the session behind r and remembers it for recovery.
func (p *Peer) Join(r domain.SearchResult, t domain.SessionType, done func(error)) {
	p.ctl.CacheFromResult(r, t)
	p.orch.Join(r, t, done)
}

// Leave ends the local session of type t on purpose. The network failure
// that may follow is not treated as a host loss.
func (p *Peer) Leave(t domain.SessionType, done func(error)) {
	p.ctl.Reset()
	p.ctl.MarkIntentionalLeave()
	p.orch.Destroy(t, done)
}

// ReportFailure feeds a network failure through the world, as the
// transport would.
func (p *Peer) ReportFailure(f world.Failure) {
	p.world.NotifyNetworkFailure(f)
}

func (p *Peer) Registry() RegistryView {
	if p.authority != nil && p.authority.Active() {
		s := p.authority.State()
		return RegistryView{Role: RoleAuthority, Topic: p.authority.Topic(), State: &s}
	}
	if s, ok := p.mirror.State(); ok {
		return RegistryView{Role: RoleMirror, Topic: p.mirrorTopic, State: &s}
	}
	return RegistryView{Role: RoleNone}
}

func (p *Peer) onCreated(e events.SessionCreated) {
	if !e.Success {
		return
	}
	ns, ok := p.orch.LocalSession(domain.SessionTypeFromName(e.SessionName))
	if !ok {
		return
	}
	if p.world.NetMode() != world.DedicatedServer {
		p.world.SetNetMode(world.ListenServer)
	}
	p.mirror.Reset()
	p.mirrorTopic = ""
	p.startAuthority(ns)
}

func (p *Peer) onJoined(e events.SessionJoined) {
	if !e.Success {
		return
	}
	p.world.SetNetMode(world.Client)
	p.stopAuthority()

	ns, ok := p.orch.LocalSession(domain.SessionTypeFromName(e.SessionName))
	if !ok || p.channel == nil {
		return
	}
	topic := registry.SessionTopic(ns.Name, ns.SessionID)
	if err := p.mirror.Attach(p.ctx, p.channel, topic); err != nil {
		p.logger.Warn("failed to follow session registry",
			logger.String("topic", topic),
			logger.Error(err))
		return
	}
	p.mirrorTopic = topic
}

func (p *Peer) onDestroyed(e events.SessionDestroyed) {
	if !e.Success {
		return
	}
	if p.authority != nil && p.authority.State().SessionName == e.SessionName {
		p.stopAuthority()
	}
	if s, ok := p.mirror.State(); ok && s.SessionName == e.SessionName {
		p.mirror.Reset()
		p.mirrorTopic = ""
	}
	// Recovery destroys the stale session itself and decides the next role.
	if !p.ctl.InFlight() {
		p.world.SetNetMode(p.baseMode)
	}
}

func (p *Peer) onMigrationStarted(e events.MigrationStarted) {
	p.mirror.Detach()
	p.logger.Info("recovering session",
		logger.String("migration_id", e.MigrationID),
		logger.Bool("as_host", e.AsHost))
}

func (p *Peer) onMigrationCompleted(e events.MigrationCompleted) {
	p.logger.Info("session recovered",
		logger.String("migration_id", e.MigrationID),
		logger.Bool("as_host", e.AsHost),
		logger.String("net_mode", p.world.NetMode().String()))
}

func (p *Peer) onMigrationFailed(e events.MigrationFailed) {
	p.logger.Warn("session recovery failed",
		logger.String("reason", e.Reason),
		logger.Error(e.Err))
	p.mirror.Reset()
	p.mirrorTopic = ""
	p.world.SetNetMode(p.baseMode)
}

func (p *Peer) startAuthority(ns backend.NamedSession) {
	p.stopAuthority()

	sub := p.world.Subsystem()
	if sub == nil || sub.Sessions() == nil {
		p.logger.Warn("no session service, registry authority not started")
		return
	}
	hostID, _ := p.orch.LocalPlayerID()

	a := registry.NewAuthority(sub.Sessions(), p.channel, p.bus, p.logger, registry.AuthorityOptions{
		SessionName: ns.Name,
		HostID:      hostID,
		MaxPlayers:  ns.Settings.NumPublicConnections,
		Topic:       registry.SessionTopic(ns.Name, ns.SessionID),
	})
	a.OnState(func(s registry.State) { p.ctl.SetHeir(s.Heir) })
	p.authority = a
	a.Init()
}

func (p *Peer) stopAuthority() {
	if p.authority == nil {
		return
	}
	p.authority.Shutdown()
	p.authority = nil
}
