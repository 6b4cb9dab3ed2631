// Package orchestrator wraps the session service into single-shot
// asynchronous operations: create, destroy, find (with filtering and
// ordering) and join.
//
// Every operation reports through its completion exactly once, on the
// control thread, including failures detected before the service is
// called. The service handler an operation registers is removed before
// that completion runs. Operations never retry.
package orchestrator

import (
	"fmt"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/cache"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/loop"
)

const (
	localUserIndex = 0

	// DefaultMaxResults applies when a find request leaves MaxResults unset.
	DefaultMaxResults = 50
	// findByIDMaxResults bounds the search issued by FindByID.
	findByIDMaxResults = 50
)

// World is the application context operations run in.
type World interface {
	Subsystem() backend.Subsystem
	ClientTravel(url string) error
}

// Orchestrator issues session operations against the world's service.
// All methods must be called on the control thread.
type Orchestrator struct {
	world  World
	disp   loop.Dispatcher
	cache  cache.SearchCache
	bus    *events.Bus
	logger logger.Logger

	// inFlight holds create, join and destroy operations awaiting their
	// notification. Completions only carry the session name, so a second
	// operation of the same kind and name is refused until the first ends.
	inFlight map[opKey]struct{}
}

type opKey struct {
	kind backend.NotificationKind
	name string
}

func New(w World, disp loop.Dispatcher, c cache.SearchCache, bus *events.Bus, log logger.Logger) *Orchestrator {
	if c == nil {
		c = cache.Nop{}
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Orchestrator{
		world:    w,
		disp:     disp,
		cache:    c,
		bus:      bus,
		logger:   logger.Component(log, "orchestrator"),
		inFlight: make(map[opKey]struct{}),
	}
}

// Bus returns the event bus completions are published on.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

type services struct {
	sessions backend.Sessions
	identity backend.Identity
}

func (o *Orchestrator) services() (services, error) {
	if o.world == nil {
		return services{}, domain.ErrContextUnavailable
	}
	sub := o.world.Subsystem()
	if sub == nil {
		return services{}, domain.ErrBackendUnavailable
	}
	s := sub.Sessions()
	if s == nil {
		return services{}, fmt.Errorf("%w: no session interface", domain.ErrBackendUnavailable)
	}
	return services{sessions: s, identity: sub.Identity()}, nil
}

// localPlayer returns the local player ID, or "" when it cannot be resolved.
func (sv services) localPlayer() string {
	if sv.identity == nil {
		return ""
	}
	id, ok := sv.identity.LocalPlayerID(localUserIndex)
	if !ok {
		return ""
	}
	return id
}

// registerLocal registers the local player with a session. Failures are
// logged and otherwise ignored.
func (o *Orchestrator) registerLocal(sv services, name string) {
	id := sv.localPlayer()
	if id == "" {
		o.logger.Warn("unable to register local player: no local identity",
			logger.String("session", name))
		return
	}
	ok := sv.sessions.RegisterPlayer(name, id)
	o.logger.Info("local player registered",
		logger.String("session", name),
		logger.String("player", id),
		logger.Bool("result", ok))
}

// later runs fn on the next control-thread step.
func (o *Orchestrator) later(fn func()) {
	o.disp.Post(fn)
}

// ─────────────────────────────
// Completion handlers
// ─────────────────────────────

// pending is the service handler of one in-flight operation.
type pending struct {
	sessions backend.Sessions
	id       backend.HandlerID
	fired    bool
}

// await registers a handler for kind. The first notification accepted by
// match removes the handler, then runs finish. Later notifications are
// dropped.
func await(s backend.Sessions, kind backend.NotificationKind, match func(backend.Notification) bool, finish func(backend.Notification)) *pending {
	p := &pending{sessions: s}
	p.id = s.Subscribe(kind, func(n backend.Notification) {
		if p.fired || !match(n) {
			return
		}
		p.fired = true
		s.Unsubscribe(p.id)
		finish(n)
	})
	return p
}

// cancel removes the handler of an operation the service refused.
func (p *pending) cancel() {
	if p.fired {
		return
	}
	p.fired = true
	p.sessions.Unsubscribe(p.id)
}

// claim marks an operation of kind on name as in flight. It returns false
// when one already is; otherwise release must be called before the
// operation completes.
func (o *Orchestrator) claim(kind backend.NotificationKind, name string) (release func(), ok bool) {
	key := opKey{kind: kind, name: name}
	if _, busy := o.inFlight[key]; busy {
		return nil, false
	}
	o.inFlight[key] = struct{}{}
	return func() { delete(o.inFlight, key) }, true
}

func (o *Orchestrator) refuseBusy(kind backend.NotificationKind, name string, finish func(error)) {
	o.logger.Warn("operation already in flight",
		logger.String("session", name),
		logger.String("kind", kind.String()))
	o.later(func() { finish(fmt.Errorf("%w: %s already pending on %s", domain.ErrBackendRejected, kind, name)) })
}

func byName(name string) func(backend.Notification) bool {
	return func(n backend.Notification) bool { return n.SessionName == name }
}
