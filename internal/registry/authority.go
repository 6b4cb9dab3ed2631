package registry

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/replication"
)

const publishTimeout = 2 * time.Second

// AuthorityOptions configures an Authority.
type AuthorityOptions struct {
	SessionName string
	HostID      string
	// MaxPlayers is advisory: a larger count is logged, never clamped.
	MaxPlayers int
	// Topic defaults to DefaultTopic(SessionName).
	Topic string
}

// Authority is the single writer of a session's registry state. All
// methods must be called on the control thread.
type Authority struct {
	sessions backend.Sessions
	channel  replication.Channel
	bus      *events.Bus
	logger   logger.Logger
	opts     AuthorityOptions

	handler      backend.HandlerID
	active       bool
	state        State
	lastNotified int
	observers    []func(State)
}

func NewAuthority(sessions backend.Sessions, ch replication.Channel, bus *events.Bus, log logger.Logger, opts AuthorityOptions) *Authority {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic(opts.SessionName)
	}
	return &Authority{
		sessions: sessions,
		channel:  ch,
		bus:      bus,
		logger:   logger.Component(log, "registry").With(logger.String("session", opts.SessionName)),
		opts:     opts,
		state:    State{SessionName: opts.SessionName, HostID: opts.HostID, MaxPlayers: opts.MaxPlayers},
	}
}

// Init starts tracking the session and publishes its current state.
func (a *Authority) Init() {
	if a.active {
		return
	}
	a.active = true
	a.handler = a.sessions.Subscribe(backend.ParticipantsChanged, func(n backend.Notification) {
		if n.SessionName != a.opts.SessionName {
			return
		}
		a.recompute(n.PlayerID, n.Joined)
	})
	a.logger.Info("registry authority started", logger.String("topic", a.opts.Topic))
	a.recompute("", false)
	a.publish()
}

// Shutdown stops tracking. The last published state stays in place.
func (a *Authority) Shutdown() {
	if !a.active {
		return
	}
	a.active = false
	a.sessions.Unsubscribe(a.handler)
	a.logger.Info("registry authority stopped")
}

func (a *Authority) Active() bool  { return a.active }
func (a *Authority) Topic() string { return a.opts.Topic }
func (a *Authority) State() State  { return a.state.Clone() }

// OnState registers fn to run after every state change.
func (a *Authority) OnState(fn func(State)) {
	a.observers = append(a.observers, fn)
}

// Refresh recomputes the state from the service without a notification.
func (a *Authority) Refresh() {
	a.recompute("", false)
}

// recompute reads the true player list from the service. playerID is the
// identity carried by the triggering notification, if any.
func (a *Authority) recompute(playerID string, joined bool) {
	var players []string
	if ns, ok := a.sessions.NamedSession(a.opts.SessionName); ok {
		players = ns.RegisteredPlayers
	}
	count := len(players)
	heir := ElectHeir(players, a.opts.HostID)

	membershipChanged := !sameMembers(players, a.state.Players) || heir != a.state.Heir
	if count == a.lastNotified && !membershipChanged {
		return
	}

	a.state.Players = append([]string(nil), players...)
	a.state.Count = count
	a.state.Heir = heir
	a.state.Version++

	if a.opts.MaxPlayers > 0 && count > a.opts.MaxPlayers {
		a.logger.Warn("player count exceeds session capacity",
			logger.Int("count", count),
			logger.Int("max_players", a.opts.MaxPlayers))
	}

	a.publish()
	for _, fn := range a.observers {
		fn(a.state.Clone())
	}

	previous := a.lastNotified
	if count == previous {
		// Joins and leaves netted out; membership is republished silently.
		return
	}
	a.lastNotified = count

	a.logger.Info("player count changed",
		logger.Int("previous", previous),
		logger.Int("count", count),
		logger.String("heir", heir))

	a.bus.Publish(events.PlayerCountChanged{SessionName: a.opts.SessionName, Count: count})
	if count > previous {
		id := ""
		if joined {
			id = playerID
		}
		a.bus.Publish(events.PlayerJoined{SessionName: a.opts.SessionName, PlayerID: id})
	} else {
		id := ""
		if !joined {
			id = playerID
		}
		a.bus.Publish(events.PlayerLeft{SessionName: a.opts.SessionName, PlayerID: id})
	}
}

func (a *Authority) publish() {
	if a.channel == nil {
		return
	}
	data, err := a.state.Marshal()
	if err != nil {
		a.logger.Error("failed to encode registry state", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := a.channel.Publish(ctx, a.opts.Topic, data); err != nil {
		a.logger.Error("failed to publish registry state", logger.Error(err))
	}
}
