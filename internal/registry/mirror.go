package registry

import (
	"context"

	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/loop"
	"github.com/MrSnakeDoc/nexus/internal/replication"
)

// Mirror is a read-only copy of an authority's state. It never consults
// the session service: every event it emits is derived from replicated
// values. Apply and the accessors must be called on the control thread.
type Mirror struct {
	disp   loop.Dispatcher
	bus    *events.Bus
	logger logger.Logger

	state     State
	observed  bool
	observers []func(State)
	cancel    func()
}

func NewMirror(disp loop.Dispatcher, bus *events.Bus, log logger.Logger) *Mirror {
	return &Mirror{
		disp:   disp,
		bus:    bus,
		logger: logger.Component(log, "registry_mirror"),
	}
}

// Attach follows topic on ch. Received values are applied on the control
// thread. A previous attachment is dropped.
func (m *Mirror) Attach(ctx context.Context, ch replication.Channel, topic string) error {
	m.Detach()
	cancel, err := ch.Subscribe(ctx, topic, func(payload []byte) {
		s, err := UnmarshalState(payload)
		if err != nil {
			m.logger.Warn("discarding unreadable registry state", logger.Error(err))
			return
		}
		m.disp.Post(func() { m.Apply(s) })
	})
	if err != nil {
		return err
	}
	m.cancel = cancel
	m.logger.Info("following registry", logger.String("topic", topic))
	return nil
}

// Detach stops following. The last state is kept.
func (m *Mirror) Detach() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Reset forgets the mirrored state, e.g. after leaving the session.
func (m *Mirror) Reset() {
	m.Detach()
	m.state = State{}
	m.observed = false
}

func (m *Mirror) OnState(fn func(State)) {
	m.observers = append(m.observers, fn)
}

// State returns the last replicated state and whether one was received.
func (m *Mirror) State() (State, bool) { return m.state.Clone(), m.observed }

// Apply replaces the mirrored state with s. Values older than the current
// one from the same host are ignored.
func (m *Mirror) Apply(s State) {
	if m.observed && s.HostID == m.state.HostID && s.SessionName == m.state.SessionName && s.Version <= m.state.Version {
		return
	}

	// An unobserved session counts as empty, like the authority before its
	// first recompute.
	var previous State
	if m.observed {
		previous = m.state
	}
	m.state = s.Clone()
	m.observed = true

	for _, fn := range m.observers {
		fn(m.state.Clone())
	}

	if s.Count == previous.Count {
		return
	}

	m.bus.Publish(events.PlayerCountChanged{SessionName: s.SessionName, Count: s.Count})
	if s.Count > previous.Count {
		m.bus.Publish(events.PlayerJoined{SessionName: s.SessionName, PlayerID: single(added(previous.Players, s.Players))})
	} else {
		m.bus.Publish(events.PlayerLeft{SessionName: s.SessionName, PlayerID: single(added(s.Players, previous.Players))})
	}
}

// single returns the only element of ids, or "" when attribution is
// ambiguous.
func single(ids []string) string {
	if len(ids) == 1 {
		return ids[0]
	}
	return ""
}
