package orchestrator

import (
	"fmt"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/logger"
)

// Join joins the session behind result and travels to it. Travel is only
// attempted once the join succeeded and a connect string resolved.
func (o *Orchestrator) Join(result domain.SearchResult, t domain.SessionType, done func(error)) {
	name := t.Name()
	finish := func(err error) {
		o.bus.Publish(events.SessionJoined{SessionName: name, Success: err == nil})
		if done != nil {
			done(err)
		}
	}

	sv, err := o.services()
	if err != nil {
		o.logger.Error("join session failed", logger.String("session", name), logger.Error(err))
		o.later(func() { finish(err) })
		return
	}

	release, ok := o.claim(backend.JoinComplete, name)
	if !ok {
		o.refuseBusy(backend.JoinComplete, name, finish)
		return
	}

	p := await(sv.sessions, backend.JoinComplete, byName(name), func(n backend.Notification) {
		release()
		if n.Join != backend.JoinSuccess {
			o.logger.Error("join session failed",
				logger.String("session", name),
				logger.String("result", n.Join.String()))
			finish(fmt.Errorf("%w: %s", domain.ErrBackendReportedFailure, n.Join))
			return
		}

		url, ok := sv.sessions.ResolveConnectString(name)
		if !ok {
			o.logger.Error("failed to resolve connect string", logger.String("session", name))
			finish(domain.ErrConnectResolutionFailed)
			return
		}

		o.registerLocal(sv, name)

		o.logger.Info("connecting", logger.String("session", name), logger.String("url", url))
		if err := o.world.ClientTravel(url); err != nil {
			finish(fmt.Errorf("client travel to %s: %w", url, err))
			return
		}
		finish(nil)
	})

	o.logger.Info("joining session",
		logger.String("session", name),
		logger.String("session_id", result.SessionID))

	if !sv.sessions.JoinSession(localUserIndex, name, result.Handle) {
		p.cancel()
		release()
		o.logger.Error("join session call failed to start", logger.String("session", name))
		o.later(func() { finish(domain.ErrBackendRejected) })
	}
}

// PlayerCount is the occupancy of a local session.
type PlayerCount struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// PlayerCounts returns the occupancy of the local session of type t.
// Current is clamped to Max when Max is known.
func (o *Orchestrator) PlayerCounts(t domain.SessionType) (PlayerCount, error) {
	sv, err := o.services()
	if err != nil {
		return PlayerCount{}, err
	}
	ns, ok := sv.sessions.NamedSession(t.Name())
	if !ok {
		return PlayerCount{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, t.Name())
	}
	pc := PlayerCount{Current: len(ns.RegisteredPlayers), Max: ns.Settings.NumPublicConnections}
	if pc.Max > 0 && pc.Current > pc.Max {
		pc.Current = pc.Max
	}
	return pc, nil
}

// LocalSession returns the service's view of the local session of type t.
func (o *Orchestrator) LocalSession(t domain.SessionType) (backend.NamedSession, bool) {
	sv, err := o.services()
	if err != nil {
		return backend.NamedSession{}, false
	}
	return sv.sessions.NamedSession(t.Name())
}

// LocalPlayerID returns the local player's identity, if known.
func (o *Orchestrator) LocalPlayerID() (string, bool) {
	sv, err := o.services()
	if err != nil {
		return "", false
	}
	id := sv.localPlayer()
	return id, id != ""
}
