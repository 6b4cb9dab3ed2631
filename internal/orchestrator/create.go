package orchestrator

import (
	"fmt"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/filter"
	"github.com/MrSnakeDoc/nexus/internal/logger"
)

// CreateRequest describes a session to host.
type CreateRequest struct {
	Settings domain.SessionSettings
	// ExtraFilters are advertised as additional key/value settings.
	ExtraFilters []domain.SearchFilter
	Preset       *filter.Preset
}

// Create hosts a session of Settings.Type. An existing local session of
// the same type is destroyed first; if that destroy fails, so does the
// create. Create does not open any level.
func (o *Orchestrator) Create(req CreateRequest, done func(error)) {
	name := req.Settings.Type.Name()
	finish := func(err error) {
		o.bus.Publish(events.SessionCreated{SessionName: name, Success: err == nil})
		if done != nil {
			done(err)
		}
	}

	sv, err := o.services()
	if err != nil {
		o.logger.Error("create session failed", logger.String("session", name), logger.Error(err))
		o.later(func() { finish(err) })
		return
	}

	if _, exists := sv.sessions.NamedSession(name); !exists {
		o.create(sv, req, finish)
		return
	}

	o.logger.Warn("existing session found, destroying before recreation", logger.String("session", name))
	o.destroy(sv, name, func(err error) {
		if err != nil {
			finish(fmt.Errorf("destroy existing %s: %w", name, err))
			return
		}
		o.create(sv, req, finish)
	})
}

func (o *Orchestrator) create(sv services, req CreateRequest, finish func(error)) {
	name := req.Settings.Type.Name()
	release, ok := o.claim(backend.CreateComplete, name)
	if !ok {
		o.refuseBusy(backend.CreateComplete, name, finish)
		return
	}
	settings := o.buildSettings(req)

	p := await(sv.sessions, backend.CreateComplete, byName(name), func(n backend.Notification) {
		release()
		o.logger.Info("session creation completed",
			logger.String("session", name),
			logger.Bool("success", n.OK))
		if !n.OK {
			finish(domain.ErrBackendReportedFailure)
			return
		}
		o.registerLocal(sv, name)
		finish(nil)
	})

	o.logger.Info("creating session",
		logger.String("session", name),
		logger.String("display_name", req.Settings.DisplayName),
		logger.Int("max_players", req.Settings.MaxPlayers))

	if !sv.sessions.CreateSession(localUserIndex, name, settings) {
		p.cancel()
		release()
		o.logger.Error("create session call failed to start", logger.String("session", name))
		o.later(func() { finish(domain.ErrBackendRejected) })
	}
}

// buildSettings maps session settings to what the service advertises.
func (o *Orchestrator) buildSettings(req CreateRequest) backend.CreateSettings {
	s := req.Settings
	if s.SessionID == "" {
		length := s.SessionIDLength
		if length <= 0 {
			length = domain.DefaultSessionIDLength
		}
		s.SessionID = domain.NewSessionID(length)
	}

	attrs := map[string]domain.Value{
		domain.KeyDisplayName:  domain.StringValue(s.DisplayName),
		domain.KeyMapName:      domain.StringValue(s.MapName),
		domain.KeyGameMode:     domain.StringValue(s.GameMode),
		domain.KeySessionType:  domain.StringValue(s.Type.Name()),
		domain.KeyUsesPresence: domain.BoolValue(true),
		domain.KeySessionID:    domain.StringValue(s.SessionID),
	}
	if s.MigrationID != "" {
		attrs[domain.KeyMigrationID] = domain.StringValue(s.MigrationID)
	}
	for _, a := range s.Attributes {
		if a.Key != "" {
			attrs[a.Key] = a.Value
		}
	}

	resolved := filter.Resolve(req.Preset, req.ExtraFilters, nil, nil)
	for _, f := range resolved.Filters {
		if f.Key == "" || f.Op == domain.OpExists {
			continue
		}
		attrs[f.Key] = f.Value
	}
	if req.Preset != nil {
		for _, r := range filter.CloneRules(req.Preset.Rules) {
			kv, ok := r.(*filter.KeyValueRule)
			if !ok || !kv.Enabled || kv.Key == "" || kv.Op != domain.OpEquals {
				continue
			}
			attrs[kv.Key] = kv.Expected
		}
	}

	return backend.CreateSettings{
		LAN:                  s.LAN,
		Advertise:            !s.Private,
		UsesPresence:         true,
		AllowJoinInProgress:  true,
		FriendsOnly:          s.FriendsOnly,
		NumPublicConnections: s.MaxPlayers,
		Attributes:           attrs,
	}
}

// Destroy ends the local session of type t. It fails with
// ErrSessionNotFound when no such session exists.
func (o *Orchestrator) Destroy(t domain.SessionType, done func(error)) {
	name := t.Name()
	finish := func(err error) {
		o.bus.Publish(events.SessionDestroyed{SessionName: name, Success: err == nil})
		if done != nil {
			done(err)
		}
	}

	sv, err := o.services()
	if err != nil {
		o.logger.Error("destroy session failed", logger.String("session", name), logger.Error(err))
		o.later(func() { finish(err) })
		return
	}
	o.destroy(sv, name, finish)
}

func (o *Orchestrator) destroy(sv services, name string, finish func(error)) {
	if _, ok := sv.sessions.NamedSession(name); !ok {
		o.logger.Warn("destroy aborted: session does not exist", logger.String("session", name))
		o.later(func() { finish(fmt.Errorf("%w: %s", domain.ErrSessionNotFound, name)) })
		return
	}

	release, ok := o.claim(backend.DestroyComplete, name)
	if !ok {
		o.refuseBusy(backend.DestroyComplete, name, finish)
		return
	}

	p := await(sv.sessions, backend.DestroyComplete, byName(name), func(n backend.Notification) {
		release()
		o.logger.Info("session destroy completed",
			logger.String("session", name),
			logger.Bool("success", n.OK))
		if !n.OK {
			finish(domain.ErrBackendReportedFailure)
			return
		}
		finish(nil)
	})

	if !sv.sessions.DestroySession(name) {
		p.cancel()
		release()
		o.logger.Error("destroy session call failed to start", logger.String("session", name))
		o.later(func() { finish(domain.ErrBackendRejected) })
	}
}
