package orchestrator

import (
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/nexus/internal/backend"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/events"
	"github.com/MrSnakeDoc/nexus/internal/filter"
	"github.com/MrSnakeDoc/nexus/internal/logger"
)

// FindRequest describes a search.
type FindRequest struct {
	Type       domain.SessionType
	MaxResults int
	LAN        bool

	Filters   []domain.SearchFilter
	Rules     []filter.Rule
	SortRules []filter.SortRule
	Preset    *filter.Preset

	// BypassCache forces a backend query and keeps the results out of
	// the shared cache.
	BypassCache bool
}

// FindAndFilter searches for sessions, post-filters the raw results and
// orders the survivors. A fresh cached result set is returned without
// querying the service.
func (o *Orchestrator) FindAndFilter(req FindRequest, done func([]domain.SearchResult, error)) {
	finish := func(results []domain.SearchResult, err error, cached bool) {
		o.bus.Publish(events.SessionsFound{Success: err == nil, Results: results, Cached: cached})
		if done != nil {
			done(results, err)
		}
	}

	sv, err := o.services()
	if err != nil {
		o.logger.Error("find sessions failed", logger.Error(err))
		o.later(func() { finish(nil, err, false) })
		return
	}

	if !req.BypassCache {
		if results, ok := o.cache.Get(); ok {
			o.logger.Debug("using cached search results", logger.Int("count", len(results)))
			o.later(func() { finish(results, nil, true) })
			return
		}
	}

	resolved := filter.Resolve(req.Preset, req.Filters, req.Rules, req.SortRules)
	if !resolved.HasFilter(domain.KeySessionType) {
		resolved.Filters = append(resolved.Filters, domain.SearchFilter{
			Key:          domain.KeySessionType,
			Value:        domain.StringValue(req.Type.Name()),
			Op:           domain.OpEquals,
			ApplyToQuery: true,
		})
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	search := &backend.Search{Query: domain.SearchQuery{MaxResults: maxResults, LAN: req.LAN}}
	search.Query.Set(domain.KeyUsesPresence, domain.BoolValue(true), domain.OpEquals)
	resolved.ConfigureQuery(&search.Query)

	matchSearch := func(n backend.Notification) bool { return n.Search == search }
	p := await(sv.sessions, backend.FindComplete, matchSearch, func(n backend.Notification) {
		if !n.OK {
			o.logger.Warn("find sessions reported failure")
			finish(nil, domain.ErrBackendReportedFailure, false)
			return
		}

		raw := search.Results
		var results []domain.SearchResult
		o.disp.Offload(func() {
			results = resolved.Apply(convertResults(raw))
		}, func() {
			o.logger.Info("search completed",
				logger.Int("raw", len(raw)),
				logger.Int("kept", len(results)),
				logger.Strings("rules", filter.DescribeAll(resolved.Rules, resolved.SortRules)))
			if !req.BypassCache {
				o.cache.Put(results)
			}
			finish(results, nil, false)
		})
	})

	o.logger.Debug("finding sessions",
		logger.String("session_type", req.Type.Name()),
		logger.Int("max_results", maxResults),
		logger.Int("query_params", len(search.Query.Params)))

	if !sv.sessions.FindSessions(localUserIndex, search) {
		p.cancel()
		o.logger.Error("find sessions call failed to start")
		o.later(func() { finish(nil, domain.ErrBackendRejected, false) })
	}
}

// FindByID searches for the session advertising the given public
// session ID. It always queries the service.
func (o *Orchestrator) FindByID(sessionID string, t domain.SessionType, done func(domain.SearchResult, error)) {
	want := strings.TrimSpace(sessionID)
	if want == "" {
		o.later(func() {
			if done != nil {
				done(domain.SearchResult{}, fmt.Errorf("%w: empty session id", domain.ErrSessionNotFound))
			}
		})
		return
	}

	req := FindRequest{
		Type:       t,
		MaxResults: findByIDMaxResults,
		Filters: []domain.SearchFilter{{
			Key:          domain.KeySessionID,
			Value:        domain.StringValue(want),
			Op:           domain.OpEquals,
			ApplyToQuery: true,
		}},
		BypassCache: true,
	}
	o.FindAndFilter(req, func(results []domain.SearchResult, err error) {
		if done == nil {
			return
		}
		if err != nil {
			done(domain.SearchResult{}, err)
			return
		}
		for _, r := range results {
			if strings.EqualFold(r.SessionID, want) {
				done(r, nil)
				return
			}
		}
		done(domain.SearchResult{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, want))
	})
}

func convertResults(raw []backend.RawResult) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(raw))
	for _, r := range raw {
		out = append(out, convertResult(r))
	}
	return out
}

func convertResult(r backend.RawResult) domain.SearchResult {
	attrs := make(map[string]domain.Value, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	str := func(key string) string {
		if v, ok := attrs[key]; ok {
			return v.String()
		}
		return ""
	}

	res := domain.SearchResult{
		SessionID:      str(domain.KeySessionID),
		DisplayName:    str(domain.KeyDisplayName),
		MapName:        str(domain.KeyMapName),
		GameMode:       str(domain.KeyGameMode),
		SessionType:    str(domain.KeySessionType),
		MaxPlayers:     r.NumPublicConnections,
		CurrentPlayers: r.NumPublicConnections - r.NumOpenPublicConnections,
		PingMs:         r.PingMs,
		Attributes:     attrs,
		Handle:         r.Handle,
	}
	if res.SessionID == "" {
		res.SessionID = r.SessionID
	}
	if res.CurrentPlayers < 0 {
		res.CurrentPlayers = 0
	}
	return res
}
