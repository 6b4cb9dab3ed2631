package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/filter"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/index"
	"github.com/MrSnakeDoc/nexus/internal/orchestrator"
)

// freshSearchCost is what a cache-bypassing search takes from the
// caller's rate budget: it always reaches the session service.
const freshSearchCost = 2

// SearchScope keys search rate limits by the session type asked for, so
// polling one type does not use up the budget of another. Unparseable
// types share one scope and fail in the handler.
func SearchScope(r *http.Request) string {
	t, err := domain.ParseSessionType(r.URL.Query().Get("type"))
	if err != nil {
		return "invalid"
	}
	return t.Name()
}

// SearchCost charges cache-bypassing searches more than cached ones.
func SearchCost(r *http.Request) int {
	if fresh, err := optionalBool(r.URL.Query(), "fresh"); err == nil && fresh {
		return freshSearchCost
	}
	return 1
}

type searchResponse struct {
	Count   int                   `json:"count"`
	Results []domain.SearchResult `json:"results"`
}

type searchResult struct {
	results []domain.SearchResult
	err     error
}

// SearchSessions runs a filtered search. With ?id= it looks up a single
// session by its public ID instead.
func SearchSessions(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		req, err := parseFindRequest(q, d.MemoryIndex)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		id := strings.TrimSpace(q.Get("id"))
		res, err := await(r.Context(), d.Loop, func(report func(searchResult)) {
			orch := d.Peer.Orchestrator()
			if id != "" {
				orch.FindByID(id, req.Type, func(r domain.SearchResult, err error) {
					if err != nil {
						report(searchResult{err: err})
						return
					}
					report(searchResult{results: []domain.SearchResult{r}})
				})
				return
			}
			orch.FindAndFilter(req, func(rs []domain.SearchResult, err error) {
				report(searchResult{results: rs, err: err})
			})
		})
		if err == nil {
			err = res.err
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		results := res.results
		if results == nil {
			results = []domain.SearchResult{}
		}
		writeJSON(w, http.StatusOK, searchResponse{Count: len(results), Results: results})
	}
}

// parseFindRequest reads a search from query parameters:
//
//	type=GameSession  max=20  lan=true  fresh=true  preset=ranked
//	filter=KEY:value | KEY:op:value | KEY:op:type:value   (repeatable)
//	max_ping=120  min_open=1
//	sort=ping | ping:desc | players | players:desc        (repeatable, in priority order)
func parseFindRequest(q url.Values, idx *index.MemoryIndex) (orchestrator.FindRequest, error) {
	var req orchestrator.FindRequest

	t, err := domain.ParseSessionType(q.Get("type"))
	if err != nil {
		return req, err
	}
	req.Type = t

	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid max %q", v)
		}
		req.MaxResults = n
	}
	if req.LAN, err = optionalBool(q, "lan"); err != nil {
		return req, err
	}
	if req.BypassCache, err = optionalBool(q, "fresh"); err != nil {
		return req, err
	}

	if name := q.Get("preset"); name != "" {
		p, ok := idx.GetPreset(name)
		if !ok {
			return req, fmt.Errorf("unknown preset %q", name)
		}
		req.Preset = p
	}

	for _, raw := range q["filter"] {
		f, err := parseFilter(raw)
		if err != nil {
			return req, err
		}
		req.Filters = append(req.Filters, f)
	}

	if v := q.Get("max_ping"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return req, fmt.Errorf("invalid max_ping %q", v)
		}
		req.Rules = append(req.Rules, filter.NewPingRule(n))
	}
	if v := q.Get("min_open"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid min_open %q", v)
		}
		req.Rules = append(req.Rules, filter.NewOpenSlotsRule(n))
	}

	for i, raw := range q["sort"] {
		kind, dir, _ := strings.Cut(strings.ToLower(raw), ":")
		desc := dir == "desc"
		switch kind {
		case "ping":
			s := filter.NewPingSort(i)
			s.Descending = desc
			req.SortRules = append(req.SortRules, s)
		case "players", "player_count":
			req.SortRules = append(req.SortRules, filter.NewPlayerCountSort(i, desc))
		default:
			return req, fmt.Errorf("unknown sort %q", raw)
		}
	}

	return req, nil
}

func optionalBool(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, v)
	}
	return b, nil
}

func parseFilter(raw string) (domain.SearchFilter, error) {
	parts := strings.SplitN(raw, ":", 4)
	var key, op, typ, value string
	switch len(parts) {
	case 2:
		key, value = parts[0], parts[1]
	case 3:
		key, op, value = parts[0], parts[1], parts[2]
	case 4:
		key, op, typ, value = parts[0], parts[1], parts[2], parts[3]
	default:
		return domain.SearchFilter{}, fmt.Errorf("invalid filter %q", raw)
	}
	if key == "" {
		return domain.SearchFilter{}, fmt.Errorf("invalid filter %q: empty key", raw)
	}

	o, err := domain.ParseOp(op)
	if err != nil {
		return domain.SearchFilter{}, fmt.Errorf("filter %s: %w", key, err)
	}
	vt, err := domain.ParseValueType(typ)
	if err != nil {
		return domain.SearchFilter{}, fmt.Errorf("filter %s: %w", key, err)
	}
	f := domain.SearchFilter{Key: key, Op: o, Value: domain.Value{Type: vt}, ApplyToQuery: true}
	if o != domain.OpExists {
		if f.Value, err = domain.ParseValue(vt, value); err != nil {
			return domain.SearchFilter{}, fmt.Errorf("filter %s: %w", key, err)
		}
	}
	return f, nil
}
