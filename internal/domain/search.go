package domain

// SearchFilter is a simple key/value filter. It is always evaluated
// against returned results; when ApplyToQuery is set it is also written to
// the outgoing query as a backend-side hint.
type SearchFilter struct {
	Key          string `json:"key"`
	Value        Value  `json:"value"`
	Op           Op     `json:"op"`
	ApplyToQuery bool   `json:"apply_to_query"`
}

// QueryParam is one key/comparison/value triple of an outgoing query.
type QueryParam struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
	Op    Op     `json:"op"`
}

// SearchQuery is the outgoing search request handed to the backend.
type SearchQuery struct {
	MaxResults int          `json:"max_results"`
	LAN        bool         `json:"lan"`
	Params     []QueryParam `json:"params"`
}

// Set writes a query parameter, replacing any previous one with the same key.
func (q *SearchQuery) Set(key string, v Value, op Op) {
	for i := range q.Params {
		if q.Params[i].Key == key {
			q.Params[i] = QueryParam{Key: key, Value: v, Op: op}
			return
		}
	}
	q.Params = append(q.Params, QueryParam{Key: key, Value: v, Op: op})
}

// Get returns the parameter stored under key.
func (q *SearchQuery) Get(key string) (QueryParam, bool) {
	for _, p := range q.Params {
		if p.Key == key {
			return p, true
		}
	}
	return QueryParam{}, false
}

// SearchResult is one candidate returned by a find operation.
//
// Results are produced fresh per search and only cached briefly.
// Handle is opaque and only meaningful to the backend that produced it.
type SearchResult struct {
	SessionID      string           `json:"session_id"`
	DisplayName    string           `json:"display_name"`
	MapName        string           `json:"map_name"`
	GameMode       string           `json:"game_mode"`
	SessionType    string           `json:"session_type"`
	CurrentPlayers int              `json:"current_players"`
	MaxPlayers     int              `json:"max_players"`
	PingMs         int              `json:"ping_ms"`
	Attributes     map[string]Value `json:"attributes,omitempty"`
	Handle         string           `json:"handle"`
}

// Attribute returns the advertised value stored under key.
func (r SearchResult) Attribute(key string) (Value, bool) {
	v, ok := r.Attributes[key]
	return v, ok
}

// Clone returns a copy that shares no map with r.
func (r SearchResult) Clone() SearchResult {
	out := r
	if r.Attributes != nil {
		out.Attributes = make(map[string]Value, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// CloneResults deep-copies a result list.
func CloneResults(in []SearchResult) []SearchResult {
	if in == nil {
		return nil
	}
	out := make([]SearchResult, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
