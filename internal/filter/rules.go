package filter

import (
	"fmt"

	"github.com/MrSnakeDoc/nexus/internal/domain"
)

// Rule is a predicate over a search result. A rule may also contribute a
// pre-filter to the outgoing query, but MatchesResult must reproduce the
// same decision on its own: pre-filtering is only an optimization.
type Rule interface {
	IsEnabled() bool
	ConfigureQuery(q *domain.SearchQuery)
	MatchesResult(r domain.SearchResult) bool
	Describe() string
	Clone() Rule
}

// KeyValueRule compares one advertised key against an expected value.
type KeyValueRule struct {
	Enabled      bool
	Key          string
	Expected     domain.Value
	Op           domain.Op
	ApplyToQuery bool
}

func NewKeyValueRule(key string, op domain.Op, expected domain.Value, applyToQuery bool) *KeyValueRule {
	return &KeyValueRule{
		Enabled:      true,
		Key:          key,
		Expected:     expected,
		Op:           op,
		ApplyToQuery: applyToQuery,
	}
}

func (r *KeyValueRule) IsEnabled() bool { return r.Enabled }

func (r *KeyValueRule) ConfigureQuery(q *domain.SearchQuery) {
	if !r.Enabled {
		return
	}
	writeParam(q, r.Key, r.Expected, r.Op, r.ApplyToQuery)
}

func (r *KeyValueRule) MatchesResult(res domain.SearchResult) bool {
	if !r.Enabled || r.Key == "" {
		return true
	}
	stored, ok := res.Attribute(r.Key)
	return Evaluate(r.Expected, r.Op, stored, ok)
}

func (r *KeyValueRule) Describe() string {
	if r.Op == domain.OpExists {
		return fmt.Sprintf("%s exists", r.Key)
	}
	return fmt.Sprintf("%s %s %s", r.Key, r.Op, r.Expected)
}

func (r *KeyValueRule) Clone() Rule {
	c := *r
	return &c
}

// PingRule rejects results whose ping exceeds MaxPing. Post-filter only.
type PingRule struct {
	Enabled bool
	MaxPing int
}

func NewPingRule(maxPing int) *PingRule {
	return &PingRule{Enabled: true, MaxPing: maxPing}
}

func (r *PingRule) IsEnabled() bool { return r.Enabled }

// ConfigureQuery is a no-op: the rule has no backend-side equivalent.
func (r *PingRule) ConfigureQuery(_ *domain.SearchQuery) {}

func (r *PingRule) MatchesResult(res domain.SearchResult) bool {
	if !r.Enabled {
		return true
	}
	return res.PingMs <= r.MaxPing
}

func (r *PingRule) Describe() string { return fmt.Sprintf("Ping <= %d", r.MaxPing) }

func (r *PingRule) Clone() Rule {
	c := *r
	return &c
}

// OpenSlotsRule keeps results with at least MinOpen free public slots.
type OpenSlotsRule struct {
	Enabled bool
	MinOpen int
}

func NewOpenSlotsRule(minOpen int) *OpenSlotsRule {
	return &OpenSlotsRule{Enabled: true, MinOpen: minOpen}
}

func (r *OpenSlotsRule) IsEnabled() bool { return r.Enabled }

func (r *OpenSlotsRule) ConfigureQuery(_ *domain.SearchQuery) {}

func (r *OpenSlotsRule) MatchesResult(res domain.SearchResult) bool {
	if !r.Enabled {
		return true
	}
	return res.MaxPlayers-res.CurrentPlayers >= r.MinOpen
}

func (r *OpenSlotsRule) Describe() string { return fmt.Sprintf("OpenSlots >= %d", r.MinOpen) }

func (r *OpenSlotsRule) Clone() Rule {
	c := *r
	return &c
}

// ApplyToQuery lets every enabled rule write its pre-filter into q.
func ApplyToQuery(rules []Rule, q *domain.SearchQuery) {
	for _, r := range rules {
		if r == nil || !r.IsEnabled() {
			continue
		}
		r.ConfigureQuery(q)
	}
}

// PassesAll reports whether res satisfies every rule. It stops at the
// first rejection.
func PassesAll(rules []Rule, res domain.SearchResult) bool {
	for _, r := range rules {
		if r == nil {
			continue
		}
		if !r.MatchesResult(res) {
			return false
		}
	}
	return true
}

// CloneRules deep-copies a rule list, dropping nil entries.
func CloneRules(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil {
			out = append(out, r.Clone())
		}
	}
	return out
}
