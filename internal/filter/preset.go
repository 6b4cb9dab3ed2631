package filter

import (
	"github.com/MrSnakeDoc/nexus/internal/domain"
)

// Preset is a named, reusable bundle of filters and rules. A preset is
// never mutated by a search: Resolve hands out clones.
type Preset struct {
	Name      string
	Filters   []domain.SearchFilter
	Rules     []Rule
	SortRules []SortRule
}

// Resolved is the per-operation rule set.
type Resolved struct {
	Filters   []domain.SearchFilter
	Rules     []Rule
	SortRules []SortRule
}

// Resolve clones the caller's rules, then appends clones of the preset's.
// The result owns all of its rules.
func Resolve(preset *Preset, filters []domain.SearchFilter, rules []Rule, sorts []SortRule) Resolved {
	out := Resolved{
		Filters:   append([]domain.SearchFilter(nil), filters...),
		Rules:     CloneRules(rules),
		SortRules: CloneSortRules(sorts),
	}
	if preset != nil {
		out.Filters = append(out.Filters, preset.Filters...)
		out.Rules = append(out.Rules, CloneRules(preset.Rules)...)
		out.SortRules = append(out.SortRules, CloneSortRules(preset.SortRules)...)
	}
	return out
}

// HasFilter reports whether a simple filter on key is present.
func (r Resolved) HasFilter(key string) bool {
	for _, f := range r.Filters {
		if f.Key == key {
			return true
		}
	}
	return false
}

// ConfigureQuery writes every pre-filter of the resolved set into q.
func (r Resolved) ConfigureQuery(q *domain.SearchQuery) {
	ApplyFilters(r.Filters, q)
	ApplyToQuery(r.Rules, q)
}

// Passes runs the simple filters, then the advanced rules.
func (r Resolved) Passes(res domain.SearchResult) bool {
	return PassesFilters(r.Filters, res) && PassesAll(r.Rules, res)
}

// Apply post-filters raw results and sorts the survivors. The input slice
// is left untouched.
func (r Resolved) Apply(results []domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(results))
	for _, res := range results {
		if r.Passes(res) {
			out = append(out, res)
		}
	}
	Sort(r.SortRules, out)
	return out
}
