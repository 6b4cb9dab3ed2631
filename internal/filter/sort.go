package filter

import (
	"fmt"
	"sort"

	"github.com/MrSnakeDoc/nexus/internal/domain"
)

// Preference is the verdict of a sort rule for a pair of results.
type Preference int

const (
	NoPreference Preference = iota
	PreferFirst
	PreferSecond
)

func (p Preference) String() string {
	switch p {
	case PreferFirst:
		return "prefer_first"
	case PreferSecond:
		return "prefer_second"
	}
	return "no_preference"
}

// SortRule is a three-way comparator between two results. A disabled
// rule must answer NoPreference.
type SortRule interface {
	IsEnabled() bool
	Priority() int
	Compare(a, b domain.SearchResult) Preference
	Describe() string
	Clone() SortRule
}

// PingSort prefers lower ping, or higher ping when Descending is set.
type PingSort struct {
	Enabled    bool
	Prio       int
	Descending bool
}

func NewPingSort(priority int) *PingSort { return &PingSort{Enabled: true, Prio: priority} }

func (s *PingSort) IsEnabled() bool { return s.Enabled }
func (s *PingSort) Priority() int   { return s.Prio }

func (s *PingSort) Compare(a, b domain.SearchResult) Preference {
	if !s.Enabled {
		return NoPreference
	}
	return order(a.PingMs, b.PingMs, s.Descending)
}

func (s *PingSort) Describe() string { return "Ping " + direction(s.Descending) }

func (s *PingSort) Clone() SortRule {
	c := *s
	return &c
}

// PlayerCountSort prefers fuller sessions when Descending is set,
// emptier ones otherwise.
type PlayerCountSort struct {
	Enabled    bool
	Prio       int
	Descending bool
}

func NewPlayerCountSort(priority int, descending bool) *PlayerCountSort {
	return &PlayerCountSort{Enabled: true, Prio: priority, Descending: descending}
}

func (s *PlayerCountSort) IsEnabled() bool { return s.Enabled }
func (s *PlayerCountSort) Priority() int   { return s.Prio }

func (s *PlayerCountSort) Compare(a, b domain.SearchResult) Preference {
	if !s.Enabled {
		return NoPreference
	}
	return order(a.CurrentPlayers, b.CurrentPlayers, s.Descending)
}

func (s *PlayerCountSort) Describe() string { return "Players " + direction(s.Descending) }

func (s *PlayerCountSort) Clone() SortRule {
	c := *s
	return &c
}

func order(a, b int, descending bool) Preference {
	if a == b {
		return NoPreference
	}
	if (a < b) != descending {
		return PreferFirst
	}
	return PreferSecond
}

func direction(descending bool) string {
	if descending {
		return "DESC"
	}
	return "ASC"
}

// active returns the enabled rules ordered by ascending priority. Rules
// with equal priority keep their list order.
func active(rules []SortRule) []SortRule {
	out := make([]SortRule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.IsEnabled() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

func compareOrdered(rules []SortRule, a, b domain.SearchResult) Preference {
	for _, r := range rules {
		if p := r.Compare(a, b); p != NoPreference {
			return p
		}
	}
	return NoPreference
}

// Compare applies rules in ascending priority and returns the first
// non-neutral verdict.
func Compare(rules []SortRule, a, b domain.SearchResult) Preference {
	return compareOrdered(active(rules), a, b)
}

// Sort orders results in place. It is stable: results every rule is
// neutral about keep their input order.
func Sort(rules []SortRule, results []domain.SearchResult) {
	ordered := active(rules)
	if len(ordered) == 0 || len(results) < 2 {
		return
	}
	sort.SliceStable(results, func(i, j int) bool {
		return compareOrdered(ordered, results[i], results[j]) == PreferFirst
	})
}

// CloneSortRules deep-copies a sort rule list, dropping nil entries.
func CloneSortRules(rules []SortRule) []SortRule {
	out := make([]SortRule, 0, len(rules))
	for _, r := range rules {
		if r != nil {
			out = append(out, r.Clone())
		}
	}
	return out
}

// DescribeAll renders rule descriptions for logs.
func DescribeAll(rules []Rule, sorts []SortRule) []string {
	out := make([]string, 0, len(rules)+len(sorts))
	for _, r := range rules {
		if r != nil {
			out = append(out, r.Describe())
		}
	}
	for _, s := range sorts {
		if s != nil {
			out = append(out, fmt.Sprintf("sort[%d] %s", s.Priority(), s.Describe()))
		}
	}
	return out
}
