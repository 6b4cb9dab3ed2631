package filter

import (
	"testing"

	"github.com/MrSnakeDoc/nexus/internal/domain"
)

func named(id string, ping, players int) domain.SearchResult {
	return domain.SearchResult{SessionID: id, PingMs: ping, CurrentPlayers: players, MaxPlayers: 8}
}

func ids(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.SessionID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSortIsStable(t *testing.T) {
	input := []domain.SearchResult{
		named("a", 50, 1),
		named("b", 20, 1),
		named("c", 50, 1),
		named("d", 20, 1),
		named("e", 50, 1),
	}

	tests := []struct {
		name  string
		rules []SortRule
		want  []string
	}{
		{name: "no rules keeps input order", rules: nil, want: []string{"a", "b", "c", "d", "e"}},
		{name: "ties keep input order", rules: []SortRule{NewPingSort(0)}, want: []string{"b", "d", "a", "c", "e"}},
		{name: "all neutral keeps input order", rules: []SortRule{NewPlayerCountSort(0, false)}, want: []string{"a", "b", "c", "d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := append([]domain.SearchResult(nil), input...)
			Sort(tt.rules, results)
			if got := ids(results); !equalIDs(got, tt.want) {
				t.Errorf("Sort() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComparePriorityOrder(t *testing.T) {
	a := named("a", 10, 2)
	b := named("b", 30, 6)

	ping := NewPingSort(5)
	fuller := NewPlayerCountSort(1, true)

	// fuller has the lower priority value, so it decides first.
	if got := Compare([]SortRule{ping, fuller}, a, b); got != PreferSecond {
		t.Errorf("Compare() = %v, want prefer_second", got)
	}

	fuller.Enabled = false
	if got := Compare([]SortRule{ping, fuller}, a, b); got != PreferFirst {
		t.Errorf("Compare() with disabled player sort = %v, want prefer_first", got)
	}
}

func TestDisabledSortRuleIsNeutral(t *testing.T) {
	rule := NewPingSort(0)
	rule.Enabled = false
	if got := rule.Compare(named("a", 1, 0), named("b", 99, 0)); got != NoPreference {
		t.Errorf("disabled rule returned %v", got)
	}
}

func TestPingSortDescending(t *testing.T) {
	rule := &PingSort{Enabled: true, Descending: true}
	if got := rule.Compare(named("a", 10, 0), named("b", 90, 0)); got != PreferSecond {
		t.Errorf("descending ping sort = %v, want prefer_second", got)
	}
}

func TestResolvedApplyPingThreshold(t *testing.T) {
	resolved := Resolve(nil, nil, []Rule{NewPingRule(80)}, nil)
	raw := []domain.SearchResult{named("s40", 40, 0), named("s90", 90, 0), named("s60", 60, 0)}

	got := ids(resolved.Apply(raw))
	want := []string{"s40", "s60"}
	if !equalIDs(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
	if len(raw) != 3 {
		t.Error("Apply() mutated its input")
	}
}
