package filter

import (
	"testing"

	"github.com/MrSnakeDoc/nexus/internal/domain"
)

func result(ping int, attrs map[string]domain.Value) domain.SearchResult {
	return domain.SearchResult{PingMs: ping, Attributes: attrs, MaxPlayers: 8}
}

// queryAdmits mimics a backend honoring the query: every param must hold.
func queryAdmits(q domain.SearchQuery, r domain.SearchResult) bool {
	for _, p := range q.Params {
		stored, ok := r.Attribute(p.Key)
		if !Evaluate(p.Value, p.Op, stored, ok) {
			return false
		}
	}
	return true
}

func TestPostFilterNeverAdmitsWhatQueryRejects(t *testing.T) {
	rules := []Rule{
		NewKeyValueRule(domain.KeyMapName, domain.OpEquals, domain.StringValue("Arena"), true),
		NewKeyValueRule("LEVEL", domain.OpGreaterThanEquals, domain.IntValue(10), true),
		NewKeyValueRule("RANKED", domain.OpNotEquals, domain.BoolValue(true), true),
	}

	candidates := []domain.SearchResult{
		result(10, map[string]domain.Value{domain.KeyMapName: domain.StringValue("Docks"), "LEVEL": domain.IntValue(20)}),
		result(10, map[string]domain.Value{domain.KeyMapName: domain.StringValue("arena"), "LEVEL": domain.IntValue(5)}),
		result(10, map[string]domain.Value{domain.KeyMapName: domain.StringValue("arena"), "LEVEL": domain.StringValue("11")}),
		result(10, map[string]domain.Value{domain.KeyMapName: domain.StringValue("arena"), "LEVEL": domain.IntValue(11), "RANKED": domain.StringValue("1")}),
		result(10, map[string]domain.Value{"LEVEL": domain.IntValue(50)}),
	}

	var q domain.SearchQuery
	ApplyToQuery(rules, &q)
	if len(q.Params) != 3 {
		t.Fatalf("expected 3 query params, got %d", len(q.Params))
	}

	for i, c := range candidates {
		pre := queryAdmits(q, c)
		post := PassesAll(rules, c)
		if !pre && post {
			t.Errorf("candidate %d: post-filter admitted a result the query rejects", i)
		}
		if pre != post {
			t.Errorf("candidate %d: query=%v post=%v, expected agreement", i, pre, post)
		}
	}
}

func TestPassesAllShortCircuits(t *testing.T) {
	counted := &countingRule{}
	rules := []Rule{
		NewPingRule(50),
		counted,
	}

	if PassesAll(rules, result(90, nil)) {
		t.Fatal("ping 90 should fail Ping <= 50")
	}
	if counted.calls != 0 {
		t.Errorf("rules after the first rejection should not run, got %d calls", counted.calls)
	}
}

func TestDisabledRulesPass(t *testing.T) {
	ping := NewPingRule(10)
	ping.Enabled = false
	kv := NewKeyValueRule(domain.KeyMapName, domain.OpEquals, domain.StringValue("Arena"), true)
	kv.Enabled = false

	if !PassesAll([]Rule{ping, kv}, result(500, nil)) {
		t.Error("disabled rules must not reject")
	}

	var q domain.SearchQuery
	ApplyToQuery([]Rule{kv}, &q)
	if len(q.Params) != 0 {
		t.Error("disabled rules must not write to the query")
	}
}

func TestKeyValueExistsIsPostFilterOnly(t *testing.T) {
	rule := NewKeyValueRule("REGION", domain.OpExists, domain.Value{}, true)

	var q domain.SearchQuery
	rule.ConfigureQuery(&q)
	if len(q.Params) != 0 {
		t.Fatal("Exists rule wrote to the query")
	}

	if rule.MatchesResult(result(0, nil)) {
		t.Error("Exists must fail when the key is absent")
	}
	if !rule.MatchesResult(result(0, map[string]domain.Value{"REGION": domain.StringValue("eu")})) {
		t.Error("Exists must pass when the key is present")
	}
}

func TestOpenSlotsRule(t *testing.T) {
	rule := NewOpenSlotsRule(2)
	full := domain.SearchResult{CurrentPlayers: 7, MaxPlayers: 8}
	roomy := domain.SearchResult{CurrentPlayers: 2, MaxPlayers: 8}

	if rule.MatchesResult(full) {
		t.Error("one open slot should not satisfy OpenSlots >= 2")
	}
	if !rule.MatchesResult(roomy) {
		t.Error("six open slots should satisfy OpenSlots >= 2")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		rule Rule
		want string
	}{
		{NewPingRule(80), "Ping <= 80"},
		{NewKeyValueRule("MAP", domain.OpEquals, domain.StringValue("Arena"), false), "MAP equals Arena"},
		{NewKeyValueRule("REGION", domain.OpExists, domain.Value{}, false), "REGION exists"},
	}
	for _, tt := range tests {
		if got := tt.rule.Describe(); got != tt.want {
			t.Errorf("Describe() = %q, want %q", got, tt.want)
		}
	}
}

type countingRule struct{ calls int }

func (c *countingRule) IsEnabled() bool                    { return true }
func (c *countingRule) ConfigureQuery(*domain.SearchQuery) {}
func (c *countingRule) Describe() string                   { return "counting" }
func (c *countingRule) Clone() Rule                        { return c }

func (c *countingRule) MatchesResult(domain.SearchResult) bool {
	c.calls++
	return true
}
