package filter

import (
	"testing"

	"github.com/MrSnakeDoc/nexus/internal/domain"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		expected domain.Value
		op       domain.Op
		stored   domain.Value
		present  bool
		want     bool
	}{
		// strings
		{name: "string equals ignores case", expected: domain.StringValue("Arena"), op: domain.OpEquals, stored: domain.StringValue("arena"), present: true, want: true},
		{name: "string not equals", expected: domain.StringValue("Arena"), op: domain.OpNotEquals, stored: domain.StringValue("Docks"), present: true, want: true},
		{name: "string has no ordering", expected: domain.StringValue("a"), op: domain.OpLessThan, stored: domain.StringValue("b"), present: true, want: false},
		{name: "string against stored int", expected: domain.StringValue("42"), op: domain.OpEquals, stored: domain.IntValue(42), present: true, want: true},

		// numbers
		{name: "int greater than", expected: domain.IntValue(4), op: domain.OpGreaterThan, stored: domain.IntValue(5), present: true, want: true},
		{name: "int less than equals", expected: domain.IntValue(4), op: domain.OpLessThanEquals, stored: domain.IntValue(4), present: true, want: true},
		{name: "int against stored float", expected: domain.IntValue(3), op: domain.OpEquals, stored: domain.FloatValue(3.00001), present: true, want: true},
		{name: "int against numeric string", expected: domain.IntValue(10), op: domain.OpGreaterThanEquals, stored: domain.StringValue("12"), present: true, want: true},
		{name: "int against garbage string equals", expected: domain.IntValue(10), op: domain.OpEquals, stored: domain.StringValue("ten"), present: true, want: false},
		{name: "int against garbage string not equals", expected: domain.IntValue(10), op: domain.OpNotEquals, stored: domain.StringValue("ten"), present: true, want: true},
		{name: "int against garbage string greater", expected: domain.IntValue(10), op: domain.OpGreaterThan, stored: domain.StringValue("ten"), present: true, want: false},
		{name: "float not equals outside tolerance", expected: domain.FloatValue(1.5), op: domain.OpNotEquals, stored: domain.FloatValue(1.6), present: true, want: true},
		{name: "float against stored int", expected: domain.FloatValue(2), op: domain.OpLessThan, stored: domain.IntValue(1), present: true, want: true},

		// bools
		{name: "bool equals", expected: domain.BoolValue(true), op: domain.OpEquals, stored: domain.BoolValue(true), present: true, want: true},
		{name: "bool from int", expected: domain.BoolValue(true), op: domain.OpEquals, stored: domain.IntValue(7), present: true, want: true},
		{name: "bool from string TRUE", expected: domain.BoolValue(true), op: domain.OpEquals, stored: domain.StringValue("TRUE"), present: true, want: true},
		{name: "bool from string 1", expected: domain.BoolValue(true), op: domain.OpEquals, stored: domain.StringValue("1"), present: true, want: true},
		{name: "bool from string yes is false", expected: domain.BoolValue(true), op: domain.OpEquals, stored: domain.StringValue("yes"), present: true, want: false},
		{name: "bool has no ordering", expected: domain.BoolValue(true), op: domain.OpGreaterThan, stored: domain.BoolValue(true), present: true, want: false},

		// absence
		{name: "absent key fails equals", expected: domain.StringValue("x"), op: domain.OpEquals, present: false, want: false},
		{name: "absent key passes not equals", expected: domain.StringValue("x"), op: domain.OpNotEquals, present: false, want: true},
		{name: "absent key fails greater than", expected: domain.IntValue(1), op: domain.OpGreaterThan, present: false, want: false},
		{name: "absent key fails exists", op: domain.OpExists, present: false, want: false},
		{name: "present key passes exists", op: domain.OpExists, stored: domain.StringValue(""), present: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.expected, tt.op, tt.stored, tt.present)
			if got != tt.want {
				t.Errorf("Evaluate(%v %v %v, present=%v) = %v, want %v",
					tt.stored, tt.op, tt.expected, tt.present, got, tt.want)
			}
		})
	}
}

func TestApplyFiltersSkipsExistsAndHints(t *testing.T) {
	filters := []domain.SearchFilter{
		{Key: domain.KeyMapName, Value: domain.StringValue("Arena"), Op: domain.OpEquals, ApplyToQuery: true},
		{Key: "REGION", Op: domain.OpExists, ApplyToQuery: true},
		{Key: domain.KeyGameMode, Value: domain.StringValue("CTF"), Op: domain.OpEquals, ApplyToQuery: false},
		{Key: "", Value: domain.StringValue("ignored"), ApplyToQuery: true},
	}

	var q domain.SearchQuery
	n := ApplyFilters(filters, &q)

	if n != 1 || len(q.Params) != 1 {
		t.Fatalf("expected exactly one query param, got n=%d params=%+v", n, q.Params)
	}
	if _, ok := q.Get("REGION"); ok {
		t.Error("Exists comparisons must never be written to the query")
	}
}
