// Package filter evaluates declarative filter and sort rules against
// session search results and outgoing search queries.
package filter

import (
	"math"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/nexus/internal/domain"
)

// nearlyEqualTolerance is the absolute tolerance for numeric equality.
const nearlyEqualTolerance = 1e-4

// Evaluate compares a stored advertised value against an expected value.
//
// present reports whether the key exists on the result. An absent key
// only satisfies NotEquals; Exists is satisfied by presence alone.
func Evaluate(expected domain.Value, op domain.Op, stored domain.Value, present bool) bool {
	if op == domain.OpExists {
		return present
	}
	if !present {
		return op == domain.OpNotEquals
	}

	switch expected.Type {
	case domain.ValueString:
		return compareStrings(stored.String(), expected.Str, op)
	case domain.ValueInt32:
		other, ok := numeric(stored)
		if !ok {
			return op == domain.OpNotEquals
		}
		return compareNumbers(other, float64(expected.Int), op)
	case domain.ValueFloat:
		other, ok := numeric(stored)
		if !ok {
			return op == domain.OpNotEquals
		}
		return compareNumbers(other, expected.Float, op)
	case domain.ValueBool:
		other, ok := boolean(stored)
		if !ok {
			return op == domain.OpNotEquals
		}
		return compareBools(other, expected.Bool, op)
	}
	return false
}

// numeric coerces a stored value to a float64. Strings are parsed;
// empty or unparsable strings and bools do not coerce.
func numeric(v domain.Value) (float64, bool) {
	switch v.Type {
	case domain.ValueInt32:
		return float64(v.Int), true
	case domain.ValueFloat:
		return v.Float, true
	case domain.ValueString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// boolean coerces a stored value to a bool: ints are true when non-zero,
// strings are true for "true" (any case) or "1".
func boolean(v domain.Value) (bool, bool) {
	switch v.Type {
	case domain.ValueBool:
		return v.Bool, true
	case domain.ValueInt32:
		return v.Int != 0, true
	case domain.ValueString:
		if v.Str == "" {
			return false, false
		}
		return strings.EqualFold(v.Str, "true") || v.Str == "1", true
	}
	return false, false
}

func compareNumbers(left, right float64, op domain.Op) bool {
	switch op {
	case domain.OpEquals:
		return math.Abs(left-right) <= nearlyEqualTolerance
	case domain.OpNotEquals:
		return math.Abs(left-right) > nearlyEqualTolerance
	case domain.OpGreaterThan:
		return left > right
	case domain.OpGreaterThanEquals:
		return left >= right
	case domain.OpLessThan:
		return left < right
	case domain.OpLessThanEquals:
		return left <= right
	}
	return false
}

func compareBools(left, right bool, op domain.Op) bool {
	switch op {
	case domain.OpEquals:
		return left == right
	case domain.OpNotEquals:
		return left != right
	}
	return false
}

// Strings have no ordering: only Equals and NotEquals, case-insensitive.
func compareStrings(left, right string, op domain.Op) bool {
	switch op {
	case domain.OpEquals:
		return strings.EqualFold(left, right)
	case domain.OpNotEquals:
		return !strings.EqualFold(left, right)
	}
	return false
}

// MatchFilter evaluates a simple filter against a result.
func MatchFilter(f domain.SearchFilter, r domain.SearchResult) bool {
	if f.Key == "" {
		return true
	}
	stored, ok := r.Attribute(f.Key)
	return Evaluate(f.Value, f.Op, stored, ok)
}

// ApplyFilters writes every query-applicable simple filter into q.
// Exists comparisons are never written: no backend-side existence
// primitive is assumed.
func ApplyFilters(filters []domain.SearchFilter, q *domain.SearchQuery) int {
	n := 0
	for _, f := range filters {
		if writeParam(q, f.Key, f.Value, f.Op, f.ApplyToQuery) {
			n++
		}
	}
	return n
}

// PassesFilters reports whether r satisfies every simple filter.
func PassesFilters(filters []domain.SearchFilter, r domain.SearchResult) bool {
	for _, f := range filters {
		if !MatchFilter(f, r) {
			return false
		}
	}
	return true
}

func writeParam(q *domain.SearchQuery, key string, v domain.Value, op domain.Op, applicable bool) bool {
	if q == nil || !applicable || key == "" || op == domain.OpExists {
		return false
	}
	q.Set(key, v, op)
	return true
}
