package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType is the tag of a typed advertisement value.
type ValueType int

const (
	ValueString ValueType = iota
	ValueInt32
	ValueFloat
	ValueBool
)

var valueTypeNames = [...]string{
	ValueString: "string",
	ValueInt32:  "int32",
	ValueFloat:  "float",
	ValueBool:   "bool",
}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(valueTypeNames) {
		return "invalid"
	}
	return valueTypeNames[t]
}

// ParseValueType parses "string", "int32" (or "int"), "float" (or "double"), "bool".
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string", "str":
		return ValueString, nil
	case "int32", "int", "integer":
		return ValueInt32, nil
	case "float", "double", "number":
		return ValueFloat, nil
	case "bool", "boolean":
		return ValueBool, nil
	}
	return ValueString, fmt.Errorf("unknown value type %q", s)
}

func (t ValueType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ValueType) UnmarshalText(b []byte) error {
	v, err := ParseValueType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Value is a typed advertisement value. Only the field matching Type is
// meaningful.
type Value struct {
	Type  ValueType `json:"type"`
	Str   string    `json:"string,omitempty"`
	Int   int32     `json:"int,omitempty"`
	Float float64   `json:"float,omitempty"`
	Bool  bool      `json:"bool,omitempty"`
}

func StringValue(s string) Value { return Value{Type: ValueString, Str: s} }
func IntValue(i int32) Value     { return Value{Type: ValueInt32, Int: i} }
func FloatValue(f float64) Value { return Value{Type: ValueFloat, Float: f} }
func BoolValue(b bool) Value     { return Value{Type: ValueBool, Bool: b} }

// ParseValue builds a value of the given type from its textual form.
func ParseValue(t ValueType, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case ValueString:
		return StringValue(raw), nil
	case ValueInt32:
		i, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid int32 %q: %w", raw, err)
		}
		return IntValue(int32(i)), nil
	case ValueFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid float %q: %w", raw, err)
		}
		return FloatValue(f), nil
	case ValueBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("invalid bool %q: %w", raw, err)
		}
		return BoolValue(b), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %v", t)
}

// String renders the value the way it would be printed in a log line.
func (v Value) String() string {
	switch v.Type {
	case ValueString:
		return v.Str
	case ValueInt32:
		return strconv.FormatInt(int64(v.Int), 10)
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	}
	return "<invalid>"
}

// Op is a comparison operator used by filters and search queries.
type Op int

const (
	OpEquals Op = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterThanEquals
	OpLessThan
	OpLessThanEquals
	OpExists
)

var opNames = [...]string{
	OpEquals:            "equals",
	OpNotEquals:         "not_equals",
	OpGreaterThan:       "greater_than",
	OpGreaterThanEquals: "greater_than_equals",
	OpLessThan:          "less_than",
	OpLessThanEquals:    "less_than_equals",
	OpExists:            "exists",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return "invalid"
	}
	return opNames[o]
}

// ParseOp accepts the long names above or the usual symbols (==, !=, >, >=, <, <=).
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "equals", "eq", "==", "=":
		return OpEquals, nil
	case "not_equals", "ne", "!=":
		return OpNotEquals, nil
	case "greater_than", "gt", ">":
		return OpGreaterThan, nil
	case "greater_than_equals", "gte", ">=":
		return OpGreaterThanEquals, nil
	case "less_than", "lt", "<":
		return OpLessThan, nil
	case "less_than_equals", "lte", "<=":
		return OpLessThanEquals, nil
	case "exists":
		return OpExists, nil
	}
	return OpEquals, fmt.Errorf("unknown comparison %q", s)
}

func (o Op) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Op) UnmarshalText(b []byte) error {
	v, err := ParseOp(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
