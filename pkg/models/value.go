package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ValueKind tags which field of a Value is populated.
type ValueKind string

const (
	ValueKindNull    ValueKind = "null"
	ValueKindInteger ValueKind = "integer"
	ValueKindFloat   ValueKind = "float"
	ValueKindText    ValueKind = "text"
	ValueKindDate    ValueKind = "date"
	ValueKindBoolean ValueKind = "boolean"
)

// Value is a single table cell. Rows of arbitrary tables are represented as
// ordered lists of Fields so statistics code can switch on Kind instead of
// probing interface values with type assertions.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Text  string
	Time  time.Time
	Bool  bool
}

// Field is a named cell inside a row snapshot.
type Field struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

func NullValue() Value { return Value{Kind: ValueKindNull} }
func IntValue(v int64) Value { return Value{Kind: ValueKindInteger, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: ValueKindFloat, Float: v} }
func TextValue(v string) Value { return Value{Kind: ValueKindText, Text: v} }
func DateValue(v time.Time) Value { return Value{Kind: ValueKindDate, Time: v} }
func BoolValue(v bool) Value { return Value{Kind: ValueKindBoolean, Bool: v} }

// IsNull reports whether the cell holds SQL NULL.
// The zero Value is treated as NULL.
func (v Value) IsNull() bool {
	return v.Kind == ValueKindNull || v.Kind == ""
}

// Float64 returns the numeric value of the cell.
// Text cells are parsed; dates, booleans and NULLs are not numeric.
func (v Value) Float64() (float64, bool) {
	switch v.Kind {
	case ValueKindInteger:
		return float64(v.Int), true
	case ValueKindFloat:
		return v.Float, true
	case ValueKindText:
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case ValueKindDate, ValueKindBoolean, ValueKindNull:
		return 0, false
	default:
		return 0, false
	}
}

// String renders the cell the way it is shown in samples and top-value lists.
func (v Value) String() string {
	switch v.Kind {
	case ValueKindInteger:
		return strconv.FormatInt(v.Int, 10)
	case ValueKindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case ValueKindText:
		return v.Text
	case ValueKindDate:
		return v.Time.Format(time.RFC3339)
	case ValueKindBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// MarshalJSON emits the natural JSON form of the cell (number, string, bool or null).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueKindInteger:
		return json.Marshal(v.Int)
	case ValueKindFloat:
		return json.Marshal(v.Float)
	case ValueKindText:
		return json.Marshal(v.Text)
	case ValueKindDate:
		return json.Marshal(v.Time.Format(time.RFC3339Nano))
	case ValueKindBoolean:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}
