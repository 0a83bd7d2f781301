package datasource

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

// ValueFromDriver converts a value returned by database/sql or pgx into a
// tagged cell. Unknown types fall back to their text rendering.
func ValueFromDriver(v any) models.Value {
	switch t := v.(type) {
	case nil:
		return models.NullValue()
	case bool:
		return models.BoolValue(t)
	case int:
		return models.IntValue(int64(t))
	case int8:
		return models.IntValue(int64(t))
	case int16:
		return models.IntValue(int64(t))
	case int32:
		return models.IntValue(int64(t))
	case int64:
		return models.IntValue(t)
	case uint8:
		return models.IntValue(int64(t))
	case uint16:
		return models.IntValue(int64(t))
	case uint32:
		return models.IntValue(int64(t))
	case float32:
		return models.FloatValue(float64(t))
	case float64:
		return models.FloatValue(t)
	case string:
		return models.TextValue(t)
	case []byte:
		return models.TextValue(string(t))
	case time.Time:
		return models.DateValue(t)
	case [16]byte:
		return models.TextValue(uuid.UUID(t).String())
	case uuid.UUID:
		return models.TextValue(t.String())
	case *big.Int:
		if t.IsInt64() {
			return models.IntValue(t.Int64())
		}
		return models.TextValue(t.String())
	case driver.Valuer:
		// pgtype.Numeric and similar wrappers render decimals as strings.
		inner, err := t.Value()
		if err != nil {
			return models.TextValue(fmt.Sprint(t))
		}
		if str, ok := inner.(string); ok {
			return textOrNumber(str)
		}
		return ValueFromDriver(inner)
	case fmt.Stringer:
		return textOrNumber(t.String())
	default:
		return textOrNumber(fmt.Sprint(t))
	}
}

// textOrNumber keeps decimal renderings (numeric/decimal/money types) numeric.
func textOrNumber(s string) models.Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return models.FloatValue(f)
	}
	return models.TextValue(s)
}

// RowSnapshot pairs column names with driver values.
func RowSnapshot(columns []string, values []any) []models.Field {
	fields := make([]models.Field, len(columns))
	for i, name := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		fields[i] = models.Field{Name: name, Value: ValueFromDriver(v)}
	}
	return fields
}
