package database

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// NormalizeValue converts a driver value into a JSON-stable primitive:
// string, int64, float64, bool, time.Time (UTC) or nil.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return finiteOrNil(float64(x))
	case float64:
		return finiteOrNil(x)
	case time.Time:
		return x.UTC()
	case pgtype.Numeric:
		if !x.Valid || x.NaN {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return finiteOrNil(f.Float64)
	case pgtype.Date:
		if !x.Valid {
			return nil
		}
		return x.Time.UTC()
	case pgtype.Timestamp:
		if !x.Valid {
			return nil
		}
		return x.Time.UTC()
	case pgtype.Timestamptz:
		if !x.Valid {
			return nil
		}
		return x.Time.UTC()
	case [16]byte:
		return uuid.UUID(x).String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func finiteOrNil(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
