package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cast"
)

// Row is one result row keyed by column name.
type Row map[string]any

type float64Valuer interface {
	Float64Value() (pgtype.Float8, error)
}

func (r Row) value(key string) any {
	v := r[key]
	if fv, ok := v.(float64Valuer); ok {
		f, err := fv.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return v
}

// Has reports whether the column is present and not NULL.
func (r Row) Has(key string) bool {
	return r.value(key) != nil
}

func (r Row) String(key string) string {
	return cast.ToString(r.value(key))
}

func (r Row) Int64(key string) int64 {
	switch v := r.value(key).(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	default:
		return cast.ToInt64(v)
	}
}

func (r Row) Float64(key string) float64 {
	return cast.ToFloat64(r.value(key))
}

func (r Row) Bool(key string) bool {
	return cast.ToBool(r.value(key))
}

// Time returns the column as a time, with ok false for NULL or unparsable values.
func (r Row) Time(key string) (t time.Time, ok bool) {
	v := r.value(key)
	if v == nil {
		return time.Time{}, false
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
