package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRow_Accessors(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := Row{
		"name":   "shared_buffers",
		"i32":    int32(42),
		"i64":    int64(7),
		"f":      float64(12.9),
		"s":      "128",
		"flag":   true,
		"ts":     ts,
		"absent": nil,
	}

	assert.Equal(t, "shared_buffers", r.String("name"))
	assert.Equal(t, int64(42), r.Int64("i32"))
	assert.Equal(t, int64(7), r.Int64("i64"))
	assert.Equal(t, int64(12), r.Int64("f"))
	assert.Equal(t, int64(128), r.Int64("s"))
	assert.InDelta(t, 12.9, r.Float64("f"), 1e-9)
	assert.True(t, r.Bool("flag"))

	got, ok := r.Time("ts")
	assert.True(t, ok)
	assert.Equal(t, ts, got)

	_, ok = r.Time("absent")
	assert.False(t, ok)
	assert.False(t, r.Has("absent"))
	assert.False(t, r.Has("missing"))
	assert.True(t, r.Has("name"))
	assert.Equal(t, int64(0), r.Int64("missing"))
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, KindPostgreSQL, NormalizeKind("postgres"))
	assert.Equal(t, KindPostgreSQL, NormalizeKind(" PostgreSQL "))
	assert.Equal(t, KindPostgreSQL, NormalizeKind(""))
	assert.Equal(t, "mysql", NormalizeKind("MySQL"))
}
