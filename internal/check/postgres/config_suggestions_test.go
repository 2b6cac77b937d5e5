package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/db/dbtest"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

func setting(name, value, unit string) db.Row {
	return db.Row{"name": name, "setting": value, "unit": unit}
}

func settingsFake(sharedBuffers8k string) *dbtest.Fake {
	return dbtest.New().On("WHERE name IN",
		setting("shared_buffers", sharedBuffers8k, "8kB"),
		setting("work_mem", "65536", "kB"),
		setting("maintenance_work_mem", "1048576", "kB"),
		setting("wal_buffers", "2048", "8kB"),
		setting("max_connections", "100", ""),
	)
}

func ramMB(mb int64) func() (int64, error) {
	return func() (int64, error) { return mb, nil }
}

func TestConfigSuggestions_SharedBuffersTooSmall(t *testing.T) {
	c := &configSuggestionsCheck{exec: settingsFake("16384"), totalMemoryMB: ramMB(8192)}
	rc := check.NewRunContext()

	got, err := c.Generate(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, got, 1)

	in := got[0]
	assert.Equal(t, insight.KindConfigOptimize, in.Kind)
	assert.Equal(t, insight.LevelHigh, in.Level)
	assert.Equal(t, "shared_buffers", in.Location)
	assert.Equal(t, int64(128), in.Context["current_value"])
	assert.Equal(t, int64(2048), in.Context["suggested_value"])
	require.NotNil(t, in.Resolution)
	assert.Equal(t, "ALTER SYSTEM SET shared_buffers = '2048MB';", *in.Resolution)

	ram, _ := rc.Int64(ValueTotalMemoryMB)
	assert.Equal(t, int64(8192), ram)
}

func TestConfigSuggestions_AlreadyTuned(t *testing.T) {
	c := &configSuggestionsCheck{exec: settingsFake("524288"), totalMemoryMB: ramMB(8192)}

	got, err := c.Generate(context.Background(), check.NewRunContext())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConfigSuggestions_MemoryDetectionFails(t *testing.T) {
	c := &configSuggestionsCheck{
		exec:          settingsFake("16384"),
		totalMemoryMB: func() (int64, error) { return 0, errors.New("no /proc") },
	}

	_, err := c.Generate(context.Background(), check.NewRunContext())
	assert.ErrorContains(t, err, "no /proc")
}

func TestConfigSuggestions_ValidateFailure(t *testing.T) {
	c := &configSuggestionsCheck{exec: dbtest.New().Fail("pg_settings", errors.New("denied")), totalMemoryMB: ramMB(1)}

	got, err := c.Validate(context.Background(), check.NewRunContext())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, insight.KindConfigAnalysisFailure, got[0].Kind)
}

func TestSettingMB(t *testing.T) {
	assert.Equal(t, int64(128), settingMB(16384, "8kB"))
	assert.Equal(t, int64(4), settingMB(4096, "kB"))
	assert.Equal(t, int64(64), settingMB(64, "MB"))
	assert.Equal(t, int64(100), settingMB(100, ""))
}

func TestParseSettings_AutoWALBuffers(t *testing.T) {
	s := parseSettings([]db.Row{
		setting("shared_buffers", "16384", "8kB"),
		setting("wal_buffers", "-1", "8kB"),
	})

	assert.Equal(t, int64(4), s.WALBuffers)
	assert.True(t, s.WALBuffersAuto)
}

func TestSuggestConfig(t *testing.T) {
	s := memorySettings{
		SharedBuffers:      128,
		WorkMem:            4,
		MaintenanceWorkMem: 64,
		WALBuffers:         4,
		WALBuffersAuto:     true,
		MaxConnections:     100,
	}

	got := suggestConfig(s, 16384)
	require.Len(t, got, 4)

	byParam := make(map[string]insight.Insight)
	for _, in := range got {
		byParam[in.Location] = in
	}
	assert.Equal(t, int64(4096), byParam["shared_buffers"].Context["suggested_value"])
	assert.Equal(t, int64(40), byParam["work_mem"].Context["suggested_value"])
	assert.Equal(t, int64(1024), byParam["maintenance_work_mem"].Context["suggested_value"])
	assert.Equal(t, int64(16), byParam["wal_buffers"].Context["suggested_value"])
	assert.Equal(t, true, byParam["wal_buffers"].Context["auto_tuned"])
	assert.Equal(t, insight.LevelModerate, byParam["work_mem"].Level)
}

func TestSuggestConfig_NoConnectionsSkipsWorkMem(t *testing.T) {
	got := suggestConfig(memorySettings{SharedBuffers: 8192, MaintenanceWorkMem: 1024, WALBuffers: 16}, 32768)
	assert.Empty(t, got)
}
