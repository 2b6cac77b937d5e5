package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/db/dbtest"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

func TestTableMaintenance_Generate(t *testing.T) {
	recent := auditNow.Add(-time.Hour)
	fake := dbtest.New().On("FROM pg_stat_user_tables\n", db.Row{
		"schemaname":   "public",
		"relname":      "events",
		"n_live_tup":   int64(1000),
		"n_dead_tup":   int64(500),
		"last_analyze": recent,
		"last_vacuum":  nil,
	})
	c := &tableMaintenanceCheck{exec: fake, now: fixedNow}

	got, err := c.Generate(context.Background(), check.NewRunContext())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, insight.KindTableBloat, got[0].Kind)
	require.NotNil(t, got[0].Resolution)
	assert.Equal(t, `VACUUM (ANALYZE) "public"."events";`, *got[0].Resolution)
	assert.InDelta(t, 0.5, got[0].Context["dead_ratio"], 1e-9)
}

func TestTableMaintenance_ValidateFailure(t *testing.T) {
	c := &tableMaintenanceCheck{exec: dbtest.New().Fail("pg_stat_user_tables", errors.New("denied")), now: fixedNow}

	got, err := c.Validate(context.Background(), check.NewRunContext())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, insight.KindTableMaintenanceFailure, got[0].Kind)
}

func TestMaintenanceInsights(t *testing.T) {
	stale := auditNow.Add(-10 * 24 * time.Hour)
	fresh := auditNow.Add(-24 * time.Hour)
	stats := []tableStats{
		{Schema: "s", Table: "empty"},
		{Schema: "s", Table: "healthy", LiveTuples: 100, DeadTuples: 5, LastAnalyze: &fresh},
		{Schema: "s", Table: "never", LiveTuples: 100, DeadTuples: 30, LastAnalyze: nil},
		{Schema: "s", Table: "stale", LiveTuples: 100, DeadTuples: 90, LastAnalyze: &stale},
	}

	got := maintenanceInsights(stats, auditNow)

	var summary []string
	for _, in := range got {
		summary = append(summary, in.Kind+":"+in.Location)
	}
	assert.Equal(t, []string{
		"table-bloat:s.stale",
		"table-bloat:s.never",
		"stale-statistics:s.never",
		"stale-statistics:s.stale",
	}, summary)

	assert.Equal(t, insight.LevelLow, got[2].Level)
	require.NotNil(t, got[2].Resolution)
	assert.Equal(t, `ANALYZE "s"."never";`, *got[2].Resolution)
	assert.Nil(t, got[2].Context["last_analyze"])
}
