package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

const (
	// DeadTupleRatio is the dead/live tuple ratio above which a table is
	// reported as bloated.
	DeadTupleRatio = 0.2
	// StaleStatisticsAge is how old the last analyze may be before planner
	// statistics are reported as stale.
	StaleStatisticsAge = 7 * 24 * time.Hour
)

type tableMaintenanceCheck struct {
	exec db.Executor
	now  func() time.Time
}

type tableStats struct {
	Schema      string
	Table       string
	LiveTuples  int64
	DeadTuples  int64
	LastAnalyze *time.Time
	LastVacuum  *time.Time
}

func (c *tableMaintenanceCheck) Blocking() bool {
	return false
}

func (c *tableMaintenanceCheck) Validate(ctx context.Context, _ *check.RunContext) ([]insight.Insight, error) {
	if _, err := c.exec.Execute(ctx, "SELECT 1 FROM pg_stat_user_tables LIMIT 1"); err != nil {
		return []insight.Insight{
			insight.Critical(insight.KindTableMaintenanceFailure, "database", "Table Maintenance Analysis Cannot Run", err).
				With("reason", fmt.Sprintf("Cannot access table statistics: %v", err)),
		}, nil
	}
	return nil, nil
}

func (c *tableMaintenanceCheck) Generate(ctx context.Context, _ *check.RunContext) ([]insight.Insight, error) {
	rows, err := c.exec.Execute(ctx, `
		SELECT
			schemaname::text AS schemaname,
			relname::text AS relname,
			n_live_tup::bigint AS n_live_tup,
			n_dead_tup::bigint AS n_dead_tup,
			GREATEST(last_analyze, last_autoanalyze) AS last_analyze,
			GREATEST(last_vacuum, last_autovacuum) AS last_vacuum
		FROM pg_stat_user_tables
		ORDER BY schemaname, relname`)
	if err != nil {
		return nil, fmt.Errorf("reading table statistics: %w", err)
	}

	stats := make([]tableStats, 0, len(rows))
	for _, r := range rows {
		s := tableStats{
			Schema:     r.String("schemaname"),
			Table:      r.String("relname"),
			LiveTuples: r.Int64("n_live_tup"),
			DeadTuples: r.Int64("n_dead_tup"),
		}
		if t, ok := r.Time("last_analyze"); ok {
			s.LastAnalyze = &t
		}
		if t, ok := r.Time("last_vacuum"); ok {
			s.LastVacuum = &t
		}
		stats = append(stats, s)
	}
	return maintenanceInsights(stats, c.now()), nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// maintenanceInsights reports bloated tables, worst ratio first, followed by
// non-empty tables whose statistics were never or not recently analyzed.
func maintenanceInsights(stats []tableStats, now time.Time) []insight.Insight {
	type bloated struct {
		tableStats
		ratio float64
	}
	var bloat []bloated
	for _, s := range stats {
		if s.LiveTuples <= 0 {
			continue
		}
		if ratio := float64(s.DeadTuples) / float64(s.LiveTuples); ratio > DeadTupleRatio {
			bloat = append(bloat, bloated{s, ratio})
		}
	}
	sort.SliceStable(bloat, func(i, j int) bool { return bloat[i].ratio > bloat[j].ratio })

	var insights []insight.Insight
	for _, b := range bloat {
		insights = append(insights, insight.New(insight.KindTableBloat, insight.ImpactModerate,
			b.Schema+"."+b.Table, "Table Bloat Detected").
			WithResolution(fmt.Sprintf("VACUUM (ANALYZE) %s;", qualified(b.Schema, b.Table))).
			With("schema", b.Schema).
			With("table", b.Table).
			With("live_tuples", b.LiveTuples).
			With("dead_tuples", b.DeadTuples).
			With("dead_ratio", b.ratio).
			With("last_vacuum", formatTime(b.LastVacuum)).
			With("description", fmt.Sprintf("%.0f%% of the tuples in %s.%s are dead", b.ratio*100, b.Schema, b.Table)))
	}

	for _, s := range stats {
		if s.LiveTuples+s.DeadTuples == 0 {
			continue
		}
		if s.LastAnalyze != nil && now.Sub(*s.LastAnalyze) <= StaleStatisticsAge {
			continue
		}
		description := fmt.Sprintf("Table %s.%s has never been analyzed", s.Schema, s.Table)
		if s.LastAnalyze != nil {
			description = fmt.Sprintf("Table %s.%s was last analyzed %s", s.Schema, s.Table, s.LastAnalyze.UTC().Format(time.RFC3339))
		}
		insights = append(insights, insight.New(insight.KindStaleStatistics, insight.ImpactLow,
			s.Schema+"."+s.Table, "Stale Planner Statistics").
			WithResolution(fmt.Sprintf("ANALYZE %s;", qualified(s.Schema, s.Table))).
			With("schema", s.Schema).
			With("table", s.Table).
			With("live_tuples", s.LiveTuples).
			With("last_analyze", formatTime(s.LastAnalyze)).
			With("description", description))
	}
	return insights
}
