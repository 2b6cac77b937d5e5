package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

const (
	// SlowQueryThresholdMs is the mean execution time above which a
	// statement is reported.
	SlowQueryThresholdMs = 100.0
	slowQueryLimit       = 10
)

var tableRefPattern = regexp.MustCompile(`(?i)(?:FROM|JOIN)\s+([a-zA-Z0-9_.]+)`)

type slowQueriesCheck struct {
	exec db.Executor
}

type statementStats struct {
	Query            string
	Calls            int64
	TotalTime        float64
	MeanTime         float64
	Rows             int64
	SharedBlksHit    int64
	SharedBlksRead   int64
	SharedBlksDirty  int64
	SharedBlksWrite  int64
	LocalBlksHit     int64
	LocalBlksRead    int64
	LocalBlksWritten int64
	TempBlksRead     int64
	TempBlksWritten  int64
	BlkReadTime      float64
	BlkWriteTime     float64
}

func (c *slowQueriesCheck) Blocking() bool {
	return false
}

func (c *slowQueriesCheck) Validate(ctx context.Context, rc *check.RunContext) ([]insight.Insight, error) {
	available, known := rc.Capability(CapabilityPgStatStatements)
	if !known {
		rows, err := c.exec.Execute(ctx, "SELECT extname FROM pg_extension WHERE extname = 'pg_stat_statements'")
		if err != nil {
			return []insight.Insight{
				insight.Critical(insight.KindSlowQueryFailure, "database", "Slow Queries Analysis Cannot Run", err).
					With("reason", fmt.Sprintf("Cannot analyze slow queries: %v", err)),
			}, nil
		}
		available = len(rows) > 0
		rc.SetCapability(CapabilityPgStatStatements, available)
	}

	if !available {
		return []insight.Insight{
			insight.New(insight.KindMissingExtension, insight.ImpactCritical, "database",
				"pg_stat_statements Extension Missing").
				WithResolution("CREATE EXTENSION IF NOT EXISTS pg_stat_statements;").
				With("extension", "pg_stat_statements").
				With("status", "missing").
				With("description", "The pg_stat_statements extension is not enabled. "+
					"This extension is required for query performance analysis."),
		}, nil
	}
	return nil, nil
}

func (c *slowQueriesCheck) Generate(ctx context.Context, rc *check.RunContext) ([]insight.Insight, error) {
	version, err := serverVersionNum(ctx, c.exec, rc)
	if err != nil {
		return nil, err
	}

	rows, err := c.exec.Execute(ctx, statementStatsQuery(version))
	if err != nil {
		return nil, fmt.Errorf("reading pg_stat_statements: %w", err)
	}

	stats := make([]statementStats, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, statementStats{
			Query:            r.String("query"),
			Calls:            r.Int64("calls"),
			TotalTime:        r.Float64("total_time"),
			MeanTime:         r.Float64("mean_time"),
			Rows:             r.Int64("rows"),
			SharedBlksHit:    r.Int64("shared_blks_hit"),
			SharedBlksRead:   r.Int64("shared_blks_read"),
			SharedBlksDirty:  r.Int64("shared_blks_dirtied"),
			SharedBlksWrite:  r.Int64("shared_blks_written"),
			LocalBlksHit:     r.Int64("local_blks_hit"),
			LocalBlksRead:    r.Int64("local_blks_read"),
			LocalBlksWritten: r.Int64("local_blks_written"),
			TempBlksRead:     r.Int64("temp_blks_read"),
			TempBlksWritten:  r.Int64("temp_blks_written"),
			BlkReadTime:      r.Float64("blk_read_time"),
			BlkWriteTime:     r.Float64("blk_write_time"),
		})
	}
	return slowQueryInsights(stats), nil
}

// statementStatsQuery selects the columns under their PostgreSQL 13+
// names, aliased to stable keys. The timing columns were renamed in 13 and
// the block I/O timings in 17.
func statementStatsQuery(version int64) string {
	totalCol, meanCol := "total_time", "mean_time"
	if version >= 130000 {
		totalCol, meanCol = "total_exec_time", "mean_exec_time"
	}
	readCol, writeCol := "blk_read_time", "blk_write_time"
	if version >= 170000 {
		readCol, writeCol = "shared_blk_read_time", "shared_blk_write_time"
	}

	return fmt.Sprintf(`
		SELECT
			query,
			calls,
			%[1]s AS total_time,
			%[2]s AS mean_time,
			rows,
			shared_blks_hit,
			shared_blks_read,
			shared_blks_dirtied,
			shared_blks_written,
			local_blks_hit,
			local_blks_read,
			local_blks_written,
			temp_blks_read,
			temp_blks_written,
			%[3]s AS blk_read_time,
			%[4]s AS blk_write_time
		FROM pg_stat_statements
		WHERE %[2]s > %[5]v
		ORDER BY %[2]s DESC
		LIMIT %[6]d`, totalCol, meanCol, readCol, writeCol, SlowQueryThresholdMs, slowQueryLimit)
}

func slowQueryImpact(s statementStats) insight.Impact {
	switch {
	case s.MeanTime > 1000 || s.TotalTime > 10000:
		return insight.ImpactHigh
	case s.MeanTime > 100 || s.TotalTime > 1000:
		return insight.ImpactModerate
	default:
		return insight.ImpactLow
	}
}

func slowQueryRecommendations(s statementStats) []string {
	var recs []string
	if float64(s.SharedBlksRead) > float64(s.SharedBlksHit)*0.5 {
		recs = append(recs, "Consider adding or optimizing indexes to reduce sequential scans")
	}
	if s.TempBlksRead > 0 || s.TempBlksWritten > 0 {
		recs = append(recs, "Query is using temporary tables. Consider optimizing to avoid temp table usage")
	}
	if s.Rows > 10000 {
		recs = append(recs, "Query returns a large number of rows. Consider adding LIMIT or optimizing the WHERE clause")
	}
	if s.Calls > 1000 {
		recs = append(recs, "Query is called frequently. Consider caching results if possible")
	}
	return recs
}

// referencedTables returns the distinct relation names following FROM or
// JOIN, in order of first appearance.
func referencedTables(query string) []string {
	var tables []string
	seen := make(map[string]bool)
	for _, m := range tableRefPattern.FindAllStringSubmatch(query, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			tables = append(tables, m[1])
		}
	}
	return tables
}

// slowQueryInsights keeps statements with a mean time above the threshold,
// slowest first, at most ten.
func slowQueryInsights(stats []statementStats) []insight.Insight {
	var slow []statementStats
	for _, s := range stats {
		if s.MeanTime > SlowQueryThresholdMs {
			slow = append(slow, s)
		}
	}
	sort.SliceStable(slow, func(i, j int) bool { return slow[i].MeanTime > slow[j].MeanTime })
	if len(slow) > slowQueryLimit {
		slow = slow[:slowQueryLimit]
	}

	insights := make([]insight.Insight, 0, len(slow))
	for _, s := range slow {
		recs := slowQueryRecommendations(s)
		description := fmt.Sprintf("Query takes %.2fms on average (%d calls)", s.MeanTime, s.Calls)
		if len(recs) > 0 {
			description += "\n" + strings.Join(recs, "\n")
		}

		insights = append(insights, insight.New(insight.KindSlowQuery, slowQueryImpact(s),
			strings.Join(referencedTables(s.Query), ", "), "Slow Query Detected").
			With("query", s.Query).
			With("calls", s.Calls).
			With("total_time", s.TotalTime).
			With("mean_time", s.MeanTime).
			With("rows", s.Rows).
			With("shared_blks_hit", s.SharedBlksHit).
			With("shared_blks_read", s.SharedBlksRead).
			With("shared_blks_dirtied", s.SharedBlksDirty).
			With("shared_blks_written", s.SharedBlksWrite).
			With("local_blks_hit", s.LocalBlksHit).
			With("local_blks_read", s.LocalBlksRead).
			With("local_blks_written", s.LocalBlksWritten).
			With("temp_blks_read", s.TempBlksRead).
			With("temp_blks_written", s.TempBlksWritten).
			With("blk_read_time", s.BlkReadTime).
			With("blk_write_time", s.BlkWriteTime).
			With("recommendations", recs).
			With("description", description))
	}
	return insights
}
