package postgres

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

// UnusedIndexAge is how long an index may go without a scan before it is
// reported as unused.
const UnusedIndexAge = 30 * 24 * time.Hour

// last_idx_scan was added to pg_stat_user_indexes in PostgreSQL 16.
const lastIdxScanMinVersion = 160000

type indexAuditCheck struct {
	exec db.Executor
	now  func() time.Time
}

type indexUsage struct {
	Schema     string
	Table      string
	Name       string
	Scans      int64
	LastScan   *time.Time
	SizeBytes  int64
	Definition string
}

type indexDef struct {
	Schema     string
	Table      string
	Name       string
	Definition string
}

func (c *indexAuditCheck) Blocking() bool {
	return false
}

func (c *indexAuditCheck) Validate(ctx context.Context, _ *check.RunContext) ([]insight.Insight, error) {
	if _, err := c.exec.Execute(ctx, "SELECT 1 FROM pg_indexes LIMIT 1"); err != nil {
		return []insight.Insight{
			insight.Critical(insight.KindIndexAuditFailure, "database", "Index Audit Cannot Run", err).
				With("reason", fmt.Sprintf("Cannot access index information: %v", err)),
		}, nil
	}
	return nil, nil
}

func (c *indexAuditCheck) Generate(ctx context.Context, rc *check.RunContext) ([]insight.Insight, error) {
	version, err := serverVersionNum(ctx, c.exec, rc)
	if err != nil {
		return nil, err
	}

	usage, err := c.indexUsage(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("reading index usage: %w", err)
	}
	defs, err := c.indexDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index definitions: %w", err)
	}

	insights := unusedIndexInsights(usage, c.now())
	return append(insights, redundantIndexInsights(defs)...), nil
}

func (c *indexAuditCheck) indexUsage(ctx context.Context, version int64) ([]indexUsage, error) {
	lastScan := "NULL::timestamptz"
	where := "ui.idx_scan = 0"
	if version >= lastIdxScanMinVersion {
		lastScan = "ui.last_idx_scan"
		where = "ui.idx_scan = 0 OR ui.last_idx_scan < now() - interval '30 days'"
	}

	rows, err := c.exec.Execute(ctx, fmt.Sprintf(`
		SELECT
			ui.schemaname::text AS schemaname,
			ui.relname::text AS relname,
			ui.indexrelname::text AS indexrelname,
			ui.idx_scan::bigint AS idx_scan,
			%s AS last_idx_scan,
			pg_relation_size(ui.indexrelid)::bigint AS index_size,
			pi.indexdef AS index_definition
		FROM pg_stat_user_indexes ui
		JOIN pg_indexes pi ON ui.schemaname = pi.schemaname
			AND ui.relname = pi.tablename
			AND ui.indexrelname = pi.indexname
		WHERE %s
		ORDER BY pg_relation_size(ui.indexrelid) DESC`, lastScan, where))
	if err != nil {
		return nil, err
	}

	out := make([]indexUsage, 0, len(rows))
	for _, r := range rows {
		u := indexUsage{
			Schema:     r.String("schemaname"),
			Table:      r.String("relname"),
			Name:       r.String("indexrelname"),
			Scans:      r.Int64("idx_scan"),
			SizeBytes:  r.Int64("index_size"),
			Definition: r.String("index_definition"),
		}
		if t, ok := r.Time("last_idx_scan"); ok {
			u.LastScan = &t
		}
		out = append(out, u)
	}
	return out, nil
}

func (c *indexAuditCheck) indexDefinitions(ctx context.Context) ([]indexDef, error) {
	rows, err := c.exec.Execute(ctx, `
		SELECT schemaname::text AS schemaname, tablename::text AS tablename,
			indexname::text AS indexname, indexdef
		FROM pg_indexes
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
			AND schemaname NOT LIKE 'pg_toast%'
		ORDER BY schemaname, tablename, indexname`)
	if err != nil {
		return nil, err
	}

	out := make([]indexDef, 0, len(rows))
	for _, r := range rows {
		out = append(out, indexDef{
			Schema:     r.String("schemaname"),
			Table:      r.String("tablename"),
			Name:       r.String("indexname"),
			Definition: r.String("indexdef"),
		})
	}
	return out, nil
}

func isUnused(u indexUsage, now time.Time) bool {
	if u.Scans == 0 {
		return true
	}
	return u.LastScan != nil && now.Sub(*u.LastScan) > UnusedIndexAge
}

// unusedIndexInsights reports never-scanned or long-idle indexes, largest first.
func unusedIndexInsights(usage []indexUsage, now time.Time) []insight.Insight {
	var unused []indexUsage
	for _, u := range usage {
		if isUnused(u, now) {
			unused = append(unused, u)
		}
	}
	sort.SliceStable(unused, func(i, j int) bool {
		return unused[i].SizeBytes > unused[j].SizeBytes
	})

	insights := make([]insight.Insight, 0, len(unused))
	for _, u := range unused {
		in := insight.New(insight.KindUnusedIndex, insight.ImpactModerate,
			u.Schema+"."+u.Table+"."+u.Name, "Unused Index Detected").
			WithResolution(fmt.Sprintf("DROP INDEX IF EXISTS %s;", qualified(u.Schema, u.Name))).
			With("schema", u.Schema).
			With("table", u.Table).
			With("index", u.Name).
			With("index_definition", u.Definition).
			With("index_size", u.SizeBytes).
			With("idx_scan", u.Scans).
			With("description", fmt.Sprintf("Index %s on %s.%s is unused", u.Name, u.Schema, u.Table))
		if u.LastScan != nil {
			in = in.With("last_idx_scan", u.LastScan.UTC().Format(time.RFC3339))
		}
		insights = append(insights, in)
	}
	return insights
}

type parsedIndex struct {
	indexDef
	Method  string
	Columns []string
	Unique  bool
	Partial bool
}

// parseIndexDef extracts the access method and key columns from a
// pg_indexes.indexdef string such as
// "CREATE UNIQUE INDEX idx ON public.t USING btree (a, lower(b)) WHERE (c > 0)".
func parseIndexDef(def string) (method string, columns []string, unique, partial, ok bool) {
	upper := strings.ToUpper(def)
	unique = strings.HasPrefix(upper, "CREATE UNIQUE INDEX")

	i := strings.Index(upper, " USING ")
	if i < 0 {
		return "", nil, false, false, false
	}
	rest := def[i+len(" USING "):]

	open := strings.IndexByte(rest, '(')
	if open < 0 {
		return "", nil, false, false, false
	}
	method = strings.ToLower(strings.TrimSpace(rest[:open]))

	depth := 0
	closeAt := -1
	for j := open; j < len(rest); j++ {
		switch rest[j] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 {
			closeAt = j
			break
		}
	}
	if closeAt < 0 {
		return "", nil, false, false, false
	}

	columns = splitTopLevel(rest[open+1 : closeAt])
	partial = strings.Contains(strings.ToUpper(rest[closeAt:]), " WHERE ")
	return method, columns, unique, partial, len(columns) > 0
}

func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, normalizeColumn(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := normalizeColumn(s[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts
}

func normalizeColumn(col string) string {
	col = strings.ToLower(strings.TrimSpace(col))
	return strings.TrimSuffix(col, " asc")
}

func isPrefix(narrow, wide []string) bool {
	return len(narrow) <= len(wide) && slices.Equal(narrow, wide[:len(narrow)])
}

// redundantIndexInsights reports every index whose key columns are a leading
// prefix of another index on the same table with the same access method.
// Among indexes with identical keys a unique index is kept over a plain one,
// otherwise the alphabetically first one is kept.
// Partial indexes are never compared.
func redundantIndexInsights(defs []indexDef) []insight.Insight {
	byTable := make(map[string][]parsedIndex)
	var tables []string
	for _, d := range defs {
		method, cols, unique, partial, ok := parseIndexDef(d.Definition)
		if !ok || partial {
			continue
		}
		key := d.Schema + "." + d.Table
		if _, seen := byTable[key]; !seen {
			tables = append(tables, key)
		}
		byTable[key] = append(byTable[key], parsedIndex{
			indexDef: d, Method: method, Columns: cols, Unique: unique,
		})
	}
	sort.Strings(tables)

	var insights []insight.Insight
	for _, table := range tables {
		indexes := byTable[table]
		sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })

		for _, a := range indexes {
			for _, b := range indexes {
				if a.Name == b.Name || a.Method != b.Method || !isPrefix(a.Columns, b.Columns) {
					continue
				}
				if len(a.Columns) == len(b.Columns) && keepOver(a, b) {
					continue
				}
				insights = append(insights, redundantInsight(a, b))
				break
			}
		}
	}
	return insights
}

func keepOver(a, b parsedIndex) bool {
	if a.Unique != b.Unique {
		return a.Unique
	}
	return a.Name < b.Name
}

func redundantInsight(redundant, covering parsedIndex) insight.Insight {
	in := insight.New(insight.KindRedundantIndex, insight.ImpactLow,
		redundant.Schema+"."+redundant.Table+"."+redundant.Name, "Redundant Index Detected").
		With("schema", redundant.Schema).
		With("table", redundant.Table).
		With("redundant_index", redundant.Name).
		With("covering_index", covering.Name).
		With("redundant_columns", redundant.Columns).
		With("covering_columns", covering.Columns).
		With("unique", redundant.Unique).
		With("description", fmt.Sprintf("Index %s is redundant with %s", redundant.Name, covering.Name))

	// Dropping a unique index would drop its constraint, so no automated fix.
	if !redundant.Unique {
		in = in.WithResolution(fmt.Sprintf("DROP INDEX IF EXISTS %s;", qualified(redundant.Schema, redundant.Name)))
	}
	return in
}
