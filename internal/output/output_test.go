package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/pginsights/internal/analyzer"
	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/insight"
	"github.com/jacobarthurs/pginsights/internal/insights"
	"github.com/jacobarthurs/pginsights/internal/plan"
)

func plain(t *testing.T) {
	t.Helper()
	SetNoColor(true)
	t.Cleanup(func() { SetNoColor(false) })
}

func TestRenderInsightsText(t *testing.T) {
	plain(t)
	res := insights.Result{
		Connection: "prod",
		CheckedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Report: insights.Report{
			State: insights.StateCompleted,
			Insights: []insight.Insight{
				insight.New(insight.KindRedundantIndex, insight.ImpactLow, "public.t.a", "Redundant Index Detected"),
				insight.New(insight.KindMissingExtension, insight.ImpactCritical, "database", "pg_stat_statements Extension Missing").
					WithResolution("CREATE EXTENSION IF NOT EXISTS pg_stat_statements;").
					With("description", "first line\nsecond line"),
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderInsightsText(&buf, []insights.Result{res}))
	out := buf.String()

	assert.Contains(t, out, "Connection: prod")
	assert.Contains(t, out, "Insights (2)")
	assert.Contains(t, out, "→ CREATE EXTENSION IF NOT EXISTS pg_stat_statements;")
	assert.Contains(t, out, "second line")
	assert.Less(t, strings.Index(out, "CRITICAL"), strings.Index(out, "LOW"))
}

func TestRenderInsightsText_EmptyAndBlocked(t *testing.T) {
	plain(t)
	results := []insights.Result{
		{Connection: "a", Cached: true, Report: insights.Report{State: insights.StateCompleted}},
		{Connection: "b", Report: insights.Report{
			State:     insights.StateBlocked,
			BlockedBy: "connection",
			Insights:  []insight.Insight{insight.Critical(insight.KindConnectionFailed, "database", "Database Connection Failed", nil)},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderInsightsText(&buf, results))
	out := buf.String()

	assert.Contains(t, out, "No issues found.")
	assert.Contains(t, out, "(cached ")
	assert.Contains(t, out, "State: blocked by connection")
}

func TestRenderAnalysisText(t *testing.T) {
	plain(t)
	q := analyzer.Analyze(plan.ExplainOutput{PlanningTime: 0.3, Plan: plan.PlanNode{
		NodeType: "Seq Scan", RelationName: "orders", PlanRows: 5000, TotalCost: 1200, Filter: "(id > 1)",
	}})

	var buf bytes.Buffer
	require.NoError(t, RenderAnalysisText(&buf, q))
	out := buf.String()

	assert.Contains(t, out, "Total Cost:     1200.00")
	assert.Contains(t, out, "Indexes Used:   none")
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "(id > 1)")
	assert.Contains(t, out, "Recommendations (3)")
}

func TestRenderChecksText(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	require.NoError(t, RenderChecksText(&buf, "postgresql", []check.Descriptor{
		{ID: "connection", Weight: 0, Blocking: true, Description: "liveness"},
		{ID: "index-audit", Weight: 10, Description: "indexes"},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "true")
	assert.True(t, strings.HasPrefix(lines[2], "index-audit"))

	buf.Reset()
	require.NoError(t, RenderChecksText(&buf, "oracle", nil))
	assert.Equal(t, "No checks registered for oracle.\n", buf.String())
}

func TestTable_Alignment(t *testing.T) {
	plain(t)
	tbl := NewTable("A", "B")
	tbl.AddRow("long-value", "x")
	tbl.AddRow("s")

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "A           B", lines[0])
	assert.Equal(t, "long-value  x", lines[1])
	assert.Equal(t, "s           ", lines[2])
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, map[string]any{"insights": []insight.Insight{}}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []any{}, decoded["insights"])
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}
