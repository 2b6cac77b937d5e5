// Package output renders reports as JSON or styled text.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jacobarthurs/pginsights/internal/analyzer"
	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/insight"
	"github.com/jacobarthurs/pginsights/internal/insights"
)

type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

// RenderInsightsText writes one section per result, most severe insights
// first.
func RenderInsightsText(w io.Writer, results []insights.Result) error {
	tw := &textWriter{w: w}
	s := current

	for i, res := range results {
		if i > 0 {
			tw.printf("\n")
		}
		source := "checked " + res.CheckedAt.Local().Format(time.RFC3339)
		if res.Cached {
			source = "cached " + res.CheckedAt.Local().Format(time.RFC3339)
		}
		tw.printf("%s %s\n", s.header.Render("Connection: "+res.Connection), s.muted.Render("("+source+")"))
		tw.printf("  State: %s", res.State)
		if res.BlockedBy != "" {
			tw.printf(" by %s", res.BlockedBy)
		}
		tw.printf("\n\n")

		if len(res.Insights) == 0 {
			tw.printf("%s\n", s.success.Render("No issues found."))
			continue
		}

		sorted := make([]insight.Insight, len(res.Insights))
		copy(sorted, res.Insights)
		sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Level > sorted[b].Level })

		tw.printf("%s\n\n", s.header.Render(fmt.Sprintf("Insights (%d)", len(sorted))))
		for j, in := range sorted {
			tw.renderInsight(in)
			if j < len(sorted)-1 {
				tw.printf("\n")
			}
		}
	}
	return tw.err
}

func (tw *textWriter) renderInsight(in insight.Insight) {
	s := current
	label := strings.ToUpper(in.Level.Text())
	tw.printf("  %s %s", s.level(int(in.Level)).Render(fmt.Sprintf("%-8s", label)), s.bold.Render(in.Title))
	if in.Location != "" {
		tw.printf(" %s", s.muted.Render("["+in.Location+"]"))
	}
	tw.printf("\n")
	if desc, ok := in.Context["description"].(string); ok && desc != "" {
		for _, line := range strings.Split(desc, "\n") {
			tw.printf("           %s\n", line)
		}
	}
	if in.Resolution != nil {
		tw.printf("           %s\n", s.muted.Render("→ "+*in.Resolution))
	}
}

func RenderAnalysisText(w io.Writer, q analyzer.QueryAnalysis) error {
	tw := &textWriter{w: w}
	s := current

	tw.printf("%s\n\n", s.header.Render("Plan Summary"))
	tw.printf("  Root Node:      %s\n", q.Plan.NodeType)
	tw.printf("  Total Cost:     %.2f\n", q.EstimatedCost)
	if q.PlanningTimeMs > 0 {
		tw.printf("  Planning Time:  %.3f ms\n", q.PlanningTimeMs)
	}
	tw.printf("  Parallel:       %t\n", q.UsesParallel)
	indexes := "none"
	if len(q.IndexesUsed) > 0 {
		indexes = strings.Join(q.IndexesUsed, ", ")
	}
	tw.printf("  Indexes Used:   %s\n\n", indexes)

	if len(q.TableImpact) > 0 {
		tw.printf("%s\n\n", s.header.Render("Table Impact"))
		t := NewTable("TABLE", "OPERATION", "ROWS", "COST", "FILTERS")
		for _, ti := range q.TableImpact {
			t.AddRow(ti.TableName, ti.Operation, fmt.Sprintf("%d", ti.EstimatedRows),
				fmt.Sprintf("%.2f", ti.EstimatedCost), strings.Join(ti.Filters, " AND "))
		}
		for _, line := range strings.Split(strings.TrimRight(t.Render(), "\n"), "\n") {
			tw.printf("  %s\n", line)
		}
		tw.printf("\n")
	}

	if len(q.Recommendations) == 0 {
		tw.printf("%s\n", s.success.Render("No recommendations."))
		return tw.err
	}
	tw.printf("%s\n\n", s.header.Render(fmt.Sprintf("Recommendations (%d)", len(q.Recommendations))))
	for _, r := range q.Recommendations {
		tw.printf("  %s %s\n", s.muted.Render("→"), r)
	}
	return tw.err
}

// RenderChecksText lists descriptors in run order.
func RenderChecksText(w io.Writer, kind string, descs []check.Descriptor) error {
	tw := &textWriter{w: w}
	if len(descs) == 0 {
		tw.printf("No checks registered for %s.\n", kind)
		return tw.err
	}
	t := NewTable("ID", "WEIGHT", "BLOCKING", "DESCRIPTION")
	for _, d := range descs {
		t.AddRow(d.ID, fmt.Sprintf("%d", d.Weight), fmt.Sprintf("%t", d.Blocking), d.Description)
	}
	tw.printf("%s", t.Render())
	return tw.err
}
