// Package analyzer derives table impact and tuning recommendations from a
// query plan.
package analyzer

import (
	"context"
	"strings"

	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/plan"
)

// AnalyzeQuery explains sql through e and analyzes the resulting plan.
func AnalyzeQuery(ctx context.Context, e db.Explainer, sql string) (QueryAnalysis, error) {
	output, err := plan.Explain(ctx, e, sql)
	if err != nil {
		return QueryAnalysis{}, err
	}
	return Analyze(output), nil
}

func Analyze(output plan.ExplainOutput) QueryAnalysis {
	root := &output.Plan
	result := QueryAnalysis{
		Plan:           output.Plan,
		PlanningTimeMs: output.PlanningTime,
		EstimatedCost:  root.TotalCost,
		UsesParallel:   hasParallelism(root),
		IndexesUsed:    collectIndexNames(root, []string{}),
		TableImpact:    collectTableImpacts(root, []TableImpact{}),
	}
	result.Recommendations = recommend(result, defaultRules)
	return result
}

func hasParallelism(node *plan.PlanNode) bool {
	if node.ParallelAware {
		return true
	}
	for i := range node.Plans {
		if hasParallelism(&node.Plans[i]) {
			return true
		}
	}
	return false
}

// collectIndexNames appends index names in pre-order.
func collectIndexNames(node *plan.PlanNode, acc []string) []string {
	if strings.Contains(node.NodeType, "Index") && node.IndexName != "" {
		acc = append(acc, node.IndexName)
	}
	for i := range node.Plans {
		acc = collectIndexNames(&node.Plans[i], acc)
	}
	return acc
}

// collectTableImpacts appends one record per node naming a relation, in
// pre-order, using that node's own estimates.
func collectTableImpacts(node *plan.PlanNode, acc []TableImpact) []TableImpact {
	if node.RelationName != "" {
		acc = append(acc, TableImpact{
			TableName:     node.RelationName,
			Operation:     node.NodeType,
			EstimatedRows: node.PlanRows,
			EstimatedCost: node.TotalCost,
			Filters:       node.Filters(),
		})
	}
	for i := range node.Plans {
		acc = collectTableImpacts(&node.Plans[i], acc)
	}
	return acc
}
