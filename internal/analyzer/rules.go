package analyzer

import "fmt"

const (
	MinRowsForSeqScanWarning  = 1000
	MinCostForHighCostWarning = 1000.0
	MinRowsForParallelHint    = 10000
)

// Rule inspects a partially built analysis and returns recommendations.
// Rules are independent; every rule runs.
type Rule func(q QueryAnalysis) []string

var defaultRules = []Rule{
	checkLargeSeqScans,
	checkHighCostOperations,
	checkParallelOpportunity,
	checkNoIndexes,
}

func recommend(q QueryAnalysis, rules []Rule) []string {
	out := []string{}
	for _, rule := range rules {
		out = append(out, rule(q)...)
	}
	return out
}

func checkLargeSeqScans(q QueryAnalysis) []string {
	var out []string
	for _, t := range q.TableImpact {
		if t.Operation == "Seq Scan" && t.EstimatedRows > MinRowsForSeqScanWarning {
			out = append(out, fmt.Sprintf(
				"Consider adding an index for table %s as it performs a sequential scan on %d rows",
				t.TableName, t.EstimatedRows))
		}
	}
	return out
}

func checkHighCostOperations(q QueryAnalysis) []string {
	var out []string
	for _, t := range q.TableImpact {
		if t.EstimatedCost > MinCostForHighCostWarning {
			out = append(out, fmt.Sprintf(
				"High-cost operation (%v) on table %s. Consider optimizing the query or adding indexes.",
				t.EstimatedCost, t.TableName))
		}
	}
	return out
}

func checkParallelOpportunity(q QueryAnalysis) []string {
	if q.UsesParallel {
		return nil
	}
	for _, t := range q.TableImpact {
		if t.EstimatedRows > MinRowsForParallelHint {
			return []string{"Query might benefit from parallel processing. Consider enabling parallel query execution."}
		}
	}
	return nil
}

func checkNoIndexes(q QueryAnalysis) []string {
	if len(q.IndexesUsed) > 0 {
		return nil
	}
	return []string{"No indexes are used in this query. Consider adding appropriate indexes for frequently filtered columns."}
}
