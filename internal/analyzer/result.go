package analyzer

import "github.com/jacobarthurs/pginsights/internal/plan"

// TableImpact is one plan node that reads a relation.
type TableImpact struct {
	TableName     string   `json:"table_name"`
	Operation     string   `json:"operation"`
	EstimatedRows int64    `json:"estimated_rows"`
	EstimatedCost float64  `json:"estimated_cost"`
	Filters       []string `json:"filters"`
}

// QueryAnalysis is the self-contained result of analyzing one plan. Slices
// are never nil so they encode as empty arrays.
type QueryAnalysis struct {
	Plan            plan.PlanNode `json:"plan"`
	PlanningTimeMs  float64       `json:"planning_time_ms"`
	EstimatedCost   float64       `json:"estimated_cost"`
	UsesParallel    bool          `json:"uses_parallel"`
	IndexesUsed     []string      `json:"indexes_used"`
	TableImpact     []TableImpact `json:"table_impact"`
	Recommendations []string      `json:"recommendations"`
}
