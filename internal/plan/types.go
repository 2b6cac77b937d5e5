// Package plan models PostgreSQL EXPLAIN (FORMAT JSON) output and resolves
// analyzer input into a plan.
package plan

import "strings"

type PlanNode struct {
	NodeType           string `json:"Node Type"`
	ParentRelationship string `json:"Parent Relationship,omitempty"`
	Strategy           string `json:"Strategy,omitempty"`
	ParallelAware      bool   `json:"Parallel Aware"`

	// Estimates; actuals are only present in EXPLAIN ANALYZE documents
	StartupCost     float64 `json:"Startup Cost"`
	TotalCost       float64 `json:"Total Cost"`
	PlanRows        int64   `json:"Plan Rows"`
	PlanWidth       int     `json:"Plan Width"`
	ActualTotalTime float64 `json:"Actual Total Time,omitempty"`
	ActualRows      int64   `json:"Actual Rows,omitempty"`

	// Relation/index info
	Schema       string `json:"Schema,omitempty"`
	RelationName string `json:"Relation Name,omitempty"`
	Alias        string `json:"Alias,omitempty"`
	IndexName    string `json:"Index Name,omitempty"`

	// Conditions
	IndexCond  string `json:"Index Cond,omitempty"`
	Filter     string `json:"Filter,omitempty"`
	JoinType   string `json:"Join Type,omitempty"`
	JoinFilter string `json:"Join Filter,omitempty"`
	HashCond   string `json:"Hash Cond,omitempty"`
	MergeCond  string `json:"Merge Cond,omitempty"`

	SortKey  []string `json:"Sort Key,omitempty"`
	GroupKey []string `json:"Group Key,omitempty"`

	WorkersPlanned int `json:"Workers Planned,omitempty"`

	CTEName     string `json:"CTE Name,omitempty"`
	SubplanName string `json:"Subplan Name,omitempty"`

	Plans []PlanNode `json:"Plans,omitempty"`
}

// Filters returns the node's row filter as a list, empty when it has none.
func (n PlanNode) Filters() []string {
	if f := strings.TrimSpace(n.Filter); f != "" {
		return []string{f}
	}
	return []string{}
}

// ExplainOutput represents the top-level EXPLAIN JSON output from PostgreSQL.
type ExplainOutput struct {
	Plan          PlanNode `json:"Plan"`
	PlanningTime  float64  `json:"Planning Time,omitempty"`
	ExecutionTime float64  `json:"Execution Time,omitempty"`
}
