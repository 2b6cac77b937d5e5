package plan

import (
	"encoding/json"
	"fmt"
)

// ParseJSONPlan decodes an EXPLAIN (FORMAT JSON) document. PostgreSQL emits
// a one-element array; a bare object is accepted too.
func ParseJSONPlan(data []byte) ([]ExplainOutput, error) {
	var plans []ExplainOutput
	if err := json.Unmarshal(data, &plans); err != nil {
		var single ExplainOutput
		if objErr := json.Unmarshal(data, &single); objErr != nil {
			return nil, fmt.Errorf("invalid EXPLAIN JSON: %w", err)
		}
		plans = []ExplainOutput{single}
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("empty EXPLAIN output")
	}
	if plans[0].Plan.NodeType == "" {
		return nil, fmt.Errorf("EXPLAIN output has no plan")
	}
	return plans, nil
}
