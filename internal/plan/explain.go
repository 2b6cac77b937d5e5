package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jacobarthurs/pginsights/internal/db"
)

var ErrExplainPrefix = errors.New("input should not include EXPLAIN prefix - provide the raw query only")

// Explain asks the database for the estimated plan of sql. The statement is
// planned, never executed.
func Explain(ctx context.Context, e db.Explainer, sql string) (ExplainOutput, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return ExplainOutput{}, fmt.Errorf("empty query")
	}
	if strings.HasPrefix(strings.ToUpper(trimmed), "EXPLAIN") {
		return ExplainOutput{}, ErrExplainPrefix
	}

	data, err := e.ExplainJSON(ctx, trimmed)
	if err != nil {
		return ExplainOutput{}, fmt.Errorf("explaining query: %w", err)
	}
	plans, err := ParseJSONPlan(data)
	if err != nil {
		return ExplainOutput{}, err
	}
	return plans[0], nil
}
