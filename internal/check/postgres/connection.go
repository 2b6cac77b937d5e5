package postgres

import (
	"context"
	"fmt"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

type connectionCheck struct {
	exec db.Executor
}

func (c *connectionCheck) Blocking() bool {
	return true
}

func (c *connectionCheck) Validate(ctx context.Context, _ *check.RunContext) ([]insight.Insight, error) {
	if _, err := c.exec.Execute(ctx, "SELECT 1"); err != nil {
		return []insight.Insight{
			insight.Critical(insight.KindConnectionFailed, "database", "Database Connection Failed", err).
				With("description", fmt.Sprintf("Failed to connect to database: %v", err)),
		}, nil
	}
	return nil, nil
}

// Generate records the server version for later checks. It emits no insights.
func (c *connectionCheck) Generate(ctx context.Context, rc *check.RunContext) ([]insight.Insight, error) {
	rows, err := c.exec.Execute(ctx, `SELECT current_setting('server_version_num')::int AS server_version_num, version() AS version`)
	if err != nil {
		return nil, fmt.Errorf("reading server version: %w", err)
	}
	if len(rows) > 0 {
		rc.Set(ValueServerVersionNum, rows[0].Int64("server_version_num"))
		rc.Set(ValueServerVersion, rows[0].String("version"))
	}
	return nil, nil
}
