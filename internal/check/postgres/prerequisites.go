package postgres

import (
	"context"
	"fmt"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

type requiredRelation struct {
	column  string
	rel     string
	purpose string
}

var requiredRelations = []requiredRelation{
	{"can_read_stats", "pg_stat_activity", "query analysis"},
	{"can_read_settings", "pg_settings", "configuration analysis"},
	{"can_read_indexes", "pg_indexes", "index analysis"},
	{"can_read_statements", "pg_stat_statements", "query performance analysis"},
	{"can_read_user_indexes", "pg_stat_user_indexes", "index usage analysis"},
	{"can_read_user_tables", "pg_stat_user_tables", "table statistics analysis"},
}

// pg_stat_statements only exists once the extension is created, so its
// privilege is reported as NULL rather than raising when it is absent.
const privilegeQuery = `
	SELECT
		current_user AS username,
		has_table_privilege(current_user, 'pg_stat_activity', 'SELECT') AS can_read_stats,
		has_table_privilege(current_user, 'pg_settings', 'SELECT') AS can_read_settings,
		has_table_privilege(current_user, 'pg_indexes', 'SELECT') AS can_read_indexes,
		CASE WHEN to_regclass('pg_stat_statements') IS NULL THEN NULL
			ELSE has_table_privilege(current_user, 'pg_stat_statements', 'SELECT')
		END AS can_read_statements,
		has_table_privilege(current_user, 'pg_stat_user_indexes', 'SELECT') AS can_read_user_indexes,
		has_table_privilege(current_user, 'pg_stat_user_tables', 'SELECT') AS can_read_user_tables,
		EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_stat_statements') AS has_pg_stat_statements,
		current_setting('server_version_num')::int AS server_version_num
`

// Prerequisites checks connectivity and the grants every check relies on.
// Extension availability and the server version are recorded in rc.
func Prerequisites(ctx context.Context, exec db.Executor, rc *check.RunContext) ([]insight.Insight, error) {
	if _, err := exec.Execute(ctx, "SELECT 1"); err != nil {
		return []insight.Insight{
			insight.Critical(insight.KindConnectivityFailure, "database", "Database Unreachable", err).
				With("description", fmt.Sprintf("Failed to reach database: %v", err)),
		}, nil
	}

	rows, err := exec.Execute(ctx, privilegeQuery)
	if err == nil && len(rows) == 0 {
		err = fmt.Errorf("privilege probe returned no rows")
	}
	if err != nil {
		return []insight.Insight{
			insight.Critical(insight.KindPrerequisitesFailure, "database", "Database Prerequisites Check Failed", err).
				With("description", fmt.Sprintf("Cannot verify database prerequisites: %v", err)),
		}, nil
	}

	row := rows[0]
	rc.SetCapability(CapabilityPgStatStatements, row.Bool("has_pg_stat_statements"))
	if row.Has("server_version_num") {
		rc.Set(ValueServerVersionNum, row.Int64("server_version_num"))
	}

	user := row.String("username")
	if user == "" {
		user = "current_user"
	}

	var insights []insight.Insight
	for _, req := range requiredRelations {
		if !row.Has(req.column) || row.Bool(req.column) {
			continue
		}
		insights = append(insights,
			insight.New(insight.KindPermissionFailure, insight.ImpactCritical, "database", "Missing Permission: "+req.rel).
				WithResolution(fmt.Sprintf("GRANT SELECT ON %s TO %s;", req.rel, quoteIdent(user))).
				With("table", req.rel).
				With("permission", "SELECT").
				With("description", fmt.Sprintf("Cannot read %s. Required for %s.", req.rel, req.purpose)))
	}
	return insights, nil
}
