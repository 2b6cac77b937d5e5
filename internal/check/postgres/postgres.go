// Package postgres implements the PostgreSQL diagnostic checks.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/sysinfo"
)

const (
	CapabilityPgStatStatements = "pg_stat_statements"

	ValueServerVersionNum = "server_version_num"
	ValueServerVersion    = "server_version"
	ValueTotalMemoryMB    = "total_memory_mb"
)

const (
	IDConnection        = "connection"
	IDIndexAudit        = "index-audit"
	IDConfigSuggestions = "config-suggestions"
	IDSlowQueries       = "slow-queries"
	IDTableMaintenance  = "table-maintenance"
)

// Options tune the checks registered by Register.
type Options struct {
	// TotalMemoryMB is the RAM of the database host. Zero means use the
	// memory of the machine running the checks.
	TotalMemoryMB int64
	Now           func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) totalMemoryMB() (int64, error) {
	if o.TotalMemoryMB > 0 {
		return o.TotalMemoryMB, nil
	}
	return sysinfo.TotalMemoryMB()
}

// Register installs the PostgreSQL prerequisite probe and every PostgreSQL
// check into r. It is called once at process startup.
func Register(r *check.Registry, opts Options) {
	r.RegisterPrerequisite(db.KindPostgreSQL, Prerequisites)

	r.Register(db.KindPostgreSQL, check.Descriptor{
		ID:          IDConnection,
		Weight:      0,
		Blocking:    true,
		Description: "Verifies the database answers a liveness probe",
		New:         func(exec db.Executor) check.Check { return &connectionCheck{exec: exec} },
	})
	r.Register(db.KindPostgreSQL, check.Descriptor{
		ID:          IDIndexAudit,
		Weight:      10,
		Description: "Finds unused and redundant indexes",
		New: func(exec db.Executor) check.Check {
			return &indexAuditCheck{exec: exec, now: opts.now}
		},
	})
	r.Register(db.KindPostgreSQL, check.Descriptor{
		ID:          IDConfigSuggestions,
		Weight:      20,
		Description: "Compares memory settings with targets derived from host RAM",
		New: func(exec db.Executor) check.Check {
			return &configSuggestionsCheck{exec: exec, totalMemoryMB: opts.totalMemoryMB}
		},
	})
	r.Register(db.KindPostgreSQL, check.Descriptor{
		ID:          IDSlowQueries,
		Weight:      30,
		Description: "Reports the slowest statements recorded by pg_stat_statements",
		New:         func(exec db.Executor) check.Check { return &slowQueriesCheck{exec: exec} },
	})
	r.Register(db.KindPostgreSQL, check.Descriptor{
		ID:          IDTableMaintenance,
		Weight:      40,
		Description: "Flags tables with dead tuple build-up or stale planner statistics",
		New: func(exec db.Executor) check.Check {
			return &tableMaintenanceCheck{exec: exec, now: opts.now}
		},
	})
}

// serverVersionNum returns the numeric server version, reading it from rc
// when an earlier check already stored it.
func serverVersionNum(ctx context.Context, exec db.Executor, rc *check.RunContext) (int64, error) {
	if v, ok := rc.Int64(ValueServerVersionNum); ok {
		return v, nil
	}
	rows, err := exec.Execute(ctx, `SELECT current_setting('server_version_num')::int AS server_version_num`)
	if err != nil {
		return 0, fmt.Errorf("reading server version: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("reading server version: no rows")
	}
	v := rows[0].Int64("server_version_num")
	rc.Set(ValueServerVersionNum, v)
	return v, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func qualified(schema, name string) string {
	return quoteIdent(schema) + "." + quoteIdent(name)
}
