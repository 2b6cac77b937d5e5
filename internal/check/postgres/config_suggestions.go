package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

type configSuggestionsCheck struct {
	exec          db.Executor
	totalMemoryMB func() (int64, error)
}

// memorySettings holds the inspected parameters in megabytes. WALBuffersAuto
// is set when wal_buffers is -1 and WALBuffers was derived from shared_buffers.
type memorySettings struct {
	SharedBuffers      int64
	WorkMem            int64
	MaintenanceWorkMem int64
	WALBuffers         int64
	WALBuffersAuto     bool
	MaxConnections     int64
}

func (c *configSuggestionsCheck) Blocking() bool {
	return false
}

func (c *configSuggestionsCheck) Validate(ctx context.Context, _ *check.RunContext) ([]insight.Insight, error) {
	if _, err := c.exec.Execute(ctx, "SELECT name FROM pg_settings LIMIT 1"); err != nil {
		return []insight.Insight{
			insight.Critical(insight.KindConfigAnalysisFailure, "database", "Configuration Analysis Cannot Run", err).
				With("reason", fmt.Sprintf("Cannot access configuration settings: %v", err)),
		}, nil
	}
	return nil, nil
}

func (c *configSuggestionsCheck) Generate(ctx context.Context, rc *check.RunContext) ([]insight.Insight, error) {
	ram, err := c.totalMemoryMB()
	if err != nil {
		return nil, fmt.Errorf("detecting total memory: %w", err)
	}
	rc.Set(ValueTotalMemoryMB, ram)

	rows, err := c.exec.Execute(ctx, `
		SELECT name, setting, unit
		FROM pg_settings
		WHERE name IN ('shared_buffers', 'work_mem', 'maintenance_work_mem', 'wal_buffers', 'max_connections')`)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	return suggestConfig(parseSettings(rows), ram), nil
}

// settingMB converts a pg_settings value to megabytes according to its unit.
// Values without a memory unit are returned unchanged.
func settingMB(value int64, unit string) int64 {
	switch strings.TrimSpace(unit) {
	case "8kB":
		return value * 8 / 1024
	case "kB":
		return value / 1024
	case "MB":
		return value
	case "GB":
		return value * 1024
	default:
		return value
	}
}

func parseSettings(rows []db.Row) memorySettings {
	var s memorySettings
	walRaw := int64(0)
	walUnit := ""
	for _, r := range rows {
		value := r.Int64("setting")
		unit := r.String("unit")
		switch r.String("name") {
		case "shared_buffers":
			s.SharedBuffers = settingMB(value, unit)
		case "work_mem":
			s.WorkMem = settingMB(value, unit)
		case "maintenance_work_mem":
			s.MaintenanceWorkMem = settingMB(value, unit)
		case "wal_buffers":
			walRaw, walUnit = value, unit
		case "max_connections":
			s.MaxConnections = value
		}
	}

	if walRaw == -1 {
		s.WALBuffers = min(s.SharedBuffers/32, 16)
		s.WALBuffersAuto = true
	} else {
		s.WALBuffers = settingMB(walRaw, walUnit)
	}
	return s
}

type configTarget struct {
	Parameter string
	Current   int64
	Target    int64
	Impact    insight.Impact
	Rationale string
	AutoTuned bool
}

// suggestConfig returns one insight per parameter whose current value is
// below the target derived from ramMB.
func suggestConfig(s memorySettings, ramMB int64) []insight.Insight {
	targets := []configTarget{
		{
			Parameter: "shared_buffers",
			Current:   s.SharedBuffers,
			Target:    min(ramMB*25/100, 8192),
			Impact:    insight.ImpactHigh,
			Rationale: "Recommended 25% of system RAM, capped at 8GB",
		},
	}
	if s.MaxConnections > 0 {
		targets = append(targets, configTarget{
			Parameter: "work_mem",
			Current:   s.WorkMem,
			Target:    min(ramMB/(s.MaxConnections*4), 64),
			Impact:    insight.ImpactModerate,
			Rationale: "Based on available RAM divided by max_connections * 4, capped at 64MB",
		})
	}
	targets = append(targets,
		configTarget{
			Parameter: "maintenance_work_mem",
			Current:   s.MaintenanceWorkMem,
			Target:    min(ramMB/10, 1024),
			Impact:    insight.ImpactModerate,
			Rationale: "Recommended 10% of RAM, capped at 1GB",
		},
		configTarget{
			Parameter: "wal_buffers",
			Current:   s.WALBuffers,
			Target:    16,
			Impact:    insight.ImpactModerate,
			Rationale: "Recommended 16MB for most workloads",
			AutoTuned: s.WALBuffersAuto,
		},
	)

	var insights []insight.Insight
	for _, t := range targets {
		if t.Current >= t.Target {
			continue
		}
		in := insight.New(insight.KindConfigOptimize, t.Impact, t.Parameter,
			fmt.Sprintf("Suboptimal %s Configuration", t.Parameter)).
			WithResolution(fmt.Sprintf("ALTER SYSTEM SET %s = '%dMB';", t.Parameter, t.Target)).
			With("parameter", t.Parameter).
			With("current_value", t.Current).
			With("suggested_value", t.Target).
			With("rationale", t.Rationale)
		if t.AutoTuned {
			in = in.With("auto_tuned", true)
		}
		insights = append(insights, in)
	}
	return insights
}
