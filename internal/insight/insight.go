package insight

import "maps"

const (
	KindConnectivityFailure   = "connectivity-failure"
	KindPermissionFailure     = "permission-failure"
	KindPrerequisitesFailure  = "prerequisites-failure"
	KindMissingExtension      = "missing-extension"
	KindCheckValidationFailed = "check-validation-failed"
	KindCheckFailed           = "check-failed"

	KindConnectionFailed = "connection-failed"
	KindUnusedIndex      = "unused-index"
	KindRedundantIndex   = "redundant-index"
	KindSlowQuery        = "slow-query"
	KindConfigOptimize   = "config-optimization"
	KindTableBloat       = "table-bloat"
	KindStaleStatistics  = "stale-statistics"

	KindIndexAuditFailure       = "index-audit-failure"
	KindConfigAnalysisFailure   = "config-analysis-failure"
	KindSlowQueryFailure        = "slow-query-analysis-failure"
	KindTableMaintenanceFailure = "table-maintenance-failure"
)

// Insight is one advisory finding produced by a check. Values are treated as
// immutable: the With* methods return modified copies.
type Insight struct {
	Kind       string         `json:"kind"`
	Level      Level          `json:"severity_level"`
	Location   string         `json:"location"`
	Resolution *string        `json:"resolution"`
	Title      string         `json:"title"`
	Context    map[string]any `json:"context"`
}

// New builds an insight whose level is derived from impact. The impact label
// is also recorded in the context under "impact".
func New(kind string, impact Impact, location, title string) Insight {
	return Insight{
		Kind:     kind,
		Level:    LevelFromImpact(impact),
		Location: location,
		Title:    title,
		Context:  map[string]any{"impact": string(impact)},
	}
}

// Critical builds a severity-5 insight describing a failure.
func Critical(kind, location, title string, err error) Insight {
	in := New(kind, ImpactCritical, location, title).With("status", "failed")
	if err != nil {
		in = in.With("error", err.Error())
	}
	return in
}

// WithResolution returns a copy carrying an automated remediation statement.
func (i Insight) WithResolution(sql string) Insight {
	i.Resolution = &sql
	return i
}

// With returns a copy with key set in the context.
func (i Insight) With(key string, value any) Insight {
	ctx := make(map[string]any, len(i.Context)+1)
	maps.Copy(ctx, i.Context)
	ctx[key] = value
	i.Context = ctx
	return i
}

// Impact returns the impact label matching the insight's level.
func (i Insight) Impact() Impact {
	return i.Level.Impact()
}

// IsCritical reports whether the insight has the highest severity level.
func (i Insight) IsCritical() bool {
	return i.Level == LevelCritical
}

// AnyCritical reports whether any insight in the list is critical.
func AnyCritical(insights []Insight) bool {
	for _, in := range insights {
		if in.IsCritical() {
			return true
		}
	}
	return false
}

// Criticals returns the critical insights in list order.
func Criticals(insights []Insight) []Insight {
	var out []Insight
	for _, in := range insights {
		if in.IsCritical() {
			out = append(out, in)
		}
	}
	return out
}
