// Package check defines the diagnostic check contract, the per-run context
// shared between checks, and the registry that maps backend kinds to checks.
package check

import (
	"context"

	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

// Check is one unit of diagnostic logic.
//
// Validate reports whether the check can run at all (missing grants,
// extensions). A critical insight from Validate skips Generate. Generate
// reports what the check finds. A returned error from either phase is turned
// into a synthetic critical insight by the caller.
type Check interface {
	Validate(ctx context.Context, rc *RunContext) ([]insight.Insight, error)
	Generate(ctx context.Context, rc *RunContext) ([]insight.Insight, error)
	// Blocking checks halt the run after emitting a critical insight.
	Blocking() bool
}

// Factory builds a check bound to one run's database session.
type Factory func(exec db.Executor) Check

// Descriptor identifies a registered check.
type Descriptor struct {
	ID          string  `json:"id"`
	Weight      int     `json:"weight"`
	Blocking    bool    `json:"blocking"`
	Description string  `json:"description"`
	New         Factory `json:"-"`
}

// Prerequisite probes connectivity and baseline capabilities before any
// check of a run is resolved. A critical insight from it ends the run.
type Prerequisite func(ctx context.Context, exec db.Executor, rc *RunContext) ([]insight.Insight, error)
