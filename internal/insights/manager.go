// Package insights runs the registered checks for one database connection
// and aggregates their findings.
package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

// State is the lifecycle position of a run.
type State int

const (
	StateNotStarted State = iota
	StateRunningPrerequisites
	StateRunningChecks
	StateCompleted
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunningPrerequisites:
		return "running_prerequisites"
	case StateRunningChecks:
		return "running_checks"
	case StateCompleted:
		return "completed"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := StateNotStarted; st <= StateBlocked; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", b)
}

const (
	PhasePrerequisites = "prerequisites"
	PhaseValidate      = "validate"
	PhaseGenerate      = "generate"

	OutcomeOK       = "ok"
	OutcomeCritical = "critical"
	OutcomeError    = "error"

	// BlockedByPrerequisites is the BlockedBy value of a run halted by the
	// prerequisite probe.
	BlockedByPrerequisites = "prerequisites"
)

// Observer receives run telemetry. metrics.Recorder implements it.
type Observer interface {
	ObservePhase(check, phase, outcome string, d time.Duration)
	ObserveRun(state string, insights []insight.Insight)
}

type noopObserver struct{}

func (noopObserver) ObservePhase(string, string, string, time.Duration) {}
func (noopObserver) ObserveRun(string, []insight.Insight)               {}

// Report is the result of one run. Insights is never nil.
type Report struct {
	RunID     string            `json:"run_id,omitempty"`
	Kind      string            `json:"kind"`
	State     State             `json:"state"`
	BlockedBy string            `json:"blocked_by,omitempty"`
	Insights  []insight.Insight `json:"insights"`
	Context   *check.RunContext `json:"context,omitempty"`
	Duration  time.Duration     `json:"duration_ns"`
}

// Manager executes the checks registered for a backend kind. A Manager holds
// no per-run state and may be shared by concurrent runs.
type Manager struct {
	registry *check.Registry
	log      zerolog.Logger
	observer Observer
	newID    func() string
}

type Option func(*Manager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

func NewManager(registry *check.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		log:      zerolog.Nop(),
		observer: noopObserver{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run probes prerequisites, then executes the checks registered for kind
// against exec in weight order. Failures inside checks are reported as
// insights, never returned.
func (m *Manager) Run(ctx context.Context, kind string, exec db.Executor) Report {
	kind = db.NormalizeKind(kind)
	start := time.Now()
	id := m.newID()
	r := &run{
		Manager: m,
		log:     m.log.With().Str("run_id", id).Str("kind", kind).Logger(),
		report: Report{
			RunID:    id,
			Kind:     kind,
			State:    StateNotStarted,
			Insights: []insight.Insight{},
			Context:  check.NewRunContext(),
		},
	}

	r.execute(ctx, kind, exec)

	r.report.Duration = time.Since(start)
	m.observer.ObserveRun(r.report.State.String(), r.report.Insights)
	r.log.Debug().
		Stringer("state", r.report.State).
		Int("insights", len(r.report.Insights)).
		Dur("duration", r.report.Duration).
		Msg("run finished")
	return r.report
}

type run struct {
	*Manager
	log    zerolog.Logger
	report Report
}

func (r *run) execute(ctx context.Context, kind string, exec db.Executor) {
	rc := r.report.Context

	r.report.State = StateRunningPrerequisites
	if prereq, ok := r.registry.Prerequisite(kind); ok {
		found, err := r.phase(ctx, PhasePrerequisites, PhasePrerequisites, func(ctx context.Context) ([]insight.Insight, error) {
			return prereq(ctx, exec, rc)
		})
		if err != nil {
			found = append(found, insight.Critical(insight.KindPrerequisitesFailure, "database",
				"Database Prerequisites Check Failed", err))
		}
		if criticals := insight.Criticals(found); len(criticals) > 0 {
			r.report.Insights = criticals
			r.report.State = StateBlocked
			r.report.BlockedBy = BlockedByPrerequisites
			return
		}
		r.report.Insights = append(r.report.Insights, found...)
	}

	r.report.State = StateRunningChecks
	for _, desc := range r.registry.Resolve(kind) {
		if r.runCheck(ctx, desc, exec) {
			r.report.State = StateBlocked
			r.report.BlockedBy = desc.ID
			return
		}
	}
	r.report.State = StateCompleted
}

// runCheck executes both phases of one check and reports whether the run
// must stop.
func (r *run) runCheck(ctx context.Context, desc check.Descriptor, exec db.Executor) bool {
	rc := r.report.Context

	c, err := construct(desc, exec)
	if err != nil {
		r.report.Insights = append(r.report.Insights, failure(desc.ID, PhaseValidate, err))
		return desc.Blocking
	}
	blocking := desc.Blocking || c.Blocking()

	found, err := r.phase(ctx, desc.ID, PhaseValidate, func(ctx context.Context) ([]insight.Insight, error) {
		return c.Validate(ctx, rc)
	})
	r.report.Insights = append(r.report.Insights, found...)
	if err != nil {
		r.report.Insights = append(r.report.Insights, failure(desc.ID, PhaseValidate, err))
		return blocking
	}
	if insight.AnyCritical(found) {
		if blocking {
			return true
		}
		r.log.Debug().Str("check", desc.ID).Msg("validation reported a critical insight, skipping generate")
		return false
	}

	found, err = r.phase(ctx, desc.ID, PhaseGenerate, func(ctx context.Context) ([]insight.Insight, error) {
		return c.Generate(ctx, rc)
	})
	r.report.Insights = append(r.report.Insights, found...)
	if err != nil {
		r.report.Insights = append(r.report.Insights, failure(desc.ID, PhaseGenerate, err))
		return blocking
	}
	return blocking && insight.AnyCritical(found)
}

func construct(desc check.Descriptor, exec db.Executor) (c check.Check, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	c = desc.New(exec)
	if c == nil {
		return nil, errors.New("factory returned no check")
	}
	return c, nil
}

// phase runs fn, converting a panic into an error, and records telemetry.
// Insights returned alongside an error are kept.
func (r *run) phase(ctx context.Context, checkID, phase string, fn func(context.Context) ([]insight.Insight, error)) (found []insight.Insight, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}

		d := time.Since(start)
		outcome := OutcomeOK
		switch {
		case err != nil:
			outcome = OutcomeError
		case insight.AnyCritical(found):
			outcome = OutcomeCritical
		}
		r.observer.ObservePhase(checkID, phase, outcome, d)

		ev := r.log.Debug()
		if err != nil {
			ev = r.log.Warn().Err(err)
		}
		ev.Str("check", checkID).
			Str("phase", phase).
			Str("outcome", outcome).
			Int("insights", len(found)).
			Dur("duration", d).
			Msg("phase finished")
	}()
	return fn(ctx)
}

// failure builds the synthetic insight standing in for a phase error.
func failure(checkID, phase string, err error) insight.Insight {
	kind, title := insight.KindCheckFailed, "Check Failed: "+checkID
	if phase == PhaseValidate {
		kind, title = insight.KindCheckValidationFailed, "Check Validation Failed: "+checkID
	}
	return insight.Critical(kind, checkID, title, err).
		With("check", checkID).
		With("phase", phase)
}
