package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/db/dbtest"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

type phaseFunc func(ctx context.Context, rc *check.RunContext) ([]insight.Insight, error)

type scriptedCheck struct {
	validate phaseFunc
	generate phaseFunc
	blocking bool
	calls    *[]string
	id       string
}

func (c *scriptedCheck) Validate(ctx context.Context, rc *check.RunContext) ([]insight.Insight, error) {
	*c.calls = append(*c.calls, c.id+":validate")
	if c.validate == nil {
		return nil, nil
	}
	return c.validate(ctx, rc)
}

func (c *scriptedCheck) Generate(ctx context.Context, rc *check.RunContext) ([]insight.Insight, error) {
	*c.calls = append(*c.calls, c.id+":generate")
	if c.generate == nil {
		return nil, nil
	}
	return c.generate(ctx, rc)
}

func (c *scriptedCheck) Blocking() bool { return c.blocking }

type harness struct {
	registry *check.Registry
	calls    []string
}

func newHarness() *harness {
	return &harness{registry: check.NewRegistry()}
}

func (h *harness) add(id string, weight int, c scriptedCheck) {
	c.id = id
	c.calls = &h.calls
	h.registry.Register(db.KindPostgreSQL, check.Descriptor{
		ID:     id,
		Weight: weight,
		New: func(db.Executor) check.Check {
			cc := c
			return &cc
		},
	})
}

func returns(ins ...insight.Insight) phaseFunc {
	return func(context.Context, *check.RunContext) ([]insight.Insight, error) { return ins, nil }
}

func critical(kind string) insight.Insight {
	return insight.New(kind, insight.ImpactCritical, "database", kind)
}

func finding(kind string) insight.Insight {
	return insight.New(kind, insight.ImpactLow, "public.t", kind)
}

func kinds(ins []insight.Insight) []string {
	out := make([]string, len(ins))
	for i, in := range ins {
		out[i] = in.Kind
	}
	return out
}

func (h *harness) run(t *testing.T, opts ...Option) Report {
	t.Helper()
	m := NewManager(h.registry, opts...)
	return m.Run(context.Background(), "postgres", dbtest.New())
}

func TestRun_OrderAndContext(t *testing.T) {
	h := newHarness()
	h.add("late", 20, scriptedCheck{generate: func(_ context.Context, rc *check.RunContext) ([]insight.Insight, error) {
		v, _ := rc.Get("version")
		return []insight.Insight{finding("saw-" + v.(string))}, nil
	}})
	h.add("early", 10, scriptedCheck{generate: func(_ context.Context, rc *check.RunContext) ([]insight.Insight, error) {
		rc.Set("version", "16")
		return nil, nil
	}})

	report := h.run(t)

	assert.Equal(t, StateCompleted, report.State)
	assert.Equal(t, []string{"early:validate", "early:generate", "late:validate", "late:generate"}, h.calls)
	assert.Equal(t, []string{"saw-16"}, kinds(report.Insights))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, db.KindPostgreSQL, report.Kind)
}

func TestRun_PrerequisiteCriticalShortCircuits(t *testing.T) {
	h := newHarness()
	h.registry.RegisterPrerequisite(db.KindPostgreSQL, func(context.Context, db.Executor, *check.RunContext) ([]insight.Insight, error) {
		return []insight.Insight{finding("note"), critical(insight.KindPermissionFailure)}, nil
	})
	h.add("a", 0, scriptedCheck{})

	report := h.run(t)

	assert.Equal(t, StateBlocked, report.State)
	assert.Equal(t, BlockedByPrerequisites, report.BlockedBy)
	assert.Equal(t, []string{insight.KindPermissionFailure}, kinds(report.Insights))
	assert.Empty(t, h.calls)
}

func TestRun_PrerequisiteErrorBlocks(t *testing.T) {
	h := newHarness()
	h.registry.RegisterPrerequisite(db.KindPostgreSQL, func(context.Context, db.Executor, *check.RunContext) ([]insight.Insight, error) {
		return nil, errors.New("probe exploded")
	})
	h.add("a", 0, scriptedCheck{})

	report := h.run(t)

	assert.Equal(t, StateBlocked, report.State)
	require.Len(t, report.Insights, 1)
	assert.Equal(t, insight.KindPrerequisitesFailure, report.Insights[0].Kind)
	assert.Empty(t, h.calls)
}

func TestRun_PrerequisiteNonCriticalKept(t *testing.T) {
	h := newHarness()
	h.registry.RegisterPrerequisite(db.KindPostgreSQL, func(context.Context, db.Executor, *check.RunContext) ([]insight.Insight, error) {
		return []insight.Insight{finding("note")}, nil
	})
	h.add("a", 0, scriptedCheck{generate: returns(finding("found"))})

	report := h.run(t)

	assert.Equal(t, StateCompleted, report.State)
	assert.Equal(t, []string{"note", "found"}, kinds(report.Insights))
}

func TestRun_BlockingValidateCriticalStopsRun(t *testing.T) {
	h := newHarness()
	h.add("conn", 0, scriptedCheck{blocking: true, validate: returns(critical(insight.KindConnectionFailed))})
	h.add("later", 10, scriptedCheck{generate: returns(finding("never"))})

	report := h.run(t)

	assert.Equal(t, StateBlocked, report.State)
	assert.Equal(t, "conn", report.BlockedBy)
	assert.Equal(t, []string{insight.KindConnectionFailed}, kinds(report.Insights))
	assert.Equal(t, []string{"conn:validate"}, h.calls)
}

func TestRun_DescriptorBlockingFlag(t *testing.T) {
	h := newHarness()
	h.registry.Register(db.KindPostgreSQL, check.Descriptor{
		ID:       "a",
		Blocking: true,
		New: func(db.Executor) check.Check {
			return &scriptedCheck{id: "a", calls: &h.calls, validate: returns(critical("boom"))}
		},
	})
	h.add("b", 10, scriptedCheck{})

	report := h.run(t)

	assert.Equal(t, StateBlocked, report.State)
	assert.Equal(t, []string{"a:validate"}, h.calls)
}

func TestRun_NonBlockingValidateCriticalSkipsGenerate(t *testing.T) {
	h := newHarness()
	h.add("slow", 0, scriptedCheck{
		validate: returns(critical(insight.KindMissingExtension), finding("hint")),
		generate: returns(finding("never")),
	})
	h.add("next", 10, scriptedCheck{generate: returns(finding("found"))})

	report := h.run(t)

	assert.Equal(t, StateCompleted, report.State)
	assert.Equal(t, []string{insight.KindMissingExtension, "hint", "found"}, kinds(report.Insights))
	assert.Equal(t, []string{"slow:validate", "next:validate", "next:generate"}, h.calls)
}

func TestRun_GenerateErrorBecomesInsight(t *testing.T) {
	h := newHarness()
	h.add("a", 0, scriptedCheck{generate: func(context.Context, *check.RunContext) ([]insight.Insight, error) {
		return []insight.Insight{finding("partial")}, errors.New("query timeout")
	}})
	h.add("b", 10, scriptedCheck{generate: returns(finding("found"))})

	report := h.run(t)

	assert.Equal(t, StateCompleted, report.State)
	require.Equal(t, []string{"partial", insight.KindCheckFailed, "found"}, kinds(report.Insights))
	failed := report.Insights[1]
	assert.Equal(t, insight.LevelCritical, failed.Level)
	assert.Equal(t, "query timeout", failed.Context["error"])
	assert.Equal(t, "a", failed.Context["check"])
	assert.Equal(t, PhaseGenerate, failed.Context["phase"])
}

func TestRun_ValidateErrorBecomesInsight(t *testing.T) {
	h := newHarness()
	h.add("a", 0, scriptedCheck{validate: func(context.Context, *check.RunContext) ([]insight.Insight, error) {
		return nil, errors.New("denied")
	}})
	h.add("b", 10, scriptedCheck{})

	report := h.run(t)

	assert.Equal(t, StateCompleted, report.State)
	assert.Equal(t, []string{insight.KindCheckValidationFailed}, kinds(report.Insights))
	assert.Equal(t, []string{"a:validate", "b:validate", "b:generate"}, h.calls)
}

func TestRun_PanicsAreRecovered(t *testing.T) {
	h := newHarness()
	h.add("validate-panic", 0, scriptedCheck{validate: func(context.Context, *check.RunContext) ([]insight.Insight, error) {
		panic("nil map")
	}})
	h.add("generate-panic", 10, scriptedCheck{generate: func(context.Context, *check.RunContext) ([]insight.Insight, error) {
		var m map[string]int
		m["x"]++
		return nil, nil
	}})
	h.add("last", 20, scriptedCheck{generate: returns(finding("found"))})

	report := h.run(t)

	assert.Equal(t, StateCompleted, report.State)
	require.Equal(t, []string{insight.KindCheckValidationFailed, insight.KindCheckFailed, "found"}, kinds(report.Insights))
	assert.Contains(t, report.Insights[0].Context["error"], "panic: nil map")
}

func TestRun_BlockingGenerateFailureStopsRun(t *testing.T) {
	h := newHarness()
	h.add("a", 0, scriptedCheck{blocking: true, generate: func(context.Context, *check.RunContext) ([]insight.Insight, error) {
		panic("broken")
	}})
	h.add("b", 10, scriptedCheck{})

	report := h.run(t)

	assert.Equal(t, StateBlocked, report.State)
	assert.Equal(t, "a", report.BlockedBy)
	assert.Equal(t, []string{insight.KindCheckFailed}, kinds(report.Insights))
	assert.Equal(t, []string{"a:validate", "a:generate"}, h.calls)
}

func TestRun_FactoryPanic(t *testing.T) {
	h := newHarness()
	h.registry.Register(db.KindPostgreSQL, check.Descriptor{
		ID:  "broken",
		New: func(db.Executor) check.Check { panic("bad wiring") },
	})
	h.add("b", 10, scriptedCheck{})

	report := h.run(t)

	assert.Equal(t, StateCompleted, report.State)
	assert.Equal(t, []string{insight.KindCheckValidationFailed}, kinds(report.Insights))
}

func TestRun_UnknownKindCompletesEmpty(t *testing.T) {
	m := NewManager(check.NewRegistry())

	report := m.Run(context.Background(), "oracle", dbtest.New())

	assert.Equal(t, StateCompleted, report.State)
	require.NotNil(t, report.Insights)
	assert.Empty(t, report.Insights)
}

type recordingObserver struct {
	mu     sync.Mutex
	phases []string
	runs   []string
}

func (o *recordingObserver) ObservePhase(check, phase, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, check+"/"+phase+"/"+outcome)
}

func (o *recordingObserver) ObserveRun(state string, _ []insight.Insight) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, state)
}

func TestRun_ObserverAndLogging(t *testing.T) {
	h := newHarness()
	h.add("a", 0, scriptedCheck{generate: func(context.Context, *check.RunContext) ([]insight.Insight, error) {
		return nil, errors.New("boom")
	}})
	obs := &recordingObserver{}
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	report := h.run(t, WithObserver(obs), WithLogger(log))

	assert.Equal(t, []string{"a/validate/ok", "a/generate/error"}, obs.phases)
	assert.Equal(t, []string{"completed"}, obs.runs)
	assert.Contains(t, buf.String(), `"run_id":"`+report.RunID+`"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestReport_JSON(t *testing.T) {
	h := newHarness()
	h.add("a", 0, scriptedCheck{})
	report := h.run(t)

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "completed", decoded["state"])
	assert.Equal(t, []any{}, decoded["insights"])
	assert.Contains(t, decoded, "context")
}

func TestState_TextRoundTrip(t *testing.T) {
	for st := StateNotStarted; st <= StateBlocked; st++ {
		text, err := st.MarshalText()
		require.NoError(t, err)
		var got State
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, st, got)
	}
	var s State
	assert.Error(t, s.UnmarshalText([]byte("paused")))
}
