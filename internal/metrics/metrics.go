// Package metrics records orchestration runs as Prometheus metrics.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacobarthurs/pginsights/internal/insight"
)

const namespace = "pginsights"

// Recorder owns a private Prometheus registry with the run and check
// metrics. It is safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	insightsTotal *prometheus.CounterVec
	phaseTotal    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestration runs by final state",
		},
		[]string{"state"},
	)
	r.insightsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insights_total",
			Help:      "Insights produced by kind and severity level",
		},
		[]string{"kind", "severity"},
	)
	r.phaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_phase_total",
			Help:      "Check phase executions by outcome",
		},
		[]string{"check", "phase", "outcome"},
	)
	r.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_phase_duration_seconds",
			Help:      "Check phase duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"check", "phase"},
	)
	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Insight cache lookups by result",
		},
		[]string{"result"},
	)

	r.registry.MustRegister(r.runsTotal, r.insightsTotal, r.phaseTotal, r.phaseDuration, r.cacheLookups)
	return r
}

// Registry returns the underlying Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObservePhase(check, phase, outcome string, d time.Duration) {
	r.phaseTotal.WithLabelValues(check, phase, outcome).Inc()
	r.phaseDuration.WithLabelValues(check, phase).Observe(d.Seconds())
}

func (r *Recorder) ObserveRun(state string, insights []insight.Insight) {
	r.runsTotal.WithLabelValues(state).Inc()
	for _, in := range insights {
		r.insightsTotal.WithLabelValues(in.Kind, strconv.Itoa(int(in.Level))).Inc()
	}
}

func (r *Recorder) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// WriteTextfile writes every metric to path in the text exposition format
// read by the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
