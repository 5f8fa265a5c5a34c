// Package metrics exposes pipeline counters to prometheus, either scraped
// from the results server or written to a node-exporter textfile after a
// run.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/quota"
)

const namespace = "odflow"

// Metrics holds the pipeline instruments.
type Metrics struct {
	reg *prometheus.Registry

	MatrixCalls   *prometheus.CounterVec
	MatrixLatency *prometheus.HistogramVec
	QuotaPauses   prometheus.Counter
	QuotaPaused   prometheus.Counter
	PhaseDuration *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
}

// New registers the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		MatrixCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matrix_calls_total",
			Help:      "Matrix service calls by profile and outcome.",
		}, []string{"profile", "outcome"}),
		MatrixLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matrix_call_seconds",
			Help:      "Latency of matrix service calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"profile"}),
		QuotaPauses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_pauses_total",
			Help:      "Cool-down pauses taken to respect the matrix quota.",
		}),
		QuotaPaused: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_paused_seconds_total",
			Help:      "Time spent in quota cool-downs.",
		}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_seconds",
			Help:      "Duration of pipeline phases.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 10),
		}, []string{"phase", "status"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by final status.",
		}, []string{"status"}),
	}
}

// Registry returns the registry holding the instruments.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveMatrixCall records one matrix service call.
func (m *Metrics) ObserveMatrixCall(profile model.Profile, elapsed time.Duration, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, model.ErrQuotaExceeded):
		outcome = "quota"
	default:
		outcome = "error"
	}
	m.MatrixCalls.WithLabelValues(string(profile), outcome).Inc()
	m.MatrixLatency.WithLabelValues(string(profile)).Observe(elapsed.Seconds())
}

// ObservePause records a quota cool-down.
func (m *Metrics) ObservePause(d time.Duration) {
	m.QuotaPauses.Inc()
	m.QuotaPaused.Add(d.Seconds())
}

// ObservePhase records a finished phase.
func (m *Metrics) ObservePhase(name string, d time.Duration, status model.PhaseStatus) {
	m.PhaseDuration.WithLabelValues(name, string(status)).Observe(d.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status model.RunStatus) {
	m.Runs.WithLabelValues(string(status)).Inc()
}

// PauseHook adapts ObservePause to the scheduler option.
func (m *Metrics) PauseHook() quota.Option {
	return quota.WithPauseHook(m.ObservePause)
}

// WriteTextfile writes every gathered metric in text exposition format for
// the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return eris.Wrapf(prometheus.WriteToTextfile(path, m.reg), "metrics: write textfile %s", path)
}
