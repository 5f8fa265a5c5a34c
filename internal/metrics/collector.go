package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/store"
)

// RunLister is the part of the store the run collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// RunCollector reports the recorded runs by status on every scrape.
type RunCollector struct {
	runs    RunLister
	timeout time.Duration
	limit   int

	byStatus    *prometheus.Desc
	restartable *prometheus.Desc
	matrixCalls *prometheus.Desc
}

// NewRunCollector returns a collector over the most recent limit runs.
func NewRunCollector(runs RunLister, limit int) *RunCollector {
	return &RunCollector{
		runs:    runs,
		timeout: 5 * time.Second,
		limit:   limit,
		byStatus: prometheus.NewDesc(namespace+"_recorded_runs",
			"Recorded runs by status.", []string{"status"}, nil),
		restartable: prometheus.NewDesc(namespace+"_restartable_runs",
			"Failed runs whose failure looks transient.", nil, nil),
		matrixCalls: prometheus.NewDesc(namespace+"_recorded_matrix_calls",
			"Matrix service calls made by recorded runs.", nil, nil),
	}
}

func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.byStatus
	ch <- c.restartable
	ch <- c.matrixCalls
}

func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: c.limit})
	if err != nil {
		zap.L().Warn("metrics: list runs", zap.Error(err))
		ch <- prometheus.NewInvalidMetric(c.byStatus, err)
		return
	}

	counts := map[model.RunStatus]int{
		model.RunStatusComplete: 0,
		model.RunStatusFailed:   0,
	}
	var restartable, calls int
	for _, r := range runs {
		counts[r.Status]++
		if r.Result == nil {
			continue
		}
		calls += r.Result.MatrixCalls
		if r.Status == model.RunStatusFailed && r.Result.Restartable {
			restartable++
		}
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.byStatus, prometheus.GaugeValue, float64(n), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.restartable, prometheus.GaugeValue, float64(restartable))
	ch <- prometheus.MustNewConstMetric(c.matrixCalls, prometheus.GaugeValue, float64(calls))
}

// Register adds c to m's registry.
func (m *Metrics) Register(c prometheus.Collector) error {
	return m.reg.Register(c)
}
