package listener

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"itemstep/pkg/batch/core"
)

const metricsNamespace = "itemstep"

// MetricsListener はステップの実行結果を Prometheus のメトリクスとして記録します。
// メトリクスは専用の Registry に登録され、Gatherer から取得できます。
type MetricsListener struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	items    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  *prometheus.GaugeVec
}

// NewMetricsListener は新しい MetricsListener のインスタンスを作成します。
func NewMetricsListener() *MetricsListener {
	reg := prometheus.NewRegistry()
	m := &MetricsListener{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "step_runs_total",
			Help:      "Total number of step runs by final status",
		}, []string{"step", "status"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "step_items_total",
			Help:      "Items seen by a step, by outcome",
		}, []string{"step", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of step runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "step_running",
			Help:      "Whether a step is currently running",
		}, []string{"step"}),
	}
	reg.MustRegister(m.runs, m.items, m.duration, m.running)
	return m
}

// Registry はメトリクスを登録している Registry を返します。
func (m *MetricsListener) Registry() *prometheus.Registry {
	return m.registry
}

// WriteToTextfile は現在のメトリクスを Prometheus のテキスト形式でファイルに書き出します。
func (m *MetricsListener) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *MetricsListener) BeforeStep(ctx context.Context, se *core.StepExecution) {
	m.running.WithLabelValues(se.StepName).Set(1)
}

func (m *MetricsListener) AfterStep(ctx context.Context, se *core.StepExecution) {
	m.running.WithLabelValues(se.StepName).Set(0)
	m.runs.WithLabelValues(se.StepName, string(se.Status)).Inc()
	m.duration.WithLabelValues(se.StepName).Observe(se.Duration().Seconds())

	m.items.WithLabelValues(se.StepName, "read").Add(float64(se.ReadCount))
	m.items.WithLabelValues(se.StepName, "blank").Add(float64(se.BlankCount))
	m.items.WithLabelValues(se.StepName, "skipped").Add(float64(se.SkipReadCount))
	m.items.WithLabelValues(se.StepName, "filtered").Add(float64(se.FilterCount))
	m.items.WithLabelValues(se.StepName, "written").Add(float64(se.WriteCount))
}

var _ core.StepExecutionListener = (*MetricsListener)(nil)
