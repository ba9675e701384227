// Package metrics exposes run and catalog instrumentation in Prometheus
// format. All methods are nil-safe so instrumentation stays optional.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meterwatch/meterwatch/pkg/quality"
)

// Metrics holds the instrument set for one process. Each instance owns
// its registry, so tests can build metrics without global collisions.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	partitionsQueried prometheus.Counter
	partitionsFailed  prometheus.Counter
	defectsTotal      *prometheus.CounterVec
	assetsEvaluated   prometheus.Counter
	untestableAssets  prometheus.Gauge
	flaggedAssets     prometheus.Gauge
}

// New builds and registers the instrument set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meterwatch_runs_total",
			Help: "Completed quality runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meterwatch_run_duration_seconds",
			Help:    "Wall-clock duration of quality runs.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 7200},
		}),
		partitionsQueried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meterwatch_partitions_queried_total",
			Help: "Partition queries attempted, including retries that succeeded.",
		}),
		partitionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meterwatch_partitions_failed_total",
			Help: "Partition queries that exhausted their retries.",
		}),
		defectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meterwatch_defects_total",
			Help: "Defects recorded by error-type id.",
		}, []string{"kind"}),
		assetsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meterwatch_assets_evaluated_total",
			Help: "Meter channels run through the rule battery.",
		}),
		untestableAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meterwatch_untestable_assets",
			Help: "Assets skipped in the last run for missing identity or classification.",
		}),
		flaggedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meterwatch_flagged_assets",
			Help: "Assets flagged erroneous in the last run.",
		}),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.partitionsQueried,
		m.partitionsFailed,
		m.defectsTotal,
		m.assetsEvaluated,
		m.untestableAssets,
		m.flaggedAssets,
	)
	return m
}

// Handler serves the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunCompleted records one finished run.
func (m *Metrics) RunCompleted(mode string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.runsTotal.WithLabelValues(mode, outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// PartitionQueried counts one successful partition query.
func (m *Metrics) PartitionQueried() {
	if m == nil {
		return
	}
	m.partitionsQueried.Inc()
}

// PartitionFailed counts one partition that exhausted its retries.
func (m *Metrics) PartitionFailed() {
	if m == nil {
		return
	}
	m.partitionsFailed.Inc()
}

// DefectRecorded counts one defect under its error-type id.
func (m *Metrics) DefectRecorded(kind quality.Kind) {
	if m == nil {
		return
	}
	m.defectsTotal.WithLabelValues(strconv.Itoa(int(kind))).Inc()
}

// AssetEvaluated counts one meter channel put through the rule battery.
func (m *Metrics) AssetEvaluated() {
	if m == nil {
		return
	}
	m.assetsEvaluated.Inc()
}

// SetUntestable records the untestable-asset count of the latest run.
func (m *Metrics) SetUntestable(n int) {
	if m == nil {
		return
	}
	m.untestableAssets.Set(float64(n))
}

// SetFlagged records the flagged-asset count of the latest run.
func (m *Metrics) SetFlagged(n int) {
	if m == nil {
		return
	}
	m.flaggedAssets.Set(float64(n))
}
