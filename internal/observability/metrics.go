package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wx_verify"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// verification pipeline.
type Metrics struct {
	SchedulerRunning prometheus.Gauge
	StationRuns      *prometheus.CounterVec // labels: mode={latest,historical}, outcome={success,error}
	RunDuration      prometheus.Histogram

	ObservationsProduced prometheus.Counter
	DailiesProduced      prometheus.Counter

	WindDecisions  *prometheus.CounterVec // labels: outcome={kept,replaced}
	BulletinWrites *prometheus.CounterVec // labels: outcome={written,replaced,kept,skipped}

	// Upstream HTTP metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: service, outcome={success,error,rejected}
	UpstreamDuration *prometheus.HistogramVec // labels: service
	CatalogCache     *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SchedulerRunning,
		m.StationRuns,
		m.RunDuration,
		m.ObservationsProduced,
		m.DailiesProduced,
		m.WindDecisions,
		m.BulletinWrites,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CatalogCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the scheduler is active, 0 when shut down.",
		}),
		StationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_runs_total",
			Help:      "Station verification runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete run across all stations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ObservationsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_produced_total",
			Help:      "Hourly observations written to the sink.",
		}),
		DailiesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dailies_produced_total",
			Help:      "Daily verification records written to the sink.",
		}),
		WindDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wind_decisions_total",
			Help:      "Daily wind reconciliation outcomes.",
		}, []string{"outcome"}),
		BulletinWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulletin_writes_total",
			Help:      "Bulletin cache outcomes per fetched version.",
		}, []string{"outcome"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP requests by service and outcome.",
		}, []string{"service", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
		CatalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Sensor catalog cache lookups by result.",
		}, []string{"result"}),
	}
}
