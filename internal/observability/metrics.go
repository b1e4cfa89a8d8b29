package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus counters, histograms, and gauges for one
// forecasting cycle. Because a cycle is a batch job rather than a resident
// service, values are pushed to a Pushgateway at cycle end when configured.
type Metrics struct {
	FilesPurged       *prometheus.CounterVec // labels: reason={stale,expired_forecast,duplicate,store_retention}
	ForecastsMigrated prometheus.Counter
	FilesDownloaded   prometheus.Counter
	GapsFilled        *prometheus.CounterVec // labels: source={remote,store}
	GapsUnresolved    prometheus.Counter
	PersistenceCopies prometheus.Counter
	FileOpFailures    prometheus.Counter

	StartClass    *prometheus.GaugeVec // labels: class={cold,warm,degraded}
	AlertsSent    prometheus.Counter
	AlertFailures prometheus.Counter

	StageDuration *prometheus.HistogramVec // labels: stage
	RunDuration   prometheus.Histogram
	RunFailures   prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers all cycle metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.gatherer = prometheus.DefaultGatherer
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics backed by a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	m.gatherer = reg
	return m
}

// Push sends the current metric values to a Pushgateway. A failed push is the
// caller's to log; it never fails the cycle.
func (m *Metrics) Push(url, job string) error {
	return push.New(url, job).Gatherer(m.gatherer).Push()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "files_purged_total",
			Help:      "Precipitation files deleted during reconciliation, by reason.",
		}, []string{"reason"}),
		ForecastsMigrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "forecasts_migrated_total",
			Help:      "Expired forecast files moved into the durable store.",
		}),
		FilesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "files_downloaded_total",
			Help:      "Precipitation files fetched from the remote archive.",
		}),
		GapsFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "gaps_filled_total",
			Help:      "Missing timesteps filled, by source tier.",
		}, []string{"source"}),
		GapsUnresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "gaps_unresolved_total",
			Help:      "Timesteps no tier could fill.",
		}),
		PersistenceCopies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "persistence_copies_total",
			Help:      "Timesteps filled by duplicating the latest observation.",
		}),
		FileOpFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "file_op_failures_total",
			Help:      "Single-file operations skipped after an IO error.",
		}),
		StartClass: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flash_cycle",
			Name:      "start_class",
			Help:      "1 for the start class chosen this cycle, 0 for the others.",
		}, []string{"class"}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "alerts_sent_total",
			Help:      "Operator alert messages delivered.",
		}),
		AlertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "alert_failures_total",
			Help:      "Operator alert deliveries that failed.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flash_cycle",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each cycle stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flash_cycle",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the simulation engine subprocess.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
		RunFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flash_cycle",
			Name:      "run_failures_total",
			Help:      "Simulation engine invocations that exited non-zero.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesPurged,
		m.ForecastsMigrated,
		m.FilesDownloaded,
		m.GapsFilled,
		m.GapsUnresolved,
		m.PersistenceCopies,
		m.FileOpFailures,
		m.StartClass,
		m.AlertsSent,
		m.AlertFailures,
		m.StageDuration,
		m.RunDuration,
		m.RunFailures,
	}
}

// SetStartClass records the chosen start class, zeroing the others so the
// gauge reads cleanly after a push.
func (m *Metrics) SetStartClass(class string) {
	for _, c := range []string{"cold", "warm", "degraded"} {
		v := 0.0
		if c == class {
			v = 1.0
		}
		m.StartClass.WithLabelValues(c).Set(v)
	}
}
