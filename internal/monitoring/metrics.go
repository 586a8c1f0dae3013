package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard_loss"

// Metrics holds the Prometheus collectors for recompute runs, the hazard
// catalog and the event consumer.
type Metrics struct {
	Recomputes        *prometheus.CounterVec   // labels: mode={all,asset,retract}, outcome={success,error}
	RecomputeDuration *prometheus.HistogramVec // labels: mode
	AssetsProcessed   prometheus.Counter
	AssetsSkipped     prometheus.Counter
	HazardsSkipped    *prometheus.CounterVec // labels: hazard
	CatalogSamples    *prometheus.GaugeVec   // labels: hazard
	EventsConsumed    *prometheus.CounterVec // labels: op, outcome
	StoreUp           prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recomputes_total",
			Help:      "Recompute operations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RecomputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recompute_duration_seconds",
			Help:      "Duration of recompute operations.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"mode"}),
		AssetsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_processed_total",
			Help:      "Assets whose direct losses were computed.",
		}),
		AssetsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_skipped_total",
			Help:      "Assets left out of a batch because their class could not be decoded.",
		}),
		HazardsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazards_skipped_total",
			Help:      "Catalog builds that found no curves for a hazard.",
		}, []string{"hazard"}),
		CatalogSamples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_samples",
			Help:      "Hazard samples in the current catalog.",
		}, []string{"hazard"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Asset change events by operation and outcome.",
		}, []string{"op", "outcome"}),
		StoreUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_up",
			Help:      "1 when the last store ping succeeded.",
		}),
	}

	prometheus.MustRegister(
		m.Recomputes,
		m.RecomputeDuration,
		m.AssetsProcessed,
		m.AssetsSkipped,
		m.HazardsSkipped,
		m.CatalogSamples,
		m.EventsConsumed,
		m.StoreUp,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they need.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Recomputes:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "recomputes_total"}, []string{"mode", "outcome"}),
		RecomputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "recompute_duration_seconds"}, []string{"mode"}),
		AssetsProcessed:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "assets_processed_total"}),
		AssetsSkipped:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "assets_skipped_total"}),
		HazardsSkipped:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "hazards_skipped_total"}, []string{"hazard"}),
		CatalogSamples:    prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "catalog_samples"}, []string{"hazard"}),
		EventsConsumed:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_consumed_total"}, []string{"op", "outcome"}),
		StoreUp:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "store_up"}),
	}
}
