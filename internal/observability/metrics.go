// Package observability exports analytics counters and venue gauges to Prometheus.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/venuewatch/internal/models"
	"github.com/rewired-gh/venuewatch/internal/monitor"
)

var _ monitor.Recorder = (*Metrics)(nil)

// Metrics implements monitor.Recorder on top of a private Prometheus registry.
// Prometheus collectors are safe for concurrent use, so one Metrics value can be
// shared by every shard.
type Metrics struct {
	registry *prometheus.Registry

	eventsProcessed *prometheus.CounterVec
	eventsRejected  *prometheus.CounterVec
	ordersFlagged   *prometheus.CounterVec
	symbolsFlagged  *prometheus.CounterVec

	openOrders     *prometheus.GaugeVec
	lifetimeMean   *prometheus.GaugeVec
	lifetimeStdDev *prometheus.GaugeVec
	patterns       prometheus.Gauge

	runDuration prometheus.Histogram
}

// NewMetrics creates and registers all collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Events accepted by the analytics engine.",
		}, []string{"venue", "message_type"}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Events rejected by the analytics engine.",
		}, []string{"venue", "reason"}),
		ordersFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_flagged_total",
			Help:      "Orders flagged as long-lived outliers.",
		}, []string{"venue"}),
		symbolsFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_flagged_total",
			Help:      "Symbols flagged as novel.",
		}, []string{"venue"}),
		openOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Orders still open at the end of the last run.",
		}, []string{"venue"}),
		lifetimeMean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "order_lifetime_mean_seconds",
			Help:      "Running mean of closed order lifetimes.",
		}, []string{"venue"}),
		lifetimeStdDev: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "order_lifetime_stddev_seconds",
			Help:      "Sample standard deviation of closed order lifetimes.",
		}, []string{"venue"}),
		patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_patterns",
			Help:      "Distinct lifecycle shapes mined in the last run.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete analysis run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.eventsProcessed,
		m.eventsRejected,
		m.ordersFlagged,
		m.symbolsFlagged,
		m.openOrders,
		m.lifetimeMean,
		m.lifetimeStdDev,
		m.patterns,
		m.runDuration,
	)
	return m
}

func (m *Metrics) EventProcessed(venue string, mt models.MessageType) {
	m.eventsProcessed.WithLabelValues(venue, string(mt)).Inc()
}

func (m *Metrics) EventRejected(venue, reason string) {
	m.eventsRejected.WithLabelValues(venue, reason).Inc()
}

func (m *Metrics) OrdersFlagged(venue string, n int) {
	m.ordersFlagged.WithLabelValues(venue).Add(float64(n))
}

func (m *Metrics) SymbolFlagged(venue string) {
	m.symbolsFlagged.WithLabelValues(venue).Inc()
}

// ObserveReport publishes the end-of-run gauges.
func (m *Metrics) ObserveReport(report *models.RunReport, elapsed time.Duration) {
	for _, v := range report.Venues {
		m.openOrders.WithLabelValues(v.Venue).Set(float64(v.OpenOrders))
		m.lifetimeMean.WithLabelValues(v.Venue).Set(v.MeanDuration)
		m.lifetimeStdDev.WithLabelValues(v.Venue).Set(v.StdDevDuration)
	}
	m.patterns.Set(float64(len(report.Patterns)))
	m.runDuration.Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
