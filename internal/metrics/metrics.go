// Package metrics bundles the Prometheus collectors exported by stockpulse.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the tracker.
//
// All methods are nil-safe so components can run without metrics.
type Metrics struct {
	Registry          *prometheus.Registry
	PassesTotal       prometheus.Counter
	PassDuration      prometheus.Histogram
	TicksDroppedTotal prometheus.Counter
	FetchesTotal      *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	FetchErrorsTotal  *prometheus.CounterVec
	AlertsTotal       prometheus.Counter
	NotifyErrorsTotal *prometheus.CounterVec
	TrackedItems      prometheus.GaugeFunc
}

// New constructs and registers all metrics on a dedicated registry.
//
// trackedItems reports the current number of tracked items; it may be nil.
func New(trackedItems func() int) *Metrics {
	registry := prometheus.NewRegistry()

	passes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_passes_total",
		Help: "Total number of completed polling passes.",
	})
	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockpulse_pass_duration_seconds",
		Help:    "Wall time of a polling pass including pacing delays.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_ticks_dropped_total",
		Help: "Scheduler ticks that were due while a pass was still running.",
	})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockpulse_fetches_total",
		Help: "Status resolutions by resulting status.",
	}, []string{"status"})
	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockpulse_fetch_duration_seconds",
		Help:    "Latency of a single status resolution.",
		Buckets: prometheus.DefBuckets,
	})
	fetchErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockpulse_fetch_errors_total",
		Help: "Failed status resolutions by error kind.",
	}, []string{"kind"})
	alerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockpulse_alerts_total",
		Help: "Restock alerts fired.",
	})
	notifyErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockpulse_notify_errors_total",
		Help: "Notifier failures by notifier name.",
	}, []string{"notifier"})

	if trackedItems == nil {
		trackedItems = func() int { return 0 }
	}
	tracked := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "stockpulse_tracked_items",
		Help: "Number of items currently tracked.",
	}, func() float64 { return float64(trackedItems()) })

	registry.MustRegister(passes, passDuration, dropped, fetches, fetchDuration, fetchErrors, alerts, notifyErrors, tracked)

	return &Metrics{
		Registry:          registry,
		PassesTotal:       passes,
		PassDuration:      passDuration,
		TicksDroppedTotal: dropped,
		FetchesTotal:      fetches,
		FetchDuration:     fetchDuration,
		FetchErrorsTotal:  fetchErrors,
		AlertsTotal:       alerts,
		NotifyErrorsTotal: notifyErrors,
		TrackedItems:      tracked,
	}
}

// ObservePass records a completed pass.
func (m *Metrics) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.PassesTotal.Inc()
	m.PassDuration.Observe(d.Seconds())
}

// IncDroppedTick counts a tick skipped because a pass was running.
func (m *Metrics) IncDroppedTick() {
	if m == nil {
		return
	}
	m.TicksDroppedTotal.Inc()
}

// ObserveFetch records one status resolution.
func (m *Metrics) ObserveFetch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(status).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// IncFetchError counts a failed resolution by kind.
func (m *Metrics) IncFetchError(kind string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(kind).Inc()
}

// IncAlert counts a fired restock alert.
func (m *Metrics) IncAlert() {
	if m == nil {
		return
	}
	m.AlertsTotal.Inc()
}

// IncNotifyError counts a notifier failure.
func (m *Metrics) IncNotifyError(notifier string) {
	if m == nil {
		return
	}
	m.NotifyErrorsTotal.WithLabelValues(notifier).Inc()
}
