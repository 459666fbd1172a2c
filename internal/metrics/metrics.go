// Package metrics exposes Prometheus instrumentation for fetches, discovery
// runs and change detection. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agenda_watch"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	fetches       *prometheus.CounterVec
	fetchAttempts prometheus.Counter
	cacheHits     prometheus.Counter
	discoveries   *prometheus.CounterVec
	comparisons   *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastCycle     prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Fetches by outcome.",
		}, []string{"outcome"}),
		fetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP requests issued, including retries.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Fetches served from a fresh cache entry.",
		}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_total",
			Help:      "Discovery runs by terminal status.",
		}, []string{"status"}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Baseline comparisons by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full monitoring cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle finished.",
		}),
	}
	m.registry.MustRegister(
		m.fetches, m.fetchAttempts, m.cacheHits, m.discoveries,
		m.comparisons, m.cycleDuration, m.lastCycle,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveFetch(outcome string, attempts int, fromCache bool) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchAttempts.Add(float64(attempts))
	if fromCache {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) ObserveDiscovery(status string) {
	if m == nil {
		return
	}
	m.discoveries.WithLabelValues(status).Inc()
}

// ObserveComparison records a diff result: "baseline", "unchanged",
// "noise" or "changed".
func (m *Metrics) ObserveComparison(result string) {
	if m == nil {
		return
	}
	m.comparisons.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
	m.lastCycle.Set(float64(finished.Unix()))
}
