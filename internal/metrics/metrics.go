// Package metrics exposes prometheus counters for a manifest reader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the reader's counters. A nil *Metrics records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	fetchesTotal     *prometheus.CounterVec
	cacheHitsTotal   prometheus.Counter
	dedupSharedTotal prometheus.Counter
	publishedTotal   *prometheus.CounterVec
	errorsTotal      prometheus.Counter
	outstandingLoads prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsread_fetches_total",
			Help: "Underlying fetches issued, by location scheme",
		}, []string{"scheme"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hlsread_cache_hits_total",
			Help: "Loads served from the content cache",
		}),
		dedupSharedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hlsread_dedup_shared_total",
			Help: "Loads that joined an in-flight fetch for the same location",
		}),
		publishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsread_items_published_total",
			Help: "Items handed to the consumer, by kind",
		}, []string{"kind"}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hlsread_errors_total",
			Help: "Failed loads surfaced as error items",
		}),
		outstandingLoads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hlsread_outstanding_loads",
			Help: "Loads dispatched and not yet completed",
		}),
	}

	registry.MustRegister(
		m.fetchesTotal,
		m.cacheHitsTotal,
		m.dedupSharedTotal,
		m.publishedTotal,
		m.errorsTotal,
		m.outstandingLoads,
	)
	return m
}

func (m *Metrics) IncFetches(scheme string) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(scheme).Inc()
}

func (m *Metrics) IncCacheHits() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) IncDedupShared() {
	if m == nil {
		return
	}
	m.dedupSharedTotal.Inc()
}

func (m *Metrics) IncPublished(kind string) {
	if m == nil {
		return
	}
	m.publishedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

func (m *Metrics) SetOutstanding(n int) {
	if m == nil {
		return
	}
	m.outstandingLoads.Set(float64(n))
}

// Registry is exposed for tests and for callers that want to gather directly.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
