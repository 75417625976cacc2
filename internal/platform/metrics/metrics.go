// Package metrics collects and exposes Prometheus metrics for the proxy.
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the gateway and transports record through.
type Recorder interface {
	RecordCacheHit(objectType string)
	RecordCacheMiss(objectType string)
	RecordUpstream(transport, outcome string)
	RecordFallback(objectType string)
	RecordFetchLatency(objectType string, d time.Duration)
}

// Collector implements Recorder on a Prometheus registry.
type Collector struct {
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	upstream     *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_proxy_cache_hits_total",
			Help: "Read-through cache hits by object type",
		}, []string{"object_type"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_proxy_cache_misses_total",
			Help: "Read-through cache misses by object type",
		}, []string{"object_type"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_proxy_upstream_requests_total",
			Help: "Upstream ontology requests by transport and outcome",
		}, []string{"transport", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_proxy_fallbacks_total",
			Help: "Primary-to-secondary transport fallbacks by object type",
		}, []string{"object_type"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atlas_proxy_fetch_latency_seconds",
			Help:    "End-to-end ontology fetch latency by object type",
			Buckets: prometheus.DefBuckets,
		}, []string{"object_type"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.upstream,
		c.fallbacks,
		c.fetchLatency,
	)

	return c
}

func (c *Collector) RecordCacheHit(objectType string) {
	c.cacheHits.WithLabelValues(objectType).Inc()
}

func (c *Collector) RecordCacheMiss(objectType string) {
	c.cacheMisses.WithLabelValues(objectType).Inc()
}

func (c *Collector) RecordUpstream(transport, outcome string) {
	c.upstream.WithLabelValues(transport, outcome).Inc()
}

func (c *Collector) RecordFallback(objectType string) {
	c.fallbacks.WithLabelValues(objectType).Inc()
}

func (c *Collector) RecordFetchLatency(objectType string, d time.Duration) {
	c.fetchLatency.WithLabelValues(objectType).Observe(d.Seconds())
}

// Handler returns an echo handler serving the registry in the Prometheus
// text exposition format.
func Handler(reg *prometheus.Registry) echo.HandlerFunc {
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// Nop is a Recorder that discards everything; used in tests.
type Nop struct{}

func (Nop) RecordCacheHit(string)                  {}
func (Nop) RecordCacheMiss(string)                 {}
func (Nop) RecordUpstream(string, string)          {}
func (Nop) RecordFallback(string)                  {}
func (Nop) RecordFetchLatency(string, time.Duration) {}
