// Package metrics exposes the Prometheus instrumentation for the queue
// service. The collector subscribes to coordinator events and cache
// callbacks rather than being called from domain code directly, so the
// domain packages carry no metrics dependencies.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/workshop-queue/internal/queue"
)

// Collector aggregates the service metrics and implements queue.Notifier and
// the cache layer's observer interface.
type Collector struct {
	registry *prometheus.Registry

	entriesAdded   prometheus.Counter
	entriesCalled  prometheus.Counter
	transitions    *prometheus.CounterVec
	validations    *prometheus.CounterVec
	activeEntries  prometheus.Gauge
	cacheHits      *prometheus.CounterVec
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	retryAttempts  prometheus.Counter
	claimAttempts  prometheus.Histogram
}

// NewCollector registers the queue metric set on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	collector := &Collector{
		registry: registry,
		entriesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_entries_added_total",
			Help: "Number of customers who joined the queue.",
		}),
		entriesCalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_entries_called_total",
			Help: "Number of entries claimed by CallNext.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_transitions_total",
			Help: "Committed entry state transitions by resulting status.",
		}, []string{"status"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_qr_validations_total",
			Help: "QR validation attempts by result.",
		}, []string{"result"}),
		activeEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_active_entries",
			Help: "Entries currently waiting or called.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_cache_hits_total",
			Help: "Cache hits by tier.",
		}, []string{"tier"}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_cache_misses_total",
			Help: "Cache lookups that missed both tiers.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_cache_evictions_total",
			Help: "Memory-tier evictions.",
		}),
		retryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_store_retry_attempts_total",
			Help: "Store operation attempts issued by the retry executor.",
		}),
		claimAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "queue_call_next_claim_attempts",
			Help:    "Claim attempts a successful CallNext needed.",
			Buckets: prometheus.LinearBuckets(1, 1, 5),
		}),
	}

	registry.MustRegister(
		collector.entriesAdded,
		collector.entriesCalled,
		collector.transitions,
		collector.validations,
		collector.activeEntries,
		collector.cacheHits,
		collector.cacheMisses,
		collector.cacheEvictions,
		collector.retryAttempts,
		collector.claimAttempts,
	)
	return collector
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Notify implements queue.Notifier, counting events by name.
func (c *Collector) Notify(_ context.Context, event queue.Event) {
	switch event.Name {
	case queue.EventEntryAdded:
		c.entriesAdded.Inc()
		c.transitions.WithLabelValues(string(queue.StatusWaiting)).Inc()
	case queue.EventCalled:
		c.entriesCalled.Inc()
		c.transitions.WithLabelValues(string(queue.StatusCalled)).Inc()
	case queue.EventServed:
		c.transitions.WithLabelValues(string(queue.StatusServed)).Inc()
	case queue.EventCancelled:
		c.transitions.WithLabelValues(string(queue.StatusCancelled)).Inc()
	case queue.EventNoShow:
		c.transitions.WithLabelValues(string(queue.StatusNoShow)).Inc()
	case queue.EventQRValidated:
		result := "validated"
		if !event.TimerStarted {
			result = "validated_no_timer"
		}
		c.validations.WithLabelValues(result).Inc()
		c.transitions.WithLabelValues(string(queue.StatusInService)).Inc()
	}

	if event.Status != nil {
		c.activeEntries.Set(float64(event.Status.CurrentCount))
	}
}

// RecordValidationFailure counts a rejected scan by its error kind.
func (c *Collector) RecordValidationFailure(kind string) {
	c.validations.WithLabelValues(kind).Inc()
}

// CacheHit implements the cache observer.
func (c *Collector) CacheHit(tier string) {
	c.cacheHits.WithLabelValues(tier).Inc()
}

// CacheMiss implements the cache observer.
func (c *Collector) CacheMiss() {
	c.cacheMisses.Inc()
}

// CacheEviction implements the cache observer.
func (c *Collector) CacheEviction() {
	c.cacheEvictions.Inc()
}

// RetryAttempt feeds the retry executor's attempt observer.
func (c *Collector) RetryAttempt(int) {
	c.retryAttempts.Inc()
}

// CallNextClaimAttempts feeds the coordinator's claim observer.
func (c *Collector) CallNextClaimAttempts(attempts int) {
	c.claimAttempts.Observe(float64(attempts))
}
