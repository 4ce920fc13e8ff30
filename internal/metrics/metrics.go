// Package metrics publishes Prometheus instrumentation for rule-set
// compiles, selector decisions, and the repository cache.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheLookupOutcome captures the result of a repository cache lookup.
type CacheLookupOutcome string

const (
	CacheLookupHit   CacheLookupOutcome = "hit"
	CacheLookupMiss  CacheLookupOutcome = "miss"
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a repository cache store.
type CacheStoreOutcome string

const (
	CacheStoreStored CacheStoreOutcome = "stored"
	CacheStoreError  CacheStoreOutcome = "error"
)

// Recorder publishes Prometheus metrics for the compiler, selector, and
// repository cache.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	compiles       *prometheus.CounterVec
	compileLatency *prometheus.HistogramVec

	decisions *prometheus.CounterVec

	weightedBucket *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil
// a dedicated registry is created so multiple recorders can coexist
// without conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	compiles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gwselector",
		Subsystem: "compiler",
		Name:      "compiles_total",
		Help:      "Rule-set compile attempts, by outcome.",
	}, []string{"outcome"})

	compileLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gwselector",
		Subsystem: "compiler",
		Name:      "compile_duration_seconds",
		Help:      "Latency distribution for rule-set compiles.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"outcome"})

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gwselector",
		Subsystem: "selector",
		Name:      "decisions_total",
		Help:      "Selector decisions, by reason and chosen route.",
	}, []string{"reason", "route"})

	weightedBucket := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gwselector",
		Subsystem: "selector",
		Name:      "weighted_bucket",
		Help:      "Sticky bucket value (0-99) observed by weighted dispatch.",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 99},
	}, []string{"rule_id"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gwselector",
		Subsystem: "repository_cache",
		Name:      "operations_total",
		Help:      "Repository cache operations, by operation and result.",
	}, []string{"operation", "result"})

	reg.MustRegister(compiles, compileLatency, decisions, weightedBucket, cacheOperations)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		compiles:        compiles,
		compileLatency:  compileLatency,
		decisions:       decisions,
		weightedBucket:  weightedBucket,
		cacheOperations: cacheOperations,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's
// registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and
// advanced integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCompile records the outcome and latency of a rule-set compile.
func (r *Recorder) ObserveCompile(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	label := normalizeLabel(outcome)
	r.compiles.WithLabelValues(label).Inc()
	r.compileLatency.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveDecision records a selector decision's reason and the route it
// resolved to (empty for decisions with no match).
func (r *Recorder) ObserveDecision(reason, route string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(normalizeLabel(reason), normalizeLabel(route)).Inc()
}

// ObserveWeightedBucket records the sticky bucket chosen for a WEIGHTED
// rule's dispatch, for distribution monitoring.
func (r *Recorder) ObserveWeightedBucket(ruleID string, bucket int64) {
	if r == nil {
		return
	}
	r.weightedBucket.WithLabelValues(normalizeLabel(ruleID)).Observe(float64(bucket))
}

// ObserveCacheLookup records the result of a repository cache lookup.
func (r *Recorder) ObserveCacheLookup(result CacheLookupOutcome) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues("lookup", string(result)).Inc()
}

// ObserveCacheStore records the result of a repository cache store.
func (r *Recorder) ObserveCacheStore(result CacheStoreOutcome) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues("store", string(result)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
