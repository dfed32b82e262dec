// Package metrics exposes Prometheus collectors for runs, retrieval, tool
// calls and the worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/creatory/creatory/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	stepsTotal      *prometheus.CounterVec
	breakerTrips    *prometheus.CounterVec
	retrievals      prometheus.Counter
	retrievalHits   prometheus.Histogram
	toolInvocations *prometheus.CounterVec
	toolLatency     *prometheus.HistogramVec
	heartbeats      prometheus.Counter
}

// NewCollector registers every metric under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Workflow runs by final status",
		}, []string{"template", "status"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Wall time of workflow runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"template"}),
		stepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Workflow steps by node type and status",
		}, []string{"node_type", "status"}),
		breakerTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Runs refused by the step budget",
		}, []string{"template"}),
		retrievals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_queries_total",
			Help:      "Hybrid retrieval queries",
		}),
		retrievalHits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Contexts returned per retrieval query",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),
		toolInvocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "MCP tool invocations by status",
		}, []string{"status"}),
		toolLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "MCP tool invocation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		heartbeats: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_heartbeats_total",
			Help:      "Worker heartbeat ticks",
		}),
	}
}

// HandleEvent records run lifecycle events. Subscribe it to the engine's
// EventBus.
func (c *Collector) HandleEvent(e engine.Event) {
	switch e.Type {
	case engine.EventStepFinished:
		c.stepsTotal.WithLabelValues(string(e.NodeType), string(e.Status)).Inc()
	case engine.EventRunFinished:
		c.runsTotal.WithLabelValues(e.Template, string(e.Status)).Inc()
		c.runDuration.WithLabelValues(e.Template).Observe(e.Duration.Seconds())
	case engine.EventBreakerTriggered:
		c.breakerTrips.WithLabelValues(e.Template).Inc()
		c.runsTotal.WithLabelValues(e.Template, string(e.Status)).Inc()
	}
}

// ObserveRetrieval implements rag.Observer.
func (c *Collector) ObserveRetrieval(results int) {
	c.retrievals.Inc()
	c.retrievalHits.Observe(float64(results))
}

// ObserveToolInvocation records one tool call.
func (c *Collector) ObserveToolInvocation(status string, latency time.Duration) {
	c.toolInvocations.WithLabelValues(status).Inc()
	c.toolLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// Heartbeat records a worker tick.
func (c *Collector) Heartbeat() {
	c.heartbeats.Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
