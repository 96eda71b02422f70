// Package metrics exposes Prometheus-compatible counters and histograms for
// the dispatcher's superstep loop. Grounded on graph/metrics.go's
// PrometheusMetrics, narrowed to the observations a single-threaded,
// per-run dispatcher can meaningfully emit: this runtime has no node
// concurrency or merge-conflict surface to report (spec §5: one handler at
// a time per run), so the inflight_nodes/merge_conflicts_total gauges
// graph/metrics.go carries have no analogue here.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the counters a Dispatcher updates as it runs. Namespaced
// "agentflow_".
type Recorder struct {
	executorInvocations *prometheus.CounterVec
	executorFailures    *prometheus.CounterVec
	handlerLatency      *prometheus.HistogramVec
	superstepCount      *prometheus.CounterVec
	checkpointsCreated  *prometheus.CounterVec
	queueDepth          prometheus.Gauge

	mu      sync.RWMutex
	enabled bool
}

// New creates and registers the dispatcher metric set with registry. A nil
// registry uses prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Recorder {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	r := &Recorder{enabled: true}

	r.executorInvocations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "executor_invocations_total",
		Help:      "Count of handler invocations, per executor id",
	}, []string{"run_id", "executor_id"})

	r.executorFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "executor_failures_total",
		Help:      "Count of ExecutorFailed events (handler errors, panics, routing failures), per executor id",
	}, []string{"run_id", "executor_id", "code"})

	r.handlerLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentflow",
		Name:      "handler_latency_ms",
		Help:      "Handler execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "executor_id"})

	r.superstepCount = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "supersteps_total",
		Help:      "Count of dispatcher supersteps executed",
	}, []string{"run_id"})

	r.checkpointsCreated = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "checkpoints_created_total",
		Help:      "Count of checkpoints committed",
	}, []string{"run_id"})

	r.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentflow",
		Name:      "queue_depth",
		Help:      "Current number of messages pending in the dispatcher queue",
	})

	return r
}

// RecordInvocation increments the invocation counter and observes latency
// for one handler call.
func (r *Recorder) RecordInvocation(runID, executorID string, latency time.Duration) {
	if !r.isEnabled() {
		return
	}
	r.executorInvocations.WithLabelValues(runID, executorID).Inc()
	r.handlerLatency.WithLabelValues(runID, executorID).Observe(float64(latency.Milliseconds()))
}

// RecordFailure increments the failure counter for one executor and error code.
func (r *Recorder) RecordFailure(runID, executorID, code string) {
	if !r.isEnabled() {
		return
	}
	r.executorFailures.WithLabelValues(runID, executorID, code).Inc()
}

// RecordSuperstep increments the superstep counter for a run.
func (r *Recorder) RecordSuperstep(runID string) {
	if !r.isEnabled() {
		return
	}
	r.superstepCount.WithLabelValues(runID).Inc()
}

// RecordCheckpoint increments the checkpoint counter for a run.
func (r *Recorder) RecordCheckpoint(runID string) {
	if !r.isEnabled() {
		return
	}
	r.checkpointsCreated.WithLabelValues(runID).Inc()
}

// SetQueueDepth sets the current pending-queue gauge.
func (r *Recorder) SetQueueDepth(depth int) {
	if !r.isEnabled() {
		return
	}
	r.queueDepth.Set(float64(depth))
}

func (r *Recorder) isEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Disable stops the recorder from updating metrics (useful for tests that
// share a default registry across cases).
func (r *Recorder) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
}

// Enable re-enables a previously disabled recorder.
func (r *Recorder) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
}
