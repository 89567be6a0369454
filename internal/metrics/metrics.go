// Package metrics exposes the worker's Prometheus series, mirroring the
// wider stack's promauto-registered-vectors-on-a-struct convention.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the four series required by the process-task use case.
type Recorder struct {
	TasksProcessed   *prometheus.CounterVec
	ProcessingTime   *prometheus.HistogramVec
	QueueErrors      *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
}

// New registers and returns a fresh Recorder against the given registerer.
// Pass prometheus.NewRegistry() in tests to avoid collisions with the
// process-wide default registry.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		TasksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_processed_total",
			Help: "Total number of tasks reaching a terminal outcome, by status.",
		}, []string{"status", "worker_id"}),
		ProcessingTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_processing_seconds",
			Help:    "Wall-clock time to process one task, by terminal status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status", "worker_id"}),
		QueueErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_errors_total",
			Help: "Total number of queue transport failures.",
		}, []string{"worker_id"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Most recently observed queue depth, informational.",
		}, []string{"worker_id"}),
	}
}

// NewServer returns an *http.Server, not yet started, that exposes
// GET /metrics on addr using the given gatherer. The caller runs
// ListenAndServe and Shutdown on it.
func NewServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux}
}
