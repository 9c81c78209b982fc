package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Platform metrics (C10's candidate hosts)
	CoresInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simforge_cores_in_use",
			Help: "Cores currently reserved by a batch service, by host",
		},
		[]string{"host"},
	)

	CoresTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simforge_cores_total",
			Help: "Total cores a host contributes to its batch service's candidate pool",
		},
		[]string{"host"},
	)

	// Storage/proxy metrics (C5/C7/C8)
	StorageFreeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simforge_storage_free_bytes",
			Help: "Free bytes on a disk (capacity minus committed minus reserved)",
		},
		[]string{"service", "mountpoint"},
	)

	CacheBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simforge_cache_bytes",
			Help: "Bytes tracked by a memory manager's page cache, by state (free, cached, dirty)",
		},
		[]string{"service", "state"},
	)

	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simforge_cache_hits_total",
			Help: "Total proxy reads satisfied from the page cache without a remote fetch",
		},
		[]string{"service"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simforge_cache_misses_total",
			Help: "Total proxy reads that required a copy-then-read or magic-read from a remote",
		},
		[]string{"service"},
	)

	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simforge_cache_evictions_total",
			Help: "Total eviction calls that reclaimed bytes from the memory manager's page cache",
		},
		[]string{"service"},
	)

	// Action/job metrics (C9/C10)
	ActionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simforge_actions_completed_total",
			Help: "Total actions that reached COMPLETED, by batch service",
		},
		[]string{"service"},
	)

	ActionsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simforge_actions_failed_total",
			Help: "Total actions that reached FAILED or KILLED, by batch service",
		},
		[]string{"service"},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simforge_jobs_completed_total",
			Help: "Total compound jobs that finished with outcome JobCompleted, by batch service",
		},
		[]string{"service"},
	)

	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simforge_jobs_failed_total",
			Help: "Total compound jobs that finished with outcome JobFailed or PartiallyCompleted, by batch service",
		},
		[]string{"service", "cause"},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simforge_scheduling_latency_seconds",
			Help:    "Virtual time between a job's Submit and its reservation being dispatched",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simforge_queue_depth",
			Help: "Submissions currently queued on a batch service awaiting dispatch",
		},
		[]string{"service"},
	)

	// Wall-clock run metrics: how fast the simulator itself executes,
	// distinct from the virtual time it advances.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simforge_run_duration_seconds",
			Help:    "Wall-clock time taken to drive a simulation run to completion",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(CoresInUse)
	prometheus.MustRegister(CoresTotal)
	prometheus.MustRegister(StorageFreeBytes)
	prometheus.MustRegister(CacheBytes)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(ActionsCompletedTotal)
	prometheus.MustRegister(ActionsFailedTotal)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(RunDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
