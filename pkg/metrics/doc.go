/*
Package metrics provides Prometheus metrics collection and exposition for
a simforge simulation run.

The package defines and registers simulation metrics using the Prometheus
client library: cores reserved per host, storage/cache occupancy, action
and job completion/failure counts, and scheduling latency. Metrics are
exposed over HTTP for scraping, the same way the teacher exposes cluster
and Raft metrics, with the catalog replaced end to end for a discrete-
event simulator instead of a container orchestrator.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Platform: cores in use / total, by host    │          │
	│  │  Storage:  free bytes, cache bytes by state │          │
	│  │  Jobs:     completed/failed, by service     │          │
	│  │  Actions:  completed/failed, by service     │          │
	│  │  Scheduling: dispatch latency, queue depth  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

Unlike the teacher's cluster, whose state a background Collector polls
off a single *manager.Manager on a wall-clock ticker, simforge has no
single root to poll: pkg/batch, pkg/storage, and pkg/memory are
independent actors. Collector here keeps the same ticker+stopCh shape
but runs caller-supplied sampling closures instead — one per live
service the caller wants surfaced. Counters tied to discrete events
(a job completing, an action failing) are instead incremented directly
at the point of occurrence, the same way the teacher's pkg/scheduler
calls metrics.ContainersScheduled.Inc() inline rather than waiting for
the next poll.

# Metrics Catalog

simforge_cores_in_use{host} / simforge_cores_total{host}: Gauge. Cores
currently reserved on host by its batch service, and the host's total
contribution to that service's candidate pool.

simforge_storage_free_bytes{service,mountpoint}: Gauge. Capacity minus
committed minus in-flight write reservations, per §4.4's space
accounting rule.

simforge_cache_bytes{service,state}: Gauge. Bytes tracked by a memory
manager's page cache, state one of free/cached/dirty.

simforge_cache_hits_total{service} / simforge_cache_misses_total{service}:
Counter. Proxy reads satisfied from cache vs. requiring a remote fetch.

simforge_cache_evictions_total{service}: Counter. Evict or EvictFiles
calls that reclaimed bytes from the memory manager's page cache (one
increment per call, however many blocks it removed).

simforge_actions_completed_total{service} / simforge_actions_failed_total{service}:
Counter. Per-batch-service action outcome counts, across every action
kind (compute, file_read, file_write, file_copy, sleep, custom) a
service's jobs run.

simforge_jobs_completed_total{service} / simforge_jobs_failed_total{service,cause}:
Counter. Per-batch-service compound job outcomes; failed jobs carry the
simerr.Kind that caused them.

simforge_scheduling_latency_seconds: Histogram. Virtual seconds between
a job's Submit and its reservation being dispatched.

simforge_queue_depth{service}: Gauge. Submissions queued on a batch
service awaiting dispatch.

simforge_run_duration_seconds: Histogram. Wall-clock time to drive one
simulation run to completion — a measure of simulator throughput, not
of the virtual time the run simulated.

# Usage

	jobID, err := svc.Submit(args, job, submitterMailbox, nil)
	if err != nil {
		kind, _ := simerr.Of(err)
		metrics.JobsFailedTotal.WithLabelValues(svc.Name, string(kind)).Inc()
		return err
	}

	timer := metrics.NewTimer()
	// ... drive the simulation to quiescence ...
	timer.ObserveDuration(metrics.RunDuration)

	collector := metrics.NewCollector(5*time.Second, func() {
		free, _ := storageSvc.FreeBytes("/")
		metrics.StorageFreeBytes.WithLabelValues(storageSvc.Name, "/").Set(float64(free))
	})
	collector.Start()
	defer collector.Stop()

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package init registration: all metrics are registered in init(), so
MustRegister panics immediately on a duplicate name rather than on
first scrape. Label discipline: every vec here is bounded by a small,
known set (host names, service names, action kinds, simerr.Kind) —
never a job or file id, which would be unbounded cardinality. Global
metric vars: package-level, thread-safe, usable from any package
without the caller constructing anything.
*/
package metrics
