package metrics

import "time"

// Collector runs a set of caller-supplied sampling funcs on a fixed
// wall-clock tick, the same goroutine+ticker+stopCh shape the teacher's
// manager collector uses. Unlike the teacher's collector, which polls a
// single *manager.Manager god object, simforge has no single root to
// poll: a batch service, a storage service, and a memory manager are
// all independent actors, so the caller supplies one closure per thing
// it wants sampled (typically one per live service) rather than this
// package importing pkg/batch/pkg/storage/pkg/memory directly.
type Collector struct {
	interval time.Duration
	sources  []func()
	stopCh   chan struct{}
}

// NewCollector builds a collector that runs every source func once per
// interval of real wall-clock time. Sampling a running simulation's
// gauges (cores in use, cache bytes) this way is itself real-time
// progress observability, distinct from the virtual time the
// simulation advances.
func NewCollector(interval time.Duration, sources ...func()) *Collector {
	return &Collector{
		interval: interval,
		sources:  sources,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, source := range c.sources {
		source()
	}
}
