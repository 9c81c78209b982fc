package clock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepAdvancesTime(t *testing.T) {
	c := New()
	c.Join()
	start := c.Now()
	c.Sleep(2.5)
	assert.Equal(t, start+2.5, c.Now())
	c.Leave()
}

func TestSleepNegativeDurationIsNoop(t *testing.T) {
	c := New()
	c.Join()
	c.Sleep(-5)
	assert.Equal(t, 0.0, c.Now())
	c.Leave()
}

// TestSpawnedActorsAdvanceToSlowestSleep runs three actors, spawned
// synchronously from a root actor so the kernel's live count is accurate
// before any of them suspend, and checks the clock lands on the slowest
// one's wakeup time, never skipping ahead of it.
func TestSpawnedActorsAdvanceToSlowestSleep(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	durations := []float64{1, 5, 2}
	wg.Add(len(durations))

	c.Join()
	for _, d := range durations {
		d := d
		c.Spawn(func() {
			defer wg.Done()
			c.Sleep(d)
			c.Leave()
		})
	}
	c.Leave()

	wg.Wait()
	assert.Equal(t, 5.0, c.Now())
}

func TestSuspendUntilTimesOutAlone(t *testing.T) {
	c := New()
	c.Join()
	never := make(chan struct{})
	timedOut := c.SuspendUntil(never, true, 3)
	require.True(t, timedOut)
	assert.Equal(t, 3.0, c.Now())
	c.Leave()
}

// TestSuspendUntilWakesOnDelivery models the way pkg/mailbox uses
// SuspendUntil: a receiver waits with a timeout, and a sender actor that
// wakes earlier delivers the message first, so the timeout never fires.
func TestSuspendUntilWakesOnDelivery(t *testing.T) {
	c := New()
	delivered := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	var timedOut bool

	c.Join()
	c.Spawn(func() {
		defer wg.Done()
		c.Sleep(1)
		close(delivered)
		c.MarkReady()
		c.Pump()
		c.Leave()
	})
	c.Spawn(func() {
		defer wg.Done()
		timedOut = c.SuspendUntil(delivered, true, 10)
		c.Leave()
	})
	c.Leave()

	wg.Wait()
	assert.False(t, timedOut)
	assert.Equal(t, 1.0, c.Now())
}
