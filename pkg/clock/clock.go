package clock

import (
	"container/heap"
	"sync"
)

// timerEntry is one scheduled wakeup, ordered by (at, seq) so same-time
// wakeups fire in registration order. fireCh is closed by the dispatcher
// when the entry fires, which lets callers select on it alongside other
// channels (e.g. a mailbox delivery) for timeout races.
type timerEntry struct {
	at      float64
	seq     uint64
	fireCh  chan struct{}
	removed bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Clock is simforge's virtual clock and cooperative turn scheduler. See
// doc.go for the model; all exported methods are safe for concurrent use
// by many actor goroutines.
type Clock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	now   float64
	seq   uint64
	timer timerHeap

	live      int // actors registered via Join/Spawn, not yet Leave
	turnTaken bool
	ready     int // actors runnable right now (just joined, or a wait condition fired) and contending for the turn
}

// New creates an idle clock at virtual time zero.
func New() *Clock {
	c := &Clock{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Now returns the current virtual time.
func (c *Clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Join registers the bootstrap (root) actor with the kernel and blocks
// until it is granted the run turn. Any actor started by another running
// actor should use Spawn instead, so the kernel's live count is accurate
// before its creator's next suspension point.
func (c *Clock) Join() {
	c.mu.Lock()
	c.live++
	c.ready++
	c.mu.Unlock()
	c.AcquireTurn()
}

// Spawn registers a child actor synchronously (the live count is updated
// before Spawn returns, from the calling, turn-holding actor) and starts
// body in a new goroutine once the child has been granted its first turn.
// Call from an actor that currently holds the turn.
func (c *Clock) Spawn(body func()) {
	c.mu.Lock()
	c.live++
	c.ready++
	c.mu.Unlock()
	go func() {
		c.AcquireTurn()
		body()
	}()
}

// Leave deregisters an actor that has terminated. The caller must
// currently hold the turn.
func (c *Clock) Leave() {
	c.mu.Lock()
	c.live--
	c.turnTaken = false
	c.mu.Unlock()
	c.cond.Broadcast()
	c.pump()
}

// Sleep suspends the calling actor, which must hold the turn, until dt
// virtual seconds have elapsed, then returns with the turn held again.
// Negative dt is treated as zero.
func (c *Clock) Sleep(dt float64) {
	entry := c.ScheduleTimer(dt)
	c.ReleaseTurn()
	c.pump()
	<-entry.fireCh
	c.AcquireTurn()
}

// SuspendUntil is the primitive pkg/mailbox builds waits on top of: it
// releases the turn and blocks the caller until either ready fires
// (e.g. a message was delivered) or, if hasTimeout, timeoutSeconds of
// virtual time elapse, whichever comes first. It returns with the turn
// held again, reporting whether the timeout path fired.
func (c *Clock) SuspendUntil(ready <-chan struct{}, hasTimeout bool, timeoutSeconds float64) (timedOut bool) {
	var entry *timerEntry
	if hasTimeout {
		entry = c.ScheduleTimer(timeoutSeconds)
	}
	c.ReleaseTurn()
	c.pump()

	if entry == nil {
		<-ready
	} else {
		select {
		case <-ready:
			c.CancelTimer(entry)
		case <-entry.fireCh:
			timedOut = true
		}
	}
	c.AcquireTurn()
	return timedOut
}

// ScheduleTimer registers a wakeup dt seconds from now and returns its
// handle; entry.fireCh closes when the dispatcher fires it. Exported for
// pkg/mailbox.
func (c *Clock) ScheduleTimer(dt float64) *timerEntry {
	if dt < 0 {
		dt = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &timerEntry{at: c.now + dt, seq: c.seq, fireCh: make(chan struct{})}
	c.seq++
	heap.Push(&c.timer, e)
	return e
}

// CancelTimer removes a not-yet-fired timer, e.g. because the event it
// was racing against happened first. Safe to call more than once.
func (c *Clock) CancelTimer(e *timerEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.removed {
		return
	}
	e.removed = true
	for i, t := range c.timer {
		if t == e {
			heap.Remove(&c.timer, i)
			return
		}
	}
}

// MarkReady registers the calling goroutine as having its wait condition
// satisfied and now contending for the turn. Used by mailbox delivery,
// which wakes a receiver outside of the timer path.
func (c *Clock) MarkReady() {
	c.mu.Lock()
	c.ready++
	c.mu.Unlock()
	c.cond.Broadcast()
}

// AcquireTurn blocks until the caller is the sole running actor.
func (c *Clock) AcquireTurn() {
	c.mu.Lock()
	for c.turnTaken {
		c.cond.Wait()
	}
	c.turnTaken = true
	if c.ready > 0 {
		c.ready--
	}
	c.mu.Unlock()
}

// ReleaseTurn gives up the run slot.
func (c *Clock) ReleaseTurn() {
	c.mu.Lock()
	c.turnTaken = false
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Pump re-runs the dispatcher check; exported so pkg/mailbox can trigger
// it after delivering a message directly into a waiting receiver without
// going through a timer.
func (c *Clock) Pump() { c.pump() }

// pump is the dispatcher: with the turn free and nobody already woken and
// contending for it, advance virtual time to the earliest pending timer
// and fire it. Called after every transition that could make the
// simulation quiescent (Sleep, Leave, a mailbox Put delivering a message).
func (c *Clock) pump() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.turnTaken && c.ready == 0 && c.live > 0 {
		var next *timerEntry
		for c.timer.Len() > 0 {
			cand := heap.Pop(&c.timer).(*timerEntry)
			if cand.removed {
				continue
			}
			next = cand
			break
		}
		if next == nil {
			return // nothing pending; idle until a mailbox Put pumps again
		}
		if next.at > c.now {
			c.now = next.at
		}
		c.ready++
		close(next.fireCh)
		return
	}
}
