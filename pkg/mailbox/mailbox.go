package mailbox

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/simerr"
)

// Envelope is one delivered message: who sent it, how many bytes it
// costs to carry, the virtual time it was sent, and its decoded body.
type Envelope struct {
	SenderID  string
	SentAt    float64
	SizeBytes int64
	Body      []byte
}

// System is the mailbox registry for one simulation run: every named
// mailbox is a topic on a shared in-process watermill gochannel bus, with
// a small per-mailbox queue that bridges its asynchronous delivery to the
// clock's cooperative turn protocol. Put blocks until the bus's consumer
// goroutine has actually enqueued the message, so delivery is atomic with
// respect to virtual time even though gochannel fans messages out on its
// own goroutine.
type System struct {
	clock *clock.Clock
	bus   *gochannel.GoChannel

	mu      sync.Mutex
	boxes   map[string]*mailboxState
	pending sync.Map // message UUID -> chan struct{}, closed once enqueued
}

type mailboxState struct {
	mu      sync.Mutex
	queue   []Envelope
	waitCh  chan struct{}
	down    bool
	downCh  chan struct{}
	waiters int // actors currently suspended in SuspendUntil on waitForMessageOrDown
}

func newMailboxState() *mailboxState {
	return &mailboxState{waitCh: make(chan struct{}), downCh: make(chan struct{})}
}

// enqueue appends e to the queue and wakes anything blocked on
// waitForMessageOrDown, returning how many actors were waiting at that
// instant. Each of those actors is guaranteed to call clock.AcquireTurn
// exactly once as it unwinds from SuspendUntil, so the caller can pair
// that many clock.MarkReady calls against it without leaking the
// dispatcher's ready count.
func (m *mailboxState) enqueue(e Envelope) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, e)
	close(m.waitCh)
	m.waitCh = make(chan struct{})
	return m.waiters
}

func (m *mailboxState) addWaiter() {
	m.mu.Lock()
	m.waiters++
	m.mu.Unlock()
}

func (m *mailboxState) removeWaiter() {
	m.mu.Lock()
	m.waiters--
	m.mu.Unlock()
}

func (m *mailboxState) tryDequeue() (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Envelope{}, false
	}
	e := m.queue[0]
	m.queue = m.queue[1:]
	return e, true
}

func (m *mailboxState) waitSnapshot() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitCh
}

// markDown flags the mailbox down and wakes anything blocked on
// waitForMessageOrDown, returning how many actors were waiting, on the
// same contract as enqueue. A mailbox already down returns 0: it was
// already woken once and nothing new became runnable.
func (m *mailboxState) markDown() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return 0
	}
	m.down = true
	close(m.downCh)
	return m.waiters
}

func (m *mailboxState) isDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.down
}

// waitForMessageOrDown fans waitSnapshot() and downCh together into a
// single channel, so a Get suspended in SuspendUntil wakes either when a
// message is delivered or when the mailbox's owner is killed.
func (m *mailboxState) waitForMessageOrDown() <-chan struct{} {
	m.mu.Lock()
	wait, down := m.waitCh, m.downCh
	m.mu.Unlock()

	combined := make(chan struct{})
	go func() {
		select {
		case <-wait:
		case <-down:
		}
		close(combined)
	}()
	return combined
}

// NewSystem creates a mailbox registry driven by clk. A background
// consumer goroutine is started per mailbox name the first time it is
// addressed, by either Put or Get.
func NewSystem(clk *clock.Clock) *System {
	return &System{
		clock: clk,
		bus:   gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
		boxes: make(map[string]*mailboxState),
	}
}

func (s *System) stateFor(name string) *mailboxState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.boxes[name]
	if ok {
		return st
	}
	st = newMailboxState()
	s.boxes[name] = st

	sub, err := s.bus.Subscribe(context.Background(), name)
	if err != nil {
		// gochannel.Subscribe only fails if the bus is already closed,
		// which never happens mid-run; nothing meaningful to recover.
		panic(err)
	}
	go func() {
		for msg := range sub {
			var wire wireEnvelope
			if err := json.Unmarshal(msg.Payload, &wire); err == nil {
				n := st.enqueue(Envelope{
					SenderID:  wire.SenderID,
					SentAt:    wire.SentAt,
					SizeBytes: wire.SizeBytes,
					Body:      wire.Body,
				})
				s.wakeWaiters(n)
			}
			msg.Ack()
			if done, ok := s.pending.LoadAndDelete(msg.UUID); ok {
				close(done.(chan struct{}))
			}
		}
	}()
	return st
}

// wakeWaiters marks n suspended actors ready to contend for the clock's
// turn and pumps the dispatcher once, closing the race where pump
// could otherwise advance virtual time past a receiver this same
// delivery just made runnable.
func (s *System) wakeWaiters(n int) {
	for i := 0; i < n; i++ {
		s.clock.MarkReady()
	}
	if n > 0 {
		s.clock.Pump()
	}
}

type wireEnvelope struct {
	SenderID  string  `json:"sender_id"`
	SentAt    float64 `json:"sent_at"`
	SizeBytes int64   `json:"size_bytes"`
	Body      []byte  `json:"body"`
}

// Put delivers body to the named mailbox. Delivery is FIFO per sender;
// no ordering is guaranteed across distinct senders. sizeBytes is
// recorded in the delivered Envelope as SizeBytes; Put does not charge
// it against any network link.
func (s *System) Put(name, senderID string, sizeBytes int64, body []byte) error {
	st := s.stateFor(name) // make sure a consumer goroutine exists before publishing
	if st.isDown() {
		return simerr.New(simerr.ServiceIsDown, name)
	}

	wire := wireEnvelope{SenderID: senderID, SentAt: s.clock.Now(), SizeBytes: sizeBytes, Body: body}
	payload, err := json.Marshal(wire)
	if err != nil {
		return simerr.Wrap(simerr.InternalError, "mailbox", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	done := make(chan struct{})
	s.pending.Store(msg.UUID, done)

	if err := s.bus.Publish(name, msg); err != nil {
		s.pending.Delete(msg.UUID)
		return simerr.Wrap(simerr.NetworkError, name, err)
	}
	<-done
	return nil
}

// Get blocks the calling actor until a message arrives on the named
// mailbox, suspending it at the clock's turn so other actors run in the
// meantime.
func (s *System) Get(name string) (Envelope, error) {
	return s.get(name, 0, false)
}

// GetWithTimeout is Get bounded by timeoutSeconds of virtual time; on
// expiry it returns a *simerr.Error of kind simerr.NetworkError.
func (s *System) GetWithTimeout(name string, timeoutSeconds float64) (Envelope, error) {
	return s.get(name, timeoutSeconds, true)
}

func (s *System) get(name string, timeoutSeconds float64, hasTimeout bool) (Envelope, error) {
	st := s.stateFor(name)
	for {
		if e, ok := st.tryDequeue(); ok {
			return e, nil
		}
		if st.isDown() {
			return Envelope{}, simerr.New(simerr.ServiceIsDown, name)
		}
		st.addWaiter()
		wait := st.waitForMessageOrDown()
		timedOut := s.clock.SuspendUntil(wait, hasTimeout, timeoutSeconds)
		st.removeWaiter()
		if timedOut {
			return Envelope{}, simerr.New(simerr.NetworkError, name)
		}
		// Another actor may have raced the message away, or the mailbox
		// went down while we were suspended; loop and recheck.
	}
}

// MarkDown fails the named mailbox: any actor currently blocked in Get or
// GetWithTimeout on it wakes immediately with simerr.ServiceIsDown, and
// every future Put/Get on it fails the same way. Call when the owning
// actor is killed.
func (s *System) MarkDown(name string) {
	n := s.stateFor(name).markDown()
	s.wakeWaiters(n)
}

// Close releases the underlying bus. Call once, when the simulation ends.
func (s *System) Close() error {
	return s.bus.Close()
}
