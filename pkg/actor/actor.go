package actor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/log"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/model"
)

// State is where an Actor sits in its down→up→down lifecycle.
type State int

const (
	StateDown State = iota
	StateUp
)

func (s State) String() string {
	if s == StateUp {
		return "up"
	}
	return "down"
}

// Body is the work function Start hosts. It should periodically check
// Stopping() and return when it fires, and should treat any mailbox
// error as a chance to notice it has been killed (IsKilled()).
type Body func(a *Actor) error

// Actor is one simulated daemon: a name, the host it runs on, a mailbox
// address, and the down/up/down state machine described in doc.go.
type Actor struct {
	Name     string
	Host     *model.Host
	Mailbox  string
	Daemonized  bool
	AutoRestart bool

	clock *clock.Clock
	mbox  *mailbox.System
	log   zerolog.Logger

	mu      sync.Mutex
	state   State
	killed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an actor bound to host, addressed at mailboxName, scheduled
// on clk and exchanging messages through mbox. It starts down.
func New(name string, host *model.Host, mailboxName string, clk *clock.Clock, mbox *mailbox.System) *Actor {
	return &Actor{
		Name:    name,
		Host:    host,
		Mailbox: mailboxName,
		clock:   clk,
		mbox:    mbox,
		log:     log.WithActor(name),
		state:   StateDown,
	}
}

// Start brings the actor up: it registers with the clock and runs body
// in its own goroutine. The caller must currently hold the clock's turn
// (i.e. be the actor/controller creating this one).
func (a *Actor) Start(body Body) {
	a.mu.Lock()
	a.state = StateUp
	a.killed = false
	a.stopCh = make(chan struct{})
	doneCh := make(chan struct{})
	a.doneCh = doneCh
	a.mu.Unlock()

	a.clock.Spawn(func() {
		defer close(doneCh)
		defer a.clock.Leave()

		err := body(a)

		a.mu.Lock()
		a.state = StateDown
		killed := a.killed
		a.mu.Unlock()

		if !killed {
			a.mbox0().MarkDown(a.Mailbox)
		}
		if err != nil && !killed {
			a.log.Error().Err(err).Msg("actor body returned with error")
		} else {
			a.log.Debug().Msg("actor stopped")
		}
	})
}

func (a *Actor) mbox0() *mailbox.System { return a.mbox }

// Stop asks the actor to wind down: Stopping() fires and its mailbox is
// marked down, so a body blocked in mbox.Get(a.Mailbox) wakes with
// simerr.ServiceIsDown and can return cleanly. Unlike Kill, IsKilled
// stays false — this is the graceful form. The caller should wait on
// Done() for the body to actually return.
func (a *Actor) Stop() {
	a.mu.Lock()
	stopCh := a.stopCh
	a.mu.Unlock()

	a.mbox.MarkDown(a.Mailbox)
	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
}

// Kill forces the actor down immediately: its mailbox starts failing
// every Put/Get with simerr.ServiceIsDown (waking anything currently
// blocked on it), and Stopping() fires too so a well-behaved body notices
// quickly. Call from a different, currently-running actor — it does not
// wait for the body to actually return.
func (a *Actor) Kill() {
	a.mu.Lock()
	a.killed = true
	a.state = StateDown
	stopCh := a.stopCh
	a.mu.Unlock()

	a.mbox.MarkDown(a.Mailbox)
	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
}

// Stopping reports the channel that fires when Stop or Kill is called.
func (a *Actor) Stopping() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopCh
}

// Done reports the channel that closes once Body has actually returned.
func (a *Actor) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doneCh
}

// State returns the actor's current lifecycle state.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsKilled reports whether Kill (rather than a graceful Stop or a
// natural return) brought the actor down.
func (a *Actor) IsKilled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.killed
}

// Sleep suspends the actor for dt virtual seconds, returning early if
// Stop or Kill fires first. Convenience wrapper around the clock so Body
// implementations don't need to import pkg/clock directly.
func (a *Actor) Sleep(dt float64) { a.clock.SuspendUntil(a.Stopping(), true, dt) }

// Now returns the current virtual time.
func (a *Actor) Now() float64 { return a.clock.Now() }
