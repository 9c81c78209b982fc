package controller

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/simforge/pkg/actor"
	"github.com/cuemby/simforge/pkg/batch"
	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/log"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/simerr"
)

// Controller is one controller actor: a personal event mailbox plus the
// WaitForNextEvent/WaitForAndProcessNextEvent surface, per spec §4.9.
type Controller struct {
	Name string

	clock *clock.Clock
	mbox  *mailbox.System
	log   zerolog.Logger

	actor       *actor.Actor
	mailboxName string
}

// New binds a controller to host under name, with its own personal
// mailbox named "<name>_controller_mailbox".
func New(name string, host *model.Host, clk *clock.Clock, mboxSys *mailbox.System) *Controller {
	mailboxName := name + "_controller_mailbox"
	return &Controller{
		Name:        name,
		clock:       clk,
		mbox:        mboxSys,
		log:         log.WithComponent("controller." + name),
		actor:       actor.New(name, host, mailboxName, clk, mboxSys),
		mailboxName: mailboxName,
	}
}

// Mailbox reports the controller's personal event mailbox name — what a
// compute service's submitterMailbox or a copy's answer mailbox should
// be set to for this controller to observe the result.
func (c *Controller) Mailbox() string { return c.mailboxName }

// Start registers the controller as a clock-scheduled actor and runs
// run as its body. Like pkg/actor.Actor.Start, the caller must currently
// hold the clock's turn.
func (c *Controller) Start(run func(*Controller) error) {
	c.actor.Start(func(a *actor.Actor) error {
		return run(c)
	})
}

func (c *Controller) Stop() { c.actor.Stop() }
func (c *Controller) Kill() { c.actor.Kill() }

// Done reports the channel that closes once the controller's actor has
// fully stopped.
func (c *Controller) Done() <-chan struct{} { return c.actor.Done() }

// WaitForNextEvent blocks until an event arrives on the controller's
// mailbox and decodes it, suspending the calling actor at the clock's
// turn in the meantime — it must be called from within the controller's
// own Start body (or another actor sharing this mailbox).
func (c *Controller) WaitForNextEvent() (Event, error) {
	env, err := c.mbox.Get(c.mailboxName)
	if err != nil {
		return Event{}, err
	}
	return decodeEvent(env)
}

// WaitForNextEventWithTimeout is WaitForNextEvent bounded by
// timeoutSeconds of virtual time.
func (c *Controller) WaitForNextEventWithTimeout(timeoutSeconds float64) (Event, error) {
	env, err := c.mbox.GetWithTimeout(c.mailboxName, timeoutSeconds)
	if err != nil {
		return Event{}, err
	}
	return decodeEvent(env)
}

// WaitForAndProcessNextEvent waits for the next event and dispatches it
// to whichever field of h matches its kind, per spec §4.9's
// "additionally dispatches to an overridable per-variant handler".
func (c *Controller) WaitForAndProcessNextEvent(h Handlers) error {
	ev, err := c.WaitForNextEvent()
	if err != nil {
		return err
	}
	dispatch(h, ev)
	return nil
}

// SubmitFileCopy runs copy (typically a call to pkg/storage.Copy) on an
// actor of its own, reporting the outcome as a FileCopyCompleted/
// FileCopyFailed event on this controller's mailbox once copy returns,
// so WaitForNextEvent can observe a copy's completion the same way it
// observes a compute job's. Like Controller.Start, the caller must
// currently hold the clock's turn.
func (c *Controller) SubmitFileCopy(copy func() error) string {
	copyID := uuid.NewString()
	execName := c.Name + "_copy_" + copyID
	exec := actor.New(execName, c.actor.Host, execName+"_mailbox", c.clock, c.mbox)
	exec.Start(func(a *actor.Actor) error {
		if err := copy(); err != nil {
			cause := causeOf(err)
			c.publish(EventKindFileCopyFailed, FileCopyFailedEvent{CopyID: copyID, Cause: cause})
		} else {
			c.publish(EventKindFileCopyCompleted, FileCopyCompletedEvent{CopyID: copyID})
		}
		return nil
	})
	return copyID
}

// ScheduleTimer arms a one-shot wakeup: after dt seconds of virtual
// time, a Timer event named name is delivered to this controller's
// mailbox. Like Controller.Start, the caller must currently hold the
// clock's turn.
func (c *Controller) ScheduleTimer(name string, dt float64) {
	c.clock.Spawn(func() {
		defer c.clock.Leave()
		c.clock.Sleep(dt)
		c.publish(EventKindTimer, TimerEvent{Name: name})
	})
}

func (c *Controller) publish(kind EventKind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := batch.EventEnvelope{Kind: string(kind), Payload: data}
	wire, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = c.mbox.Put(c.mailboxName, c.Name, 0, wire)
}

func causeOf(err error) string {
	if k, ok := simerr.Of(err); ok {
		return string(k)
	}
	return string(simerr.InternalError)
}
