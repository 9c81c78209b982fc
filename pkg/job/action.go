package job

import (
	"sync"

	"github.com/cuemby/simforge/pkg/actor"
	"github.com/cuemby/simforge/pkg/simerr"
)

// State is one point in an action's {not_ready, ready, started,
// completed, failed, killed} lifecycle, per spec §4.7.
type State string

const (
	NotReady  State = "not_ready"
	Ready     State = "ready"
	Started   State = "started"
	Completed State = "completed"
	Failed    State = "failed"
	Killed    State = "killed"
)

// HistoryFrame is one execution attempt of an action: where it ran,
// what it was allocated, and when it started/ended.
type HistoryFrame struct {
	ExecutionHost         string
	PhysicalExecutionHost string
	NumCoresAllocated     int
	RAMAllocated          int64
	StartDate             float64
	EndDate               float64
}

// ActionFunc is the work an action performs once started, run under
// the pkg/actor.Actor the compute service assigned it. A custom action
// may itself submit further jobs; it signals failure by returning a
// non-nil error (ideally a *simerr.Error, so FailureCause is precise).
type ActionFunc func(a *actor.Actor) error

// TerminateFunc cancels an in-flight custom action's external
// resources (if any) when the action is killed before ActionFunc
// returns on its own. May be nil.
type TerminateFunc func()

// Action is one DAG node: a name, its parents/children, its current
// state, and the history of every attempt made to run it.
type Action struct {
	Name string

	job       *CompoundJob
	execute   ActionFunc
	terminate TerminateFunc

	mu           sync.Mutex
	state        State
	parents      []*Action
	children     []*Action
	history      []HistoryFrame
	failureCause error
}

func newAction(name string, execute ActionFunc, terminate TerminateFunc) *Action {
	return &Action{Name: name, execute: execute, terminate: terminate, state: NotReady}
}

// State reports the action's current lifecycle state.
func (a *Action) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// FailureCause reports why the action failed or was killed, nil
// otherwise.
func (a *Action) FailureCause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failureCause
}

// History returns a copy of every recorded execution attempt.
func (a *Action) History() []HistoryFrame {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]HistoryFrame, len(a.history))
	copy(out, a.history)
	return out
}

// Parents reports the actions that must complete before this one can
// become ready.
func (a *Action) Parents() []*Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Action, len(a.parents))
	copy(out, a.parents)
	return out
}

func (a *Action) parentsAllCompletedLocked() bool {
	for _, p := range a.parents {
		if p.State() != Completed {
			return false
		}
	}
	return true
}

// Run executes the action under act, which the caller (a compute
// service) has already bound to the reserved host/cores/RAM. Run
// blocks until execute returns, transitions the action to its final
// state, and notifies the owning CompoundJob. It is a no-op, returning
// immediately, if the action isn't Ready.
func (a *Action) Run(act *actor.Actor, physicalHost string, cores int, ramBytes int64) {
	a.mu.Lock()
	if a.state != Ready {
		a.mu.Unlock()
		return
	}
	a.state = Started
	frame := HistoryFrame{
		ExecutionHost:         act.Host.Name,
		PhysicalExecutionHost: physicalHost,
		NumCoresAllocated:     cores,
		RAMAllocated:          ramBytes,
		StartDate:             act.Now(),
	}
	a.mu.Unlock()

	err := a.execute(act)

	a.mu.Lock()
	frame.EndDate = act.Now()
	a.history = append(a.history, frame)
	select {
	case <-act.Stopping():
		a.state = Killed
		a.failureCause = simerr.New(simerr.JobKilled, a.Name)
	default:
		if err != nil {
			a.state = Failed
			a.failureCause = err
		} else {
			a.state = Completed
		}
	}
	state := a.state
	a.mu.Unlock()

	if a.job != nil {
		a.job.onActionSettled(a, state)
	}
}

// Kill cancels the action externally: a not-yet-started action is
// marked Killed directly, and a running one has its TerminateFunc
// invoked (Run will observe act.Stopping() and finish the transition
// once execute returns).
func (a *Action) Kill() {
	a.mu.Lock()
	state := a.state
	term := a.terminate
	if state == NotReady || state == Ready {
		a.state = Killed
		a.failureCause = simerr.New(simerr.JobKilled, a.Name)
	}
	a.mu.Unlock()

	if state == Started && term != nil {
		term()
	}
	if state == NotReady || state == Ready {
		if a.job != nil {
			a.job.onActionSettled(a, Killed)
		}
	}
}
