package job

import (
	"sync"

	"github.com/cuemby/simforge/pkg/actor"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/simerr"
)

// Outcome is a CompoundJob's own terminal state, reported once every
// action has settled, per spec §4.7.
type Outcome string

const (
	// Running means at least one action has not yet settled.
	Running Outcome = "running"
	// JobCompleted means every action completed.
	JobCompleted Outcome = "completed"
	// JobFailed means at least one action failed or was killed and the
	// job isn't tolerant of that.
	JobFailed Outcome = "failed"
	// PartiallyCompleted is only reachable when the job was built with
	// tolerant=true: some actions failed/were killed, but the rest
	// completed.
	PartiallyCompleted Outcome = "partially_completed"
)

// fileReader and fileWriter are satisfied by both *pkg/storage.Service
// and *pkg/proxy.Proxy, so the convenience constructors below work
// against either without importing either package.
type fileReader interface {
	Read(callerID string, loc model.FileLocation, numBytes int64) error
}

type fileWriter interface {
	Write(callerID string, loc model.FileLocation, file *model.File) error
}

// CompoundJob is a named set of Actions wired into a dependency DAG.
// It is not itself an actor; it is a plain data structure one compute
// service actor drives, per spec §4.7's "a compute service assigns it
// resources" ready->started transition.
type CompoundJob struct {
	Name     string
	tolerant bool

	mu           sync.Mutex
	actions      map[string]*Action
	order        []string // insertion order, for deterministic ReadyActions
	settledCount int
	anyUnhappy   bool
	submitted    bool
	doneCh       chan struct{}
}

// NewCompoundJob builds an empty job. When tolerant is true, a job
// with some failed/killed actions settles as PartiallyCompleted rather
// than Failed, per spec §4.7's "permitted only if the controller
// explicitly tolerates it".
func NewCompoundJob(name string, tolerant bool) *CompoundJob {
	return &CompoundJob{
		Name:     name,
		tolerant: tolerant,
		actions:  make(map[string]*Action),
		doneCh:   make(chan struct{}),
	}
}

// AddAction wires a new custom action into the DAG, with parentNames
// naming already-added actions it depends on. It starts Ready if it
// has no parents, NotReady otherwise.
func (j *CompoundJob) AddAction(name string, parentNames []string, execute ActionFunc, terminate TerminateFunc) (*Action, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.submitted {
		return nil, simerr.New(simerr.InvalidArgument, j.Name)
	}
	if _, exists := j.actions[name]; exists {
		return nil, simerr.New(simerr.InvalidArgument, j.Name)
	}
	parents := make([]*Action, 0, len(parentNames))
	for _, pn := range parentNames {
		parent, ok := j.actions[pn]
		if !ok {
			return nil, simerr.New(simerr.InvalidArgument, j.Name)
		}
		parents = append(parents, parent)
	}

	act := newAction(name, execute, terminate)
	act.job = j
	act.parents = parents
	if len(parents) == 0 {
		act.state = Ready
	}
	for _, parent := range parents {
		parent.children = append(parent.children, act)
	}

	j.actions[name] = act
	j.order = append(j.order, name)
	return act, nil
}

// AddFileReadAction is a convenience ActionFunc wrapping a file read
// against any fileReader (a storage.Service or a proxy.Proxy),
// matching Controller.cpp's addFileReadAction worked example.
func (j *CompoundJob) AddFileReadAction(name string, reader fileReader, loc model.FileLocation, numBytes int64, parentNames ...string) (*Action, error) {
	return j.AddAction(name, parentNames, func(a *actor.Actor) error {
		return reader.Read(name, loc, numBytes)
	}, nil)
}

// AddFileWriteAction is the write-side counterpart of
// AddFileReadAction.
func (j *CompoundJob) AddFileWriteAction(name string, writer fileWriter, loc model.FileLocation, file *model.File, parentNames ...string) (*Action, error) {
	return j.AddAction(name, parentNames, func(a *actor.Actor) error {
		return writer.Write(name, loc, file)
	}, nil)
}

// AddComputeAction is a convenience ActionFunc that sleeps for
// flops/host.FlopsPerCore simulated seconds — a pure compute action
// with no I/O, the other half of the worked example's job shape.
func (j *CompoundJob) AddComputeAction(name string, flops float64, parentNames ...string) (*Action, error) {
	return j.AddAction(name, parentNames, func(a *actor.Actor) error {
		rate := a.Host.FlopsPerCore
		if rate <= 0 {
			return nil
		}
		a.Sleep(flops / rate)
		return nil
	}, nil)
}

// MarkSubmitted flags the job as submitted to a batch service, after
// which AddAction (and its AddComputeAction/AddFileReadAction/
// AddFileWriteAction convenience wrappers) refuse to extend the DAG.
// Returns simerr.InvalidArgument if the job was already submitted.
func (j *CompoundJob) MarkSubmitted() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.submitted {
		return simerr.New(simerr.InvalidArgument, j.Name)
	}
	j.submitted = true
	return nil
}

// Action looks up a named action.
func (j *CompoundJob) Action(name string) (*Action, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	a, ok := j.actions[name]
	return a, ok
}

// ReadyActions returns every action currently in state Ready, in
// insertion order.
func (j *CompoundJob) ReadyActions() []*Action {
	j.mu.Lock()
	defer j.mu.Unlock()
	var ready []*Action
	for _, name := range j.order {
		if a := j.actions[name]; a.State() == Ready {
			ready = append(ready, a)
		}
	}
	return ready
}

// Actions returns every action in the job, in insertion order.
func (j *CompoundJob) Actions() []*Action {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Action, 0, len(j.order))
	for _, name := range j.order {
		out = append(out, j.actions[name])
	}
	return out
}

// onActionSettled is called by Action.Run/Kill once an action reaches
// a terminal state. A completed action promotes any child whose
// parents have all now completed from NotReady to Ready; a
// failed/killed action instead cascades Killed to every descendant
// that can now never become ready, so the job always eventually
// settles. Done() closes once every action has settled.
func (j *CompoundJob) onActionSettled(settled *Action, state State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.settleLocked(settled, state)
}

func (j *CompoundJob) settleLocked(settled *Action, state State) {
	j.settledCount++
	if state == Completed {
		for _, child := range settled.children {
			child.mu.Lock()
			if child.state == NotReady && child.parentsAllCompletedLocked() {
				child.state = Ready
			}
			child.mu.Unlock()
		}
	} else {
		j.anyUnhappy = true
		j.cascadeKillLocked(settled)
	}

	if j.settledCount >= len(j.actions) {
		select {
		case <-j.doneCh:
		default:
			close(j.doneCh)
		}
	}
}

// cascadeKillLocked marks every still-pending descendant of settled as
// Killed, since it can now never satisfy its parents. Each descendant
// is visited at most once: a child already Killed by another path is
// skipped, which also keeps settledCount from double-counting it.
func (j *CompoundJob) cascadeKillLocked(settled *Action) {
	for _, child := range settled.children {
		child.mu.Lock()
		if child.state != NotReady && child.state != Ready {
			child.mu.Unlock()
			continue
		}
		child.state = Killed
		child.failureCause = simerr.New(simerr.JobKilled, child.Name)
		child.mu.Unlock()

		j.settledCount++
		j.cascadeKillLocked(child)
	}
}

// Done reports the channel that closes once every action in the job
// has reached a terminal state.
func (j *CompoundJob) Done() <-chan struct{} {
	return j.doneCh
}

// Outcome reports the job's own terminal state, per spec §4.7: Running
// until every action has settled; then Completed, Failed, or (only for
// a tolerant job) PartiallyCompleted.
func (j *CompoundJob) Outcome() Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.settledCount < len(j.actions) {
		return Running
	}
	if !j.anyUnhappy {
		return JobCompleted
	}
	if j.tolerant {
		return PartiallyCompleted
	}
	return JobFailed
}
