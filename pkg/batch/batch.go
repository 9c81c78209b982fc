package batch

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/simforge/pkg/actor"
	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/job"
	"github.com/cuemby/simforge/pkg/log"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/metrics"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/simerr"
)

// reservation is one accepted, not-yet-finalized submission: the hosts
// it holds, which of its actions already have an executor spawned, and
// where to report its outcome.
type reservation struct {
	jobID            string
	job              *job.CompoundJob
	args             SubmissionArgs
	submitterMailbox string
	overrides        map[string]string
	hosts            []*model.Host
	dispatched       map[string]bool
	executors        []*actor.Actor
	nextHost         int
	finalized        bool
}

// Service is a batch compute service (C10): a named control-loop actor
// fronting a fixed pool of candidate hosts, dispatching queued
// CompoundJob submissions onto reserved cores under a PlacementPolicy.
type Service struct {
	Name   string
	policy PlacementPolicy

	clock *clock.Clock
	mbox  *mailbox.System
	log   zerolog.Logger

	svcActor       *actor.Actor
	controlMailbox string

	hosts       []*model.Host
	hostsByName map[string]*model.Host
	candidates  []string // host names, stable order, used as FCFS/BestFit scan order

	mu        sync.Mutex
	freeCores map[string]int
	queue     []*submitMessage
	active    map[string]*reservation
	pilots    map[string]*pilotState

	jobsByID sync.Map // job id -> *job.CompoundJob, written by Submit, read by the control loop
}

// NewService builds a batch service over the given candidate hosts.
// The returned Service starts down; call Start once the caller holds
// the clock's turn.
func NewService(name string, hosts []*model.Host, policy PlacementPolicy, clk *clock.Clock, mboxSys *mailbox.System) *Service {
	hostsByName := make(map[string]*model.Host, len(hosts))
	freeCores := make(map[string]int, len(hosts))
	candidates := make([]string, 0, len(hosts))
	for _, h := range hosts {
		hostsByName[h.Name] = h
		freeCores[h.Name] = h.Cores
		candidates = append(candidates, h.Name)
	}
	if policy == "" {
		policy = FCFS
	}
	for _, h := range hosts {
		metrics.CoresTotal.WithLabelValues(h.Name).Set(float64(h.Cores))
	}
	return &Service{
		Name:           name,
		policy:         policy,
		clock:          clk,
		mbox:           mboxSys,
		log:            log.WithComponent("batch." + name),
		controlMailbox: name + "_batch_mailbox",
		svcActor:       actor.New(name, hosts[0], name+"_batch_mailbox", clk, mboxSys),
		hosts:          hosts,
		hostsByName:    hostsByName,
		candidates:     candidates,
		freeCores:      freeCores,
		active:         make(map[string]*reservation),
		pilots:         make(map[string]*pilotState),
	}
}

// Start brings the control-loop actor up: it processes one message at
// a time from the control mailbox until stopped.
func (s *Service) Start() {
	s.svcActor.Start(func(a *actor.Actor) error {
		for {
			env, err := s.mbox.Get(s.controlMailbox)
			if err != nil {
				return nil
			}
			var ce controlEnvelope
			if jsonErr := json.Unmarshal(env.Body, &ce); jsonErr != nil {
				continue
			}
			s.handleControlMessage(ce)
		}
	})
}

// Stop winds the service down gracefully; Kill forces it down without
// attributing a cause to jobs still in flight (use KillWithCause for
// that, e.g. a pilot's window expiring).
func (s *Service) Stop() { s.svcActor.Stop() }
func (s *Service) Kill() { s.svcActor.Kill() }

// KillWithCause force-stops the service like Kill, but first fails
// every job still active inside it with causeKind attributed to
// causeService — used when an outer batch service's pilot reservation
// window expires, per spec §4.8's pilot-expiry paragraph.
func (s *Service) KillWithCause(causeKind simerr.Kind, causeService string) {
	s.mu.Lock()
	for jobID, res := range s.active {
		for _, exec := range res.executors {
			exec.Kill()
		}
		s.publishFailure(res.submitterMailbox, jobID, "", causeKind, causeService)
	}
	s.active = make(map[string]*reservation)
	s.mu.Unlock()
	s.svcActor.Kill()
}

// IsDown reports whether the service is currently down.
func (s *Service) IsDown() bool { return s.svcActor.State() == actor.StateDown }

func (s *Service) maxHostCores() int {
	max := 0
	for _, h := range s.hosts {
		if h.Cores > max {
			max = h.Cores
		}
	}
	return max
}

// Submit validates and enqueues a CompoundJob for dispatch, returning
// its job id immediately; outcomes are reported asynchronously to
// submitterMailbox as CompoundJobCompletedEvent/CompoundJobFailedEvent.
// Validation is synchronous per spec §4.8/§8 scenarios 5-6.
func (s *Service) Submit(args SubmissionArgs, j *job.CompoundJob, submitterMailbox string, overrides map[string]string) (string, error) {
	if args.Nodes <= 0 || args.CoresPerNode <= 0 || args.WallclockMinutes <= 0 {
		return "", simerr.New(simerr.InvalidArgument, s.Name)
	}
	if args.CoresPerNode > s.maxHostCores() {
		return "", simerr.New(simerr.NotEnoughResources, s.Name)
	}
	if err := j.MarkSubmitted(); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	s.jobsByID.Store(jobID, j)

	msg := submitMessage{JobID: jobID, Args: args, SubmitterMailbox: submitterMailbox, Overrides: overrides, SubmittedAt: s.clock.Now()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", simerr.Wrap(simerr.InternalError, s.Name, err)
	}
	env := controlEnvelope{Kind: kindSubmit, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return "", simerr.Wrap(simerr.InternalError, s.Name, err)
	}
	if err := s.mbox.Put(s.controlMailbox, submitterMailbox, 0, data); err != nil {
		return "", err
	}
	return jobID, nil
}

func (s *Service) handleControlMessage(ce controlEnvelope) {
	switch ce.Kind {
	case kindSubmit:
		var msg submitMessage
		if json.Unmarshal(ce.Payload, &msg) != nil {
			return
		}
		s.handleSubmit(msg)
	case kindActionSettled:
		var msg actionSettledMessage
		if json.Unmarshal(ce.Payload, &msg) != nil {
			return
		}
		s.handleActionSettled(msg)
	case kindAlarmTimeout:
		var msg alarmTimeoutMessage
		if json.Unmarshal(ce.Payload, &msg) != nil {
			return
		}
		s.handleAlarmTimeout(msg)
	case kindPilotExpire:
		var msg pilotExpireMessage
		if json.Unmarshal(ce.Payload, &msg) != nil {
			return
		}
		s.handlePilotExpire(msg.PilotID)
	}
}

func (s *Service) handleSubmit(msg submitMessage) {
	s.mu.Lock()
	s.queue = append(s.queue, &msg)
	metrics.QueueDepth.WithLabelValues(s.Name).Set(float64(len(s.queue)))
	s.mu.Unlock()
	s.tryDispatch()
}

// tryDispatch runs one or more placement passes until the policy can no
// longer place the (new) queue head/any queued job.
func (s *Service) tryDispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.policy {
	case BestFit:
		s.tryDispatchBestFitLocked()
	default:
		s.tryDispatchFCFSLocked()
	}
}

func (s *Service) tryDispatchFCFSLocked() {
	for len(s.queue) > 0 {
		sub := s.queue[0]
		picks, ok := pickHosts(s.policy, s.candidates, s.freeCores, sub.Args.Nodes, sub.Args.CoresPerNode)
		if !ok {
			return
		}
		s.queue = s.queue[1:]
		metrics.QueueDepth.WithLabelValues(s.Name).Set(float64(len(s.queue)))
		s.startReservationLocked(sub, picks)
	}
}

// tryDispatchBestFitLocked scans the queue in submission order, placing
// every job that currently fits (using the smallest-hole host among the
// candidates for that job) and leaving anything that doesn't fit queued
// without blocking jobs behind it — unlike FCFS, a later, smaller job
// can start ahead of an earlier, larger one still waiting for cores to
// free up (spec §8 scenario 1).
func (s *Service) tryDispatchBestFitLocked() {
	i := 0
	for i < len(s.queue) {
		sub := s.queue[i]
		picks, ok := selectHostsBestFit(s.candidates, s.freeCores, sub.Args.Nodes, sub.Args.CoresPerNode)
		if !ok {
			i++
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		metrics.QueueDepth.WithLabelValues(s.Name).Set(float64(len(s.queue)))
		s.startReservationLocked(sub, picks)
	}
}

func pickHosts(policy PlacementPolicy, candidates []string, freeCores map[string]int, nodes, coresPerNode int) ([]hostPick, bool) {
	if policy == BestFit {
		return selectHostsBestFit(candidates, freeCores, nodes, coresPerNode)
	}
	return selectHostsFCFS(candidates, freeCores, nodes, coresPerNode)
}

// startReservationLocked commits cores on the chosen hosts, registers
// the reservation, arms its wall-clock alarm, and dispatches every
// currently-ready action. Caller must hold s.mu.
func (s *Service) startReservationLocked(sub *submitMessage, picks []hostPick) {
	jv, ok := s.jobsByID.Load(sub.JobID)
	if !ok {
		return
	}
	j := jv.(*job.CompoundJob)

	hosts := make([]*model.Host, 0, len(picks))
	for _, p := range picks {
		s.freeCores[p.hostName] -= sub.Args.CoresPerNode
		hosts = append(hosts, s.hostsByName[p.hostName])
		metrics.CoresInUse.WithLabelValues(p.hostName).Add(float64(sub.Args.CoresPerNode))
	}
	metrics.SchedulingLatency.Observe(s.clock.Now() - sub.SubmittedAt)

	res := &reservation{
		jobID:            sub.JobID,
		job:              j,
		args:             sub.Args,
		submitterMailbox: sub.SubmitterMailbox,
		overrides:        sub.Overrides,
		hosts:            hosts,
		dispatched:       make(map[string]bool),
	}
	s.active[sub.JobID] = res

	s.armTimeoutLocked(res)
	s.dispatchReadyActionsLocked(res)
}

// armTimeoutLocked spawns the reservation's single wall-clock alarm,
// racing the job's natural completion via clock.SuspendUntil exactly
// like pkg/storage/transfer.go's fileTransferThread.
func (s *Service) armTimeoutLocked(res *reservation) {
	wallclock := res.args.WallclockSeconds()
	jobID := res.jobID
	doneCh := res.job.Done()
	s.clock.Spawn(func() {
		defer s.clock.Leave()
		timedOut := s.clock.SuspendUntil(doneCh, true, wallclock)
		if !timedOut {
			return
		}
		msg := alarmTimeoutMessage{JobID: jobID}
		payload, err := json.Marshal(msg)
		if err != nil {
			return
		}
		env := controlEnvelope{Kind: kindAlarmTimeout, Payload: payload}
		data, err := json.Marshal(env)
		if err != nil {
			return
		}
		_ = s.mbox.Put(s.controlMailbox, s.Name, 0, data)
	})
}

// hostForAction applies any per-action placement override, otherwise
// round-robins across the reservation's reserved hosts.
func (res *reservation) hostForAction(name string) *model.Host {
	if res.overrides != nil {
		if hostName, ok := res.overrides[name]; ok {
			for _, h := range res.hosts {
				if h.Name == hostName {
					return h
				}
			}
		}
	}
	h := res.hosts[res.nextHost%len(res.hosts)]
	res.nextHost++
	return h
}

// dispatchReadyActionsLocked spawns an action-executor actor for every
// action currently Ready that doesn't have one yet, then finalizes the
// reservation if the job has already settled. Caller must hold s.mu.
func (s *Service) dispatchReadyActionsLocked(res *reservation) {
	for _, a := range res.job.ReadyActions() {
		if res.dispatched[a.Name] {
			continue
		}
		res.dispatched[a.Name] = true
		host := res.hostForAction(a.Name)
		execName := res.jobID + "_" + a.Name
		exec := actor.New(execName, host, execName+"_exec_mailbox", s.clock, s.mbox)
		res.executors = append(res.executors, exec)

		action := a
		jobID := res.jobID
		exec.Start(func(act *actor.Actor) error {
			action.Run(act, host.Name, res.args.CoresPerNode, 0)
			if action.State() == job.Completed {
				metrics.ActionsCompletedTotal.WithLabelValues(s.Name).Inc()
			} else {
				metrics.ActionsFailedTotal.WithLabelValues(s.Name).Inc()
			}
			msg := actionSettledMessage{JobID: jobID, Action: action.Name}
			payload, err := json.Marshal(msg)
			if err != nil {
				return nil
			}
			env := controlEnvelope{Kind: kindActionSettled, Payload: payload}
			data, err := json.Marshal(env)
			if err != nil {
				return nil
			}
			_ = s.mbox.Put(s.controlMailbox, execName, 0, data)
			return nil
		})
	}

	select {
	case <-res.job.Done():
		s.finalizeReservationLocked(res)
	default:
	}
}

func (s *Service) handleActionSettled(msg actionSettledMessage) {
	s.mu.Lock()
	res, ok := s.active[msg.JobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.dispatchReadyActionsLocked(res)
	s.mu.Unlock()
	s.tryDispatch()
}

func (s *Service) handleAlarmTimeout(msg alarmTimeoutMessage) {
	s.mu.Lock()
	res, ok := s.active[msg.JobID]
	if !ok || res.finalized {
		s.mu.Unlock()
		return
	}
	for _, exec := range res.executors {
		exec.Kill()
	}
	res.finalized = true
	delete(s.active, msg.JobID)
	s.freeHostsLocked(res)
	metrics.JobsFailedTotal.WithLabelValues(s.Name, string(simerr.JobTimeout)).Inc()
	s.publishEvent(res.submitterMailbox, CompoundJobFailedEvent{JobID: res.jobID, Cause: string(simerr.JobTimeout)})
	s.mu.Unlock()
	s.tryDispatch()
}

// finalizeReservationLocked reports the job's terminal outcome and
// frees its cores. Caller must hold s.mu throughout and continue to
// hold it after this returns.
func (s *Service) finalizeReservationLocked(res *reservation) {
	if res.finalized {
		return
	}
	res.finalized = true
	delete(s.active, res.jobID)
	s.freeHostsLocked(res)

	switch res.job.Outcome() {
	case job.JobCompleted:
		metrics.JobsCompletedTotal.WithLabelValues(s.Name).Inc()
		s.publishEvent(res.submitterMailbox, CompoundJobCompletedEvent{JobID: res.jobID})
	default:
		failing, cause := firstFailureCause(res.job)
		metrics.JobsFailedTotal.WithLabelValues(s.Name, cause).Inc()
		s.publishEvent(res.submitterMailbox, CompoundJobFailedEvent{JobID: res.jobID, FailingAction: failing, Cause: cause})
	}
}

func firstFailureCause(j *job.CompoundJob) (string, string) {
	for _, a := range j.Actions() {
		if a.State() == job.Failed || a.State() == job.Killed {
			if kind, ok := simerr.Of(a.FailureCause()); ok {
				return a.Name, string(kind)
			}
			return a.Name, string(simerr.InternalError)
		}
	}
	return "", string(simerr.InternalError)
}

func (s *Service) freeHostsLocked(res *reservation) {
	for _, h := range res.hosts {
		s.freeCores[h.Name] += res.args.CoresPerNode
		metrics.CoresInUse.WithLabelValues(h.Name).Sub(float64(res.args.CoresPerNode))
	}
}

func (s *Service) publishEvent(mailboxName string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	env := EventEnvelope{Kind: event.eventKind(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = s.mbox.Put(mailboxName, s.Name, 0, data)
}

func (s *Service) publishFailure(mailboxName, jobID, failingAction string, cause simerr.Kind, service string) {
	s.publishEvent(mailboxName, CompoundJobFailedEvent{
		JobID:         jobID,
		FailingAction: failingAction,
		Cause:         string(cause),
		Service:       service,
	})
}
