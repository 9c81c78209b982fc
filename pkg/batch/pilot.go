package batch

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/simerr"
)

// pilotState tracks one active pilot reservation: the hosts/cores it
// holds for its window, and the nested Service scoped to exactly that
// shape.
type pilotState struct {
	pilotID          string
	coresPerNode     int
	hosts            []*model.Host
	nested           *Service
	submitterMailbox string
}

// SubmitPilot reserves args.Nodes hosts at args.CoresPerNode cores each
// for windowSeconds and spins up a nested Service scoped to that
// reservation. It returns the nested Service immediately: submissions
// into the pilot are ordinary Submit calls against it, accepted only
// until the window closes, per spec §4.8's pilot-jobs paragraph. Like
// Service.Start, the caller must currently hold the clock's turn.
func (s *Service) SubmitPilot(args SubmissionArgs, windowSeconds float64, submitterMailbox string) (*Service, error) {
	if args.Nodes <= 0 || args.CoresPerNode <= 0 {
		return nil, simerr.New(simerr.InvalidArgument, s.Name)
	}
	if args.CoresPerNode > s.maxHostCores() {
		return nil, simerr.New(simerr.NotEnoughResources, s.Name)
	}

	s.mu.Lock()
	picks, ok := pickHosts(s.policy, s.candidates, s.freeCores, args.Nodes, args.CoresPerNode)
	if !ok {
		s.mu.Unlock()
		return nil, simerr.New(simerr.NotEnoughResources, s.Name)
	}
	nestedHosts := make([]*model.Host, 0, len(picks))
	for _, p := range picks {
		s.freeCores[p.hostName] -= args.CoresPerNode
		h := s.hostsByName[p.hostName]
		nestedHosts = append(nestedHosts, &model.Host{
			Name:         h.Name,
			Cores:        args.CoresPerNode,
			MemoryBytes:  h.MemoryBytes,
			FlopsPerCore: h.FlopsPerCore,
			Disks:        h.Disks,
		})
	}
	pilotID := uuid.NewString()
	nested := NewService(pilotID+"_nested", nestedHosts, s.policy, s.clock, s.mbox)
	nested.Start()

	s.pilots[pilotID] = &pilotState{
		pilotID:          pilotID,
		coresPerNode:     args.CoresPerNode,
		hosts:            make([]*model.Host, len(picks)),
		nested:           nested,
		submitterMailbox: submitterMailbox,
	}
	for i, p := range picks {
		s.pilots[pilotID].hosts[i] = s.hostsByName[p.hostName]
	}
	s.mu.Unlock()

	s.publishEvent(submitterMailbox, PilotJobStartedEvent{PilotID: pilotID})
	s.armPilotWindow(pilotID, windowSeconds)
	return nested, nil
}

// armPilotWindow schedules the pilot's single window-expiry alarm.
func (s *Service) armPilotWindow(pilotID string, windowSeconds float64) {
	s.clock.Spawn(func() {
		defer s.clock.Leave()
		s.clock.Sleep(windowSeconds)
		msg := pilotExpireMessage{PilotID: pilotID}
		payload, err := json.Marshal(msg)
		if err != nil {
			return
		}
		env := controlEnvelope{Kind: kindPilotExpire, Payload: payload}
		data, err := json.Marshal(env)
		if err != nil {
			return
		}
		_ = s.mbox.Put(s.controlMailbox, s.Name, 0, data)
	})
}

// TerminatePilot expires a pilot reservation early, exactly like window
// expiry: its nested service is killed, any job still running inside it
// fails with ServiceIsDown pointing at this outer service, and its
// hosts/cores are freed, per spec §8 scenario 3. Like Service.Start, the
// caller must currently hold the clock's turn.
func (s *Service) TerminatePilot(pilotID string) {
	s.handlePilotExpire(pilotID)
}

func (s *Service) handlePilotExpire(pilotID string) {
	s.mu.Lock()
	p, ok := s.pilots[pilotID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pilots, pilotID)
	for _, h := range p.hosts {
		s.freeCores[h.Name] += p.coresPerNode
	}
	s.mu.Unlock()

	p.nested.KillWithCause(simerr.ServiceIsDown, s.Name)
	s.publishEvent(p.submitterMailbox, PilotJobExpiredEvent{PilotID: pilotID})
	s.tryDispatch()
}
