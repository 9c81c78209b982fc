package batch

import (
	"encoding/json"
	"strconv"

	"github.com/cuemby/simforge/pkg/simerr"
)

// PlacementPolicy selects which queued submission a dispatch pass
// considers, per spec §4.8.
type PlacementPolicy string

const (
	// FCFS only ever considers the queue head; if it doesn't fit, the
	// whole queue blocks until cores free up. This is the default.
	FCFS PlacementPolicy = "fcfs"
	// BestFit scans the queue in submission order each pass and starts
	// every job that currently fits, leaving non-fitting jobs queued
	// without blocking jobs behind them — so a small job behind a big
	// one can still run early (spec §8 scenario 1). Multi-node jobs are
	// placed on whichever hosts leave the smallest leftover hole.
	BestFit PlacementPolicy = "bestfit"
)

// SubmissionArgs is a batch submission's three recognised knobs, per
// spec §6: -N (nodes), -c (cores per node), -t (wallclock minutes).
type SubmissionArgs struct {
	Nodes            int
	CoresPerNode     int
	WallclockMinutes int
}

// WallclockSeconds converts the submission's wallclock budget to the
// clock's native unit.
func (a SubmissionArgs) WallclockSeconds() float64 {
	return float64(a.WallclockMinutes) * 60
}

// ParseSubmissionArgs decodes the spec's three-key argument map
// (exactly "-N", "-c", "-t"); any missing or non-integer value is
// InvalidArgument, per spec §6 and §8 scenario 6.
func ParseSubmissionArgs(args map[string]string) (SubmissionArgs, error) {
	var out SubmissionArgs
	raw, ok := args["-N"]
	if !ok {
		return out, simerr.New(simerr.InvalidArgument, "batch")
	}
	nodes, err := strconv.Atoi(raw)
	if err != nil {
		return out, simerr.New(simerr.InvalidArgument, "batch")
	}

	raw, ok = args["-c"]
	if !ok {
		return out, simerr.New(simerr.InvalidArgument, "batch")
	}
	cores, err := strconv.Atoi(raw)
	if err != nil {
		return out, simerr.New(simerr.InvalidArgument, "batch")
	}

	raw, ok = args["-t"]
	if !ok {
		return out, simerr.New(simerr.InvalidArgument, "batch")
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		return out, simerr.New(simerr.InvalidArgument, "batch")
	}

	if nodes <= 0 || cores <= 0 || minutes <= 0 {
		return out, simerr.New(simerr.InvalidArgument, "batch")
	}

	out.Nodes, out.CoresPerNode, out.WallclockMinutes = nodes, cores, minutes
	return out, nil
}

// controlEnvelope is the wire wrapper every message on a Service's
// control mailbox carries, mirroring BatchServiceMessage's shared base
// with a discriminated payload instead of a C++ class hierarchy.
type controlEnvelope struct {
	Kind    string `json:"kind"`
	Payload []byte `json:"payload"`
}

const (
	kindSubmit        = "submit"
	kindActionSettled = "action_settled"
	kindAlarmTimeout  = "alarm_timeout"
	kindPilotExpire   = "pilot_expire"
)

// submitMessage is BatchServiceJobRequestMessage's analogue: the
// accepted submission's shape plus where to report its outcome.
type submitMessage struct {
	JobID            string            `json:"job_id"`
	Args             SubmissionArgs    `json:"args"`
	SubmitterMailbox string            `json:"submitter_mailbox"`
	Overrides        map[string]string `json:"overrides,omitempty"`
	SubmittedAt      float64           `json:"submitted_at"`
}

// actionSettledMessage is sent by an action-executor actor once
// Action.Run returns, so every reservation mutation stays serialized
// inside the control loop.
type actionSettledMessage struct {
	JobID  string `json:"job_id"`
	Action string `json:"action"`
}

// alarmTimeoutMessage is AlarmJobTimeOutMessage's analogue: the single
// per-reservation wall-clock alarm firing.
type alarmTimeoutMessage struct {
	JobID string `json:"job_id"`
}

type pilotExpireMessage struct {
	PilotID string `json:"pilot_id"`
}

// EventEnvelope is the wire wrapper every event a Service publishes to a
// submitter/controller mailbox carries, so a receiver — notably
// pkg/controller's WaitForNextEvent — can tell which concrete event type
// Payload decodes to before decoding it, mirroring controlEnvelope's
// discriminated-payload shape on the service's own control mailbox.
type EventEnvelope struct {
	Kind    string `json:"kind"`
	Payload []byte `json:"payload"`
}

const (
	EventKindCompoundJobCompleted = "compound_job_completed"
	EventKindCompoundJobFailed    = "compound_job_failed"
	EventKindPilotJobStarted      = "pilot_job_started"
	EventKindPilotJobExpired      = "pilot_job_expired"
)

// Event is satisfied by every event type a Service can publish; it exists
// only to let publishEvent attach the right Kind discriminator.
type Event interface {
	eventKind() string
}

// CompoundJobCompletedEvent is reported to a job's submitter mailbox
// once every action in it completed, per spec §4.8/§8 scenario 1.
type CompoundJobCompletedEvent struct {
	JobID string `json:"job_id"`
}

func (CompoundJobCompletedEvent) eventKind() string { return EventKindCompoundJobCompleted }

// CompoundJobFailedEvent is reported once a job can no longer complete:
// the first action that failed (if any — a pure timeout names none),
// and the cause kind/service attribution, per spec §7's propagation
// policy.
type CompoundJobFailedEvent struct {
	JobID         string `json:"job_id"`
	FailingAction string `json:"failing_action,omitempty"`
	Cause         string `json:"cause"`
	Service       string `json:"service,omitempty"`
}

func (CompoundJobFailedEvent) eventKind() string { return EventKindCompoundJobFailed }

// PilotJobStartedEvent reports a pilot reservation's nested service
// coming up.
type PilotJobStartedEvent struct {
	PilotID string `json:"pilot_id"`
}

func (PilotJobStartedEvent) eventKind() string { return EventKindPilotJobStarted }

// PilotJobExpiredEvent reports a pilot reservation's window closing,
// whether by natural expiry or explicit Terminate.
type PilotJobExpiredEvent struct {
	PilotID string `json:"pilot_id"`
}

func (PilotJobExpiredEvent) eventKind() string { return EventKindPilotJobExpired }

// DecodeEventEnvelope unwraps a published event's wire envelope,
// returning its kind discriminator and raw payload for the caller to
// unmarshal into the matching concrete event type.
func DecodeEventEnvelope(body []byte) (kind string, payload []byte, err error) {
	var env EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, err
	}
	return env.Kind, env.Payload, nil
}
