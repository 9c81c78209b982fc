package controller

import (
	"encoding/json"

	"github.com/cuemby/simforge/pkg/batch"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/simerr"
)

// EventKind discriminates which field of an Event is populated.
type EventKind string

const (
	EventKindCompoundJobCompleted EventKind = EventKind(batch.EventKindCompoundJobCompleted)
	EventKindCompoundJobFailed    EventKind = EventKind(batch.EventKindCompoundJobFailed)
	EventKindPilotJobStarted      EventKind = EventKind(batch.EventKindPilotJobStarted)
	EventKindPilotJobExpired      EventKind = EventKind(batch.EventKindPilotJobExpired)
	EventKindFileCopyCompleted    EventKind = "file_copy_completed"
	EventKindFileCopyFailed       EventKind = "file_copy_failed"
	EventKindTimer                EventKind = "timer"
)

// FileCopyCompletedEvent reports an async copy started via
// Controller.SubmitFileCopy finishing without error.
type FileCopyCompletedEvent struct {
	CopyID string `json:"copy_id"`
}

// FileCopyFailedEvent is FileCopyCompletedEvent's failure counterpart.
type FileCopyFailedEvent struct {
	CopyID string `json:"copy_id"`
	Cause  string `json:"cause"`
}

// TimerEvent reports a self-scheduled wakeup registered via
// Controller.ScheduleTimer firing.
type TimerEvent struct {
	Name string `json:"name"`
}

// Event is the tagged union WaitForNextEvent returns: exactly one field
// is non-nil, matching Kind, per spec §4.9's "{CompoundJobCompleted,
// CompoundJobFailed, PilotJobStarted, PilotJobExpired, FileCopyCompleted,
// FileCopyFailed, Timer, …}".
type Event struct {
	Kind EventKind

	CompoundJobCompleted *batch.CompoundJobCompletedEvent
	CompoundJobFailed    *batch.CompoundJobFailedEvent
	PilotJobStarted      *batch.PilotJobStartedEvent
	PilotJobExpired      *batch.PilotJobExpiredEvent
	FileCopyCompleted    *FileCopyCompletedEvent
	FileCopyFailed       *FileCopyFailedEvent
	Timer                *TimerEvent
}

// Handlers is the set of overridable per-variant callbacks
// WaitForAndProcessNextEvent dispatches to. A nil field means that event
// kind is silently ignored.
type Handlers struct {
	OnCompoundJobCompleted func(batch.CompoundJobCompletedEvent)
	OnCompoundJobFailed    func(batch.CompoundJobFailedEvent)
	OnPilotJobStarted      func(batch.PilotJobStartedEvent)
	OnPilotJobExpired      func(batch.PilotJobExpiredEvent)
	OnFileCopyCompleted    func(FileCopyCompletedEvent)
	OnFileCopyFailed       func(FileCopyFailedEvent)
	OnTimer                func(TimerEvent)
}

func decodeEvent(env mailbox.Envelope) (Event, error) {
	kind, payload, err := batch.DecodeEventEnvelope(env.Body)
	if err != nil {
		return Event{}, simerr.Wrap(simerr.InternalError, "controller", err)
	}

	ev := Event{Kind: EventKind(kind)}
	switch EventKind(kind) {
	case EventKindCompoundJobCompleted:
		var v batch.CompoundJobCompletedEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return Event{}, simerr.Wrap(simerr.InternalError, "controller", err)
		}
		ev.CompoundJobCompleted = &v
	case EventKindCompoundJobFailed:
		var v batch.CompoundJobFailedEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return Event{}, simerr.Wrap(simerr.InternalError, "controller", err)
		}
		ev.CompoundJobFailed = &v
	case EventKindPilotJobStarted:
		var v batch.PilotJobStartedEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return Event{}, simerr.Wrap(simerr.InternalError, "controller", err)
		}
		ev.PilotJobStarted = &v
	case EventKindPilotJobExpired:
		var v batch.PilotJobExpiredEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return Event{}, simerr.Wrap(simerr.InternalError, "controller", err)
		}
		ev.PilotJobExpired = &v
	case EventKindFileCopyCompleted:
		var v FileCopyCompletedEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return Event{}, simerr.Wrap(simerr.InternalError, "controller", err)
		}
		ev.FileCopyCompleted = &v
	case EventKindFileCopyFailed:
		var v FileCopyFailedEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return Event{}, simerr.Wrap(simerr.InternalError, "controller", err)
		}
		ev.FileCopyFailed = &v
	case EventKindTimer:
		var v TimerEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return Event{}, simerr.Wrap(simerr.InternalError, "controller", err)
		}
		ev.Timer = &v
	default:
		return Event{}, simerr.New(simerr.InternalError, "controller")
	}
	return ev, nil
}

func dispatch(h Handlers, ev Event) {
	switch ev.Kind {
	case EventKindCompoundJobCompleted:
		if h.OnCompoundJobCompleted != nil {
			h.OnCompoundJobCompleted(*ev.CompoundJobCompleted)
		}
	case EventKindCompoundJobFailed:
		if h.OnCompoundJobFailed != nil {
			h.OnCompoundJobFailed(*ev.CompoundJobFailed)
		}
	case EventKindPilotJobStarted:
		if h.OnPilotJobStarted != nil {
			h.OnPilotJobStarted(*ev.PilotJobStarted)
		}
	case EventKindPilotJobExpired:
		if h.OnPilotJobExpired != nil {
			h.OnPilotJobExpired(*ev.PilotJobExpired)
		}
	case EventKindFileCopyCompleted:
		if h.OnFileCopyCompleted != nil {
			h.OnFileCopyCompleted(*ev.FileCopyCompleted)
		}
	case EventKindFileCopyFailed:
		if h.OnFileCopyFailed != nil {
			h.OnFileCopyFailed(*ev.FileCopyFailed)
		}
	case EventKindTimer:
		if h.OnTimer != nil {
			h.OnTimer(*ev.Timer)
		}
	}
}
