/*
Package controller implements the controller event loop (C11): a
personal mailbox, a tagged-union Event decoded off it, and
WaitForNextEvent/WaitForAndProcessNextEvent, per spec §4.9.

A Controller is itself an actor (spec: "Controllers are themselves
actors; they may run concurrently with other controllers but never
observe each other mid-step"), built the same way pkg/batch.Service
wraps one: New binds a personal mailbox and an underlying
pkg/actor.Actor, and Start registers it with the clock and runs the
caller's driver function as that actor's body.

Every event a pkg/batch.Service publishes — CompoundJobCompleted,
CompoundJobFailed, PilotJobStarted, PilotJobExpired — already carries
batch.EventEnvelope's {Kind, Payload} discriminator; WaitForNextEvent
decodes that Kind to populate exactly one field of the returned Event.
FileCopyCompleted/FileCopyFailed and Timer use the same envelope shape,
published by SubmitFileCopy and ScheduleTimer respectively, so a
controller can race a copy or a self-scheduled wakeup against compute
events without a second, differently-shaped channel to select on.

WaitForAndProcessNextEvent dispatches to whichever field of a Handlers
value is non-nil for the event's kind; an event with no matching
handler is silently dropped, mirroring Controller.cpp's default no-op
event handlers that a subclass overrides selectively.
*/
package controller
