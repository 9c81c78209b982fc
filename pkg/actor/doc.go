/*
Package actor implements the simulated daemon lifecycle (C3) every
service in simforge runs on top of: storage services, proxies, the batch
scheduler, and controllers are all one Body function hosted by an Actor.

An Actor moves down → up → down exactly once per Start/terminate cycle,
mirroring pkg/worker.Worker's Start/Stop/stopCh shape from the teacher,
generalized from "the one worker process" to "any simulated service
instance pinned to a model.Host". Start registers the actor with the
clock via clock.Spawn and runs Body in its own goroutine; Stop asks it to
wind down cooperatively (the body must poll Stopping()); Kill is the
harsher, asynchronous form used by something else in the simulation (a
batch service whose reservation expired, a proxy's dead remote) — it
marks the actor down immediately and fails its mailbox so any pending
Put/Get against it surfaces simerr.ServiceIsDown right away, per §4.2.
*/
package actor
