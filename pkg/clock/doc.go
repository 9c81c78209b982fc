/*
Package clock implements simforge's event kernel and virtual clock (C1).

The clock is the one source of truth for simulated time: it only ever
moves forward, and only ever moves when every registered actor has
suspended. Actors are ordinary goroutines, but they are cooperative by
construction — each one must hold the kernel's single run "turn" to
execute any logic, and must give the turn back at its next suspension
point (Sleep, or a mailbox wait via pkg/mailbox). This gives the
simulation SimGrid/WRENCH-style semantics (§5: "any actor runs to its next
suspension point atomically with respect to others") on top of ordinary
Go goroutines and a sync.Cond, without a custom scheduler or generators.

	┌─────────────── Clock ───────────────┐
	│  now (virtual time, monotone)        │
	│  turn held by: at most one actor      │
	│  pending timers: min-heap by (at,seq) │
	└──────────────────┬────────────────────┘
	                   │ turn released, no actor ready
	                   ▼
	          pop earliest timer, now = timer.at, fire it

Join/Leave register and deregister actors. Sleep parks the calling actor
on a timer. pkg/mailbox uses SuspendUntil (with a ScheduleTimer timeout
for GetWithTimeout) and the lower-level ready/turn primitives for message-arrival wakeups, so that a
mailbox Put can hand the turn directly to a waiting Get without going
through the timer heap at all.
*/
package clock
