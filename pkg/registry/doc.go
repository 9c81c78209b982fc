/*
Package registry implements the file registry (C12): a process-wide
directory of file -> set of locations.

Registry narrows the teacher's pkg/storage.Store interface (one CRUD
method set per cluster resource type, backed by BoltDB) down to a single
relation backed by a plain map, since a simulation has exactly one kind
of record to track here and never persists it across runs. AddEntry and
RemoveEntry are idempotent, per §4.10 and the same idiom as
pkg/storage.Service.Delete. Lookup returns a snapshot slice under lock,
so a caller never observes a registry entry disappearing mid-iteration.

Mutations are serialised by a mutex rather than by routing through an
actor's own control mailbox (contrast pkg/batch, whose control loop has
genuine interleaved async work to order): add/remove/lookup are each a
single uncontended map operation, so a mutex gives the same
serialisation spec §4.10 asks for with none of a message-passing
control loop's overhead. Registry still runs a pkg/actor.Actor purely
for lifecycle symmetry with every other long-lived service (Start/Stop/
Kill/IsDown), matching pkg/storage.Service's own lifecycle-actor-plus-
mutex shape.

When a network-proximity probe is registered (RegisterProximityProbe),
Lookup sorts the location set for a given origin host by estimated
distance, cheapest first, ties broken by location string for
determinism. Distance estimates are cached per (origin host, location
host) pair in a bounded LRU (github.com/hashicorp/golang-lru/v2), since
a probe's own estimate is assumed to be at least as expensive as a cache
hit and the same pair is looked up repeatedly across a run. This is a
different cache from pkg/memory's hand-rolled two-queue page cache: that
one has load-bearing active/inactive/dirty/flush semantics; this one is
an incidental bounded memo with no eviction semantics beyond
least-recently-used, so a library is the right tool.
*/
package registry
