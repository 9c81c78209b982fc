// Package trace writes the append-only event journal a simforge run
// produces. Spec §6 describes a run's only durable output as "a
// trace/output document" and states plainly that simulation state is
// never read back between runs. bbolt gives that one-way journal real
// durability (fsync'd, crash-safe) without turning it into a second
// source of truth: the journal has exactly one writer (the run that
// produced it) and exactly one reader (the standalone "trace dump"
// inspection path), and the two never run against the same file at
// once.
//
// Grounded on pkg/storage.BoltStore in the teacher repo, which opens
// one bolt.DB per data directory and keeps one bucket per entity kind.
// This package repurposes that shape for a single run instead of a
// live store: one bucket per run (named after the run's ID, so a
// single .db file can in principle hold more than one run's journal),
// keyed by the bucket's monotonically increasing sequence number
// rather than an entity ID, since trace records have no identity of
// their own beyond "the Nth thing that happened."
//
// A Writer only ever calls Put inside an Update transaction — there is
// no Get, no Delete, no update-in-place. Records are immutable once
// appended. Reading a journal back (for "simforge trace dump") uses
// the separate Reader type so the write path carries no read methods
// to misuse from inside a running simulation.
package trace
