/*
Package storage implements the simple storage service (C5) and the
file-transfer thread it spawns per transfer (C6).

A Service owns one or more disks (model.Disk, addressed by mountpoint) on
a model.Host and runs as a pkg/actor.Actor so it has the usual
down/up/down lifecycle. Lookup, CreateFile, and Delete are plain
synchronous calls against the service's file map. Read, Write, and the
package-level Copy instead spawn a one-shot fileTransferThread, modeled
on FileTransferThread.h/FileTransferThreadMessage.h from the original
implementation: the thread sleeps for num_bytes/bandwidth virtual
seconds, then commits the transfer's effect (a write's reservation
becoming a committed file, a copy's destination file appearing) and
publishes a single notification to the caller's private answer mailbox.
The calling actor blocks on that mailbox, the same pattern pkg/mailbox's
own tests use to show one actor waiting on another.

Kill on the hosting actor propagates to any transfer thread still in
flight: fileTransferThread races the simulated transfer time against the
actor's Stopping() channel and reports simerr.ServiceIsDown if the kill
wins, per §5's cancellation rule.

Copy between two different Services is a package-level function because
one Service has no reference to another; when both locations name the
same Service it collapses to a single local transfer instead of two, per
§4.4's "avoids instantiating two transfers" rule.

This package replaces the teacher's BoltDB-backed cluster-state store
entirely — nodes, container services, and ingress state have no
counterpart in a discrete-event simulation, so nothing here is adapted
from that store beyond its file layout conventions (see DESIGN.md).
*/
package storage
