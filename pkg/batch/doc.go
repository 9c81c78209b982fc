/*
Package batch implements the batch compute service (C10): a queue-backed
scheduler that reserves whole hosts' cores against a pkg/job.CompoundJob
and runs its actions to completion, per spec §4.8.

Submission validation (missing -N/-c/-t, or cores_per_node that no
candidate host could ever satisfy) happens synchronously inside Submit,
on the caller's own turn — nothing about it depends on queue state. Once
accepted, a submission becomes a typed message
(BatchServiceMessage.h's BatchServiceJobRequestMessage is the worked
example) delivered to the service's own control mailbox, so every
mutation of queue/reservation/free-core state happens serialized inside
the service's single control-loop actor, mirroring spec §5's "registry
updates are serialised by its actor" rule generalized to this service's
own bookkeeping. A sync.Mutex additionally guards that state, since Go
goroutines (unlike the simulated actors they host) really can run in
parallel.

Placement is FCFS (only the queue head is considered; it blocks the
queue until cores free up) or BESTFIT (the queue is scanned in
submission order each pass; any job that currently fits is started,
leaving non-fitting jobs queued without blocking jobs behind them, so a
small job can jump ahead of a larger one still waiting for cores — spec
§8 scenario 1). Under BESTFIT, the hosts chosen for a job are whichever
have the smallest fitting hole, ties broken by lowest host name; FCFS
takes the first fitting hosts in candidate order. Wall-clock expiry is
a single alarm per reservation racing pkg/job.CompoundJob.Done() via
clock.SuspendUntil, exactly like pkg/storage/transfer.go's
fileTransferThread races a transfer's duration against Stopping() — on
expiry it kills every action-executor still running and reports
CompoundJobFailedEvent{cause=JobTimeout}.

Pilot jobs (pilot.go) reserve a shape of hosts/cores for a window and
spin up a second, fully independent Service scoped to exactly that
shape; standard jobs submitted into the pilot are ordinary Submits
against the nested service. At window expiry the nested service is
force-stopped via KillWithCause, which fails every job still active
inside it with ServiceIsDown attributed to the outer service's name,
per spec §4.8's pilot-expiry paragraph.
*/
package batch
