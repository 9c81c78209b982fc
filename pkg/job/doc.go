/*
Package job implements the compound-job/action DAG (C9): a CompoundJob
is a set of named Actions wired into a dependency graph, each carrying
its own {not_ready, ready, started, completed, failed, killed} state
machine and an execution-history stack, per spec §4.7.

There is no close teacher equivalent — warren's Task is a flat
service->task fan-out with no dependency graph — so the DAG-walk shape
is adapted from pkg/scheduler's reconciliation-loop idiom
(list-desired, compute-diff, act) rather than lifted wholesale: here the
"diff" is "which actions just became ready because every parent
completed", recomputed by CompoundJob.onActionSettled every time an
action finishes.

Actions don't run themselves — a compute service (pkg/batch) calls
Action.Run once it has assigned resources, passing the pkg/actor.Actor
hosting the run so the action's ActionFunc can sleep/read/write exactly
like any other simulated workload. Custom actions
(examples/action_api/storage-service-proxy/Controller.cpp's
addFileReadAction is the worked example this generalizes) are just an
ActionFunc/TerminateFunc pair the caller supplies directly; the
convenience constructors (AddFileReadAction, AddFileWriteAction,
AddComputeAction) are ActionFunc closures over pkg/storage/pkg/proxy
and a flops/core sleep, built the same way.

CompoundJob itself reports only its own state once every action has
settled (Completed/Failed/PartiallyCompleted) — publishing the
corresponding CompoundJobCompletedEvent/CompoundJobFailedEvent to a
controller's mailbox is pkg/batch's job, since spec §4.8 makes the
compute service the one that emits it, not the job.
*/
package job
