/*
Package statemgr is the state manager: the orchestration layer between
external events (framework status updates, administrative RPCs) and
the per-task state machines in pkg/statemachine.

Manager opens a write transaction on a storage.Store, materializes the
affected task(s) into statemachine.Machine values, drives each through
updateState, collects the work commands they emit on the transaction's
workqueue.Queue, and drains that queue against the mutable store before
the transaction commits — looping until the queue runs dry, since
draining a RESCHEDULE/UPDATE/ROLLBACK command inserts a fresh task that
itself must be driven to PENDING. External side effects (a driver
kill, a published event) are buffered on the storage.Transaction and
only actually run once the underlying commit has succeeded.

Task ids are generated here:
<epochMillis>-<role>-<jobName>-<shardId>-<uuid>, with every character
outside [A-Za-z0-9_-] replaced by a dash. Chronological sort of ids
reflects creation order.
*/
package statemgr
