/*
Package statemachine implements the per-task ScheduleStatus state
machine: the thing that decides, for one task, whether a requested
transition is legal and what deferred work it emits.

A Machine is constructed fresh inside a write transaction from the
task's current persisted record (or with a nil record, representing a
status report for a task the store has never heard of) and discarded
at the end of that transaction — it is never itself persisted. Every
effective transition appends a task event and enqueues a work command
on the supplied WorkSink; illegal and no-op transitions enqueue
nothing and are reported back to the caller as a plain false.
*/
package statemachine
