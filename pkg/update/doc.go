// Package update implements the rolling-update coordinator:
// registerUpdate, modifyShards, and finishUpdate. It drives the same
// statemachine.Machine and storage.Transaction machinery as statemgr,
// reusing the state manager's task-insertion and state-change
// primitives rather than duplicating them.
//
// A registered update is a JobUpdateConfiguration keyed by (role,
// environment, jobName), holding one TaskUpdateConfiguration per shard touched by
// the update and an opaque token callers must present back to
// modifyShards/finishUpdate. Only one update may be registered per job
// at a time.
package update
