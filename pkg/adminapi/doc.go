// Package adminapi is a thin façade over the scheduler core's
// administrative operations (createJob, killTasks, startUpdate,
// updateShards, rollbackShards, finishUpdate, restartShards,
// forceTaskState, setQuota, getTasksStatus, getJobs, getJobUpdates).
// It gives cmd/corrald's CLI (and tests) a caller for the core
// operations without building a wire protocol; an RPC transport and
// session/auth layer would sit in front of this package. Every
// mutating method returns a plain Go error, which such a boundary
// classifies into {INVALID_REQUEST, AUTH_FAILED, ERROR} response
// codes.
package adminapi
