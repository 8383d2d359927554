package statemgr

import "fmt"

// ScheduleException reports a placement or job-lifecycle policy
// violation: an illegal state transition, an assignTask call whose
// task id matches no stored task, or similar preconditions
// checked inside a write transaction. Callers at the RPC boundary
// surface this as INVALID_REQUEST.
type ScheduleException struct {
	msg string
}

func (e *ScheduleException) Error() string { return e.msg }

func newScheduleException(format string, args ...interface{}) *ScheduleException {
	return &ScheduleException{msg: fmt.Sprintf(format, args...)}
}
