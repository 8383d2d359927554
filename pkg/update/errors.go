package update

import "fmt"

// Exception reports a rolling-update precondition violation: a token
// that does not match the registered update (an empty token is not
// checked), no registered update, a concurrent update already
// registered, unrecognized shards, no active tasks for the job, or
// tasks still mid-update.
// Callers at the RPC boundary surface this as INVALID_REQUEST.
type Exception struct {
	msg string
}

func (e *Exception) Error() string { return e.msg }

func newException(format string, args ...interface{}) *Exception {
	return &Exception{msg: fmt.Sprintf(format, args...)}
}
