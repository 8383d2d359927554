package workqueue

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/corral/pkg/types"
)

// globalDepth tracks outstanding (enqueued, not yet drained) commands
// across every live Queue, read without synchronization by the
// metrics collector per the package's documented "statistics counters
// are the only unsynchronized shared state" concurrency note.
var globalDepth int64

// Depth returns the current count of commands enqueued across all
// live queues but not yet drained.
func Depth() int64 { return atomic.LoadInt64(&globalDepth) }

// CommandType tags the kind of side effect a Command asks the state
// manager to perform at transaction commit.
type CommandType int

const (
	Kill CommandType = iota
	Reschedule
	Update
	Rollback
	UpdateState
	Delete
	IncrementFailures
)

func (c CommandType) String() string {
	switch c {
	case Kill:
		return "KILL"
	case Reschedule:
		return "RESCHEDULE"
	case Update:
		return "UPDATE"
	case Rollback:
		return "ROLLBACK"
	case UpdateState:
		return "UPDATE_STATE"
	case Delete:
		return "DELETE"
	case IncrementFailures:
		return "INCREMENT_FAILURES"
	default:
		return "UNKNOWN"
	}
}

// Mutation mutates an owned copy of a task record before it is
// persisted. Implementations must not retain task beyond the call.
type Mutation func(task *types.ScheduledTask)

// Command is one deferred side effect emitted by a task state machine.
type Command struct {
	Type     CommandType
	TaskId   string
	JobKey   types.JobKey
	ShardId  int
	Mutation Mutation
	AuditMsg string
}

// Queue is the transaction-scoped deferred work queue. It guarantees
// only that Delete commands drain after every other command; it is not
// safe for use once the owning transaction has returned.
type Queue struct {
	mu       sync.Mutex
	ordinary []Command
	deletes  []Command
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue adds a command to the queue, placing DELETE commands in the
// tail partition.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cmd.Type == Delete {
		q.deletes = append(q.deletes, cmd)
	} else {
		q.ordinary = append(q.ordinary, cmd)
	}
	atomic.AddInt64(&globalDepth, 1)
}

// Len returns the number of commands currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ordinary) + len(q.deletes)
}

// Drain removes and returns every queued command, non-DELETE commands
// first, then DELETE commands. The queue is empty after Drain returns.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Command, 0, len(q.ordinary)+len(q.deletes))
	out = append(out, q.ordinary...)
	out = append(out, q.deletes...)
	q.ordinary = nil
	q.deletes = nil
	atomic.AddInt64(&globalDepth, -int64(len(out)))
	return out
}
