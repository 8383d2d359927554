package statemachine

import (
	"time"

	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/types"
	"github.com/cuemby/corral/pkg/workqueue"
)

// Clock supplies the current time, overridable in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// WorkSink receives the work commands a Machine emits. In production
// this is the write transaction's workqueue.Queue.
type WorkSink interface {
	Enqueue(cmd workqueue.Command)
}

// UpdateCheck reports whether the task's job currently has a
// registered update in progress. When true, a reschedule decision
// that would otherwise emit RESCHEDULE emits UPDATE instead.
type UpdateCheck func() bool

// Machine is the per-task state machine. It is cheap to construct and
// must not outlive the write transaction it was built for.
type Machine struct {
	taskId  string
	jobKey  types.JobKey
	shardId int

	task        *types.ScheduledTask // nil => status report for an unknown task
	updateCheck UpdateCheck
	sink        WorkSink
	clock       Clock

	state types.ScheduleStatus

	// updateKind is sticky across a KILLING detour: set when the
	// machine transitions into UPDATING or ROLLBACK, consumed (and
	// cleared) at the next terminal transition so the reschedule
	// decision knows to emit UPDATE/ROLLBACK instead of RESCHEDULE.
	updateKind types.ScheduleStatus
}

// New constructs a Machine. task may be nil, representing a status
// report for a task id the store has no record of; such a machine
// only ever emits KILL. updateCheck and clock default to "no update in
// progress" and the system clock when nil.
func New(taskId string, jobKey types.JobKey, shardId int, task *types.ScheduledTask, updateCheck UpdateCheck, sink WorkSink, clock Clock, initial types.ScheduleStatus) *Machine {
	if updateCheck == nil {
		updateCheck = func() bool { return false }
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Machine{
		taskId:      taskId,
		jobKey:      jobKey,
		shardId:     shardId,
		task:        task,
		updateCheck: updateCheck,
		sink:        sink,
		clock:       clock,
		state:       initial,
	}
}

// State returns the machine's current status.
func (m *Machine) State() types.ScheduleStatus { return m.state }

// legalTransitions enumerates the transitions keyed by a specific
// from state: the INIT..RUNNING ladder and the terminal exits. Targets
// reachable from many states (KILLING, UPDATING, ROLLBACK, RESTARTING,
// PREEMPTING) are handled in isLegal instead.
var legalTransitions = map[types.ScheduleStatus]map[types.ScheduleStatus]bool{
	types.StatusInit:     {types.StatusPending: true},
	types.StatusPending:  {types.StatusAssigned: true},
	types.StatusAssigned: {types.StatusStarting: true},
	types.StatusStarting: {types.StatusRunning: true},
	types.StatusRunning: {
		types.StatusFailed:   true,
		types.StatusFinished: true,
		types.StatusKilled:   true,
		types.StatusLost:     true,
	},
	types.StatusKilling: {
		types.StatusKilled: true,
		types.StatusLost:   true,
	},
	// UPDATING/ROLLBACK/RESTARTING/PREEMPTING resolve straight to a
	// terminal status: the framework reports whatever end the task
	// actually met, which may be a clean exit or a failure racing the
	// kill, not only the kill itself.
	types.StatusUpdating: {
		types.StatusFailed:   true,
		types.StatusFinished: true,
		types.StatusKilled:   true,
		types.StatusLost:     true,
	},
	types.StatusRollback: {
		types.StatusFailed:   true,
		types.StatusFinished: true,
		types.StatusKilled:   true,
		types.StatusLost:     true,
	},
	types.StatusRestarting: {
		types.StatusFailed:   true,
		types.StatusFinished: true,
		types.StatusKilled:   true,
		types.StatusLost:     true,
	},
	types.StatusPreempting: {
		types.StatusFailed:   true,
		types.StatusFinished: true,
		types.StatusKilled:   true,
		types.StatusLost:     true,
	},
}

// nonTerminalActive reports whether s is a state a live task can
// occupy, i.e. not a sink and not UNKNOWN.
func nonTerminalActive(s types.ScheduleStatus) bool {
	return !s.IsTerminal() && s != types.StatusUnknown
}

// isLegal reports whether target is reachable from from. KILLING is
// reachable from any non-terminal state (the "any non-terminal ->
// KILLING" rule); UPDATING/ROLLBACK/RESTARTING/PREEMPTING are
// reachable from any non-terminal state except KILLING itself, since
// a task already being killed cannot be redirected.
func isLegal(from, target types.ScheduleStatus) bool {
	switch target {
	case types.StatusKilling:
		return nonTerminalActive(from)
	case types.StatusUpdating, types.StatusRollback, types.StatusRestarting, types.StatusPreempting:
		return nonTerminalActive(from) && from != types.StatusKilling
	default:
		return legalTransitions[from][target]
	}
}

// UpdateState advances the machine to target, applying mutation (if
// any) to the owned task record before appending the transition's task
// event. It returns true iff the transition took effect.
func (m *Machine) UpdateState(target types.ScheduleStatus, auditMsg string, mutation workqueue.Mutation) bool {
	if m.task == nil {
		m.enqueue(workqueue.Kill, nil, auditMsg)
		m.state = types.StatusUnknown
		return false
	}

	if target == m.state {
		if auditMsg == "" {
			return false
		}
		now := m.clock.Now()
		event := types.TaskEvent{Timestamp: now, Status: target, Message: auditMsg}
		m.task.TaskEvents = append(m.task.TaskEvents, event)
		m.enqueue(workqueue.UpdateState, func(t *types.ScheduledTask) {
			t.TaskEvents = append(t.TaskEvents, event)
		}, auditMsg)
		return true
	}

	if !isLegal(m.state, target) {
		logger := log.Task(m.taskId)
		logger.Warn().
			Str("from", string(m.state)).Str("to", string(target)).
			Msg("illegal task state transition")
		return false
	}

	now := m.clock.Now()
	combined := func(t *types.ScheduledTask) {
		if mutation != nil {
			mutation(t)
		}
		t.Status = target
		t.TaskEvents = append(t.TaskEvents, types.TaskEvent{Timestamp: now, Status: target, Message: auditMsg})
	}
	from := m.state
	combined(m.task)
	m.state = target
	m.enqueue(workqueue.UpdateState, combined, auditMsg)

	switch target {
	case types.StatusKilling, types.StatusRestarting, types.StatusPreempting:
		m.enqueue(workqueue.Kill, nil, "")
	case types.StatusUpdating:
		m.updateKind = types.StatusUpdating
		m.enqueue(workqueue.Kill, nil, "")
	case types.StatusRollback:
		m.updateKind = types.StatusRollback
		m.enqueue(workqueue.Kill, nil, "")
	case types.StatusFailed:
		m.task.FailureCount++
		m.enqueue(workqueue.IncrementFailures, func(t *types.ScheduledTask) { t.FailureCount++ }, "")
		m.maybeReschedule(target, from)
	case types.StatusLost, types.StatusKilled, types.StatusFinished:
		m.maybeReschedule(target, from)
	}

	return true
}

// Delete enqueues a DELETE work command for garbage-collecting a
// terminal task record. It does not itself change m.state; callers
// only invoke it on tasks already in a terminal status.
func (m *Machine) Delete() {
	m.enqueue(workqueue.Delete, nil, "")
}

// maybeReschedule decides, after a terminal transition, whether the
// task warrants a replacement and emits RESCHEDULE, UPDATE, or
// ROLLBACK accordingly.
//
// The update kind is recovered from the persisted from state, not only
// from updateKind: machines are rebuilt per transaction, so a task
// sitting in UPDATING or ROLLBACK usually reaches its terminal status
// through a machine that never saw the original transition.
func (m *Machine) maybeReschedule(terminal, from types.ScheduleStatus) {
	kind := m.updateKind
	m.updateKind = ""
	if from == types.StatusUpdating || from == types.StatusRollback {
		kind = from
	}

	// An update/rollback replacement is owed no matter how the old
	// task went down; the replacement config decides whether one is
	// actually scheduled.
	switch kind {
	case types.StatusUpdating:
		m.enqueue(workqueue.Update, nil, "")
		return
	case types.StatusRollback:
		m.enqueue(workqueue.Rollback, nil, "")
		return
	}

	warrants := false
	switch {
	case from == types.StatusRestarting || from == types.StatusPreempting:
		// A restart or preemption kill always owes a replacement.
		warrants = true
	case !m.task.AssignedTask.IsService:
		warrants = false
	default:
		switch terminal {
		case types.StatusFailed:
			limit := m.task.AssignedTask.MaxTaskFailures
			warrants = limit <= 0 || m.task.FailureCount < limit
		case types.StatusLost, types.StatusKilled:
			warrants = true
		}
	}
	if !warrants {
		return
	}

	// A task that dies on its own while its job has a registered
	// update was never driven through UPDATING or ROLLBACK, and the
	// registered JobUpdateConfiguration records both config sides but
	// not which direction is being driven — roll-forward and rollback
	// are indistinguishable at this call site. UPDATE is the safe
	// resolution: the replacement comes up on the new-config side, and
	// a rollback in flight re-drives the shard through its own
	// ROLLBACK transition because the replacement's config differs
	// from the original.
	if m.updateCheck() {
		m.enqueue(workqueue.Update, nil, "")
		return
	}
	m.enqueue(workqueue.Reschedule, nil, "")
}

func (m *Machine) enqueue(cmdType workqueue.CommandType, mutation workqueue.Mutation, auditMsg string) {
	if m.sink == nil {
		return
	}
	m.sink.Enqueue(workqueue.Command{
		Type:     cmdType,
		TaskId:   m.taskId,
		JobKey:   m.jobKey,
		ShardId:  m.shardId,
		Mutation: mutation,
		AuditMsg: auditMsg,
	})
}
