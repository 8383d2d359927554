package types

import (
	"reflect"
	"time"
)

// ScheduleStatus represents the lifecycle state of a ScheduledTask.
type ScheduleStatus string

const (
	StatusInit       ScheduleStatus = "INIT"
	StatusPending    ScheduleStatus = "PENDING"
	StatusAssigned   ScheduleStatus = "ASSIGNED"
	StatusStarting   ScheduleStatus = "STARTING"
	StatusRunning    ScheduleStatus = "RUNNING"
	StatusFailed     ScheduleStatus = "FAILED"
	StatusFinished   ScheduleStatus = "FINISHED"
	StatusKilled     ScheduleStatus = "KILLED"
	StatusKilling    ScheduleStatus = "KILLING"
	StatusLost       ScheduleStatus = "LOST"
	StatusRestarting ScheduleStatus = "RESTARTING"
	StatusUpdating   ScheduleStatus = "UPDATING"
	StatusRollback   ScheduleStatus = "ROLLBACK"
	StatusPreempting ScheduleStatus = "PREEMPTING"
	StatusUnknown    ScheduleStatus = "UNKNOWN"
)

// activeStatuses holds every status for which at most one task may exist
// per (role, jobName, shardId) triple.
var activeStatuses = map[ScheduleStatus]bool{
	StatusPending:    true,
	StatusAssigned:   true,
	StatusStarting:   true,
	StatusRunning:    true,
	StatusUpdating:   true,
	StatusRollback:   true,
	StatusKilling:    true,
	StatusPreempting: true,
	StatusRestarting: true,
}

// IsActive reports whether a task in this status counts against the
// at-most-one-active-task-per-shard invariant.
func (s ScheduleStatus) IsActive() bool {
	return activeStatuses[s]
}

// IsTerminal reports whether this status is a sink for the task state
// machine (aside from garbage-collection DELETE transitions).
func (s ScheduleStatus) IsTerminal() bool {
	switch s {
	case StatusFailed, StatusFinished, StatusKilled, StatusLost:
		return true
	default:
		return false
	}
}

// JobKey identifies a job by its owning role, environment, and name.
type JobKey struct {
	Role        string
	Environment string
	Name        string
}

// TaskEvent records one status transition in a task's audit log.
type TaskEvent struct {
	Timestamp time.Time
	Status    ScheduleStatus
	Message   string
}

// Port describes a single named port a task may request from the
// resource-offer framework.
type Port struct {
	Name string
}

// ResourceRequirements describes a task's CPU/memory/disk demands.
type ResourceRequirements struct {
	NumCPUs float64
	RAMMB   int64
	DiskMB  int64
}

// ValueConstraint matches a host iff the host carries at least one of
// Values under the constraint's attribute name — or, when Negated, iff
// it carries none of them.
type ValueConstraint struct {
	Name    string
	Values  []string
	Negated bool
}

// LimitConstraint caps the number of active tasks of the same job that
// may land on hosts sharing any attribute value with the candidate host.
type LimitConstraint struct {
	Name  string
	Limit int
}

// Constraint is exactly one of Value or Limit.
type Constraint struct {
	Name  string
	Value *ValueConstraint
	Limit *LimitConstraint
}

// Attribute is a host-level (name, set-of-values) tag supplied by an
// AttributeLoader.
type Attribute struct {
	Name   string
	Values []string
}

// TaskConfig is the declared shape of a task as submitted by a caller,
// before a task id is generated and the task is persisted.
type TaskConfig struct {
	Role        string
	Environment string
	JobName     string
	ShardId     int

	IsService bool // service-style tasks are rescheduled on terminal failure
	Priority  int

	RequestedPorts []Port
	Resources      ResourceRequirements
	Constraints    []Constraint

	MaxTaskFailures int // failure-limit beyond which FAILED tasks are not rescheduled
}

// JobConfigKey returns the (role, environment, jobName) key this config
// belongs to.
func (c TaskConfig) JobConfigKey() JobKey {
	return JobKey{Role: c.Role, Environment: c.Environment, Name: c.JobName}
}

// Equivalent reports whether two configs would produce functionally
// identical tasks — used by the update coordinator to detect unchanged
// shards. Deliberately ignores fields that do not affect task identity.
func (c TaskConfig) Equivalent(other TaskConfig) bool {
	if c.Role != other.Role || c.Environment != other.Environment ||
		c.JobName != other.JobName || c.ShardId != other.ShardId {
		return false
	}
	if c.IsService != other.IsService || c.Priority != other.Priority {
		return false
	}
	if c.Resources != other.Resources {
		return false
	}
	if len(c.RequestedPorts) != len(other.RequestedPorts) {
		return false
	}
	for i := range c.RequestedPorts {
		if c.RequestedPorts[i] != other.RequestedPorts[i] {
			return false
		}
	}
	if len(c.Constraints) != len(other.Constraints) {
		return false
	}
	for i := range c.Constraints {
		if !reflect.DeepEqual(c.Constraints[i], other.Constraints[i]) {
			return false
		}
	}
	return true
}

// AssignedTask holds a task's declared configuration plus the placement
// information filled in on ASSIGN.
type AssignedTask struct {
	TaskConfig

	SlaveId       string
	SlaveHost     string
	AssignedPorts map[string]int32 // requested port name -> offered port number
}

// ScheduledTask is the persistent record owned by the store.
type ScheduledTask struct {
	TaskId       string
	Status       ScheduleStatus
	AssignedTask AssignedTask
	FailureCount int
	AncestorId   string // predecessor task, set when rescheduled
	TaskEvents   []TaskEvent
}

// JobKey returns the (role, environment, jobName) key this task
// belongs to.
func (t *ScheduledTask) JobKey() JobKey {
	return JobKey{
		Role:        t.AssignedTask.Role,
		Environment: t.AssignedTask.Environment,
		Name:        t.AssignedTask.JobName,
	}
}

// ShardId returns the shard index this task occupies within its job.
func (t *ScheduledTask) ShardId() int {
	return t.AssignedTask.ShardId
}

// DeepCopy returns an owned copy of the task so callers may mutate it
// without sharing state with the in-store record.
func (t *ScheduledTask) DeepCopy() *ScheduledTask {
	if t == nil {
		return nil
	}
	cp := *t
	cp.TaskEvents = append([]TaskEvent(nil), t.TaskEvents...)
	cp.AssignedTask.RequestedPorts = append([]Port(nil), t.AssignedTask.RequestedPorts...)
	cp.AssignedTask.Constraints = append([]Constraint(nil), t.AssignedTask.Constraints...)
	if t.AssignedTask.AssignedPorts != nil {
		cp.AssignedTask.AssignedPorts = make(map[string]int32, len(t.AssignedTask.AssignedPorts))
		for k, v := range t.AssignedTask.AssignedPorts {
			cp.AssignedTask.AssignedPorts[k] = v
		}
	}
	return &cp
}

// TaskUpdateConfiguration pairs the old and new TaskConfig for a single
// shard in a registered update. Either side may be nil: NewConfig nil
// means the shard is being removed by the update; OldConfig nil means
// the shard is being added.
type TaskUpdateConfiguration struct {
	ShardId   int
	OldConfig *TaskConfig
	NewConfig *TaskConfig
}

// JobUpdateConfiguration is the registered, in-flight rolling update for
// one (role, environment, jobName).
type JobUpdateConfiguration struct {
	JobKey      JobKey
	UpdateToken string
	Configs     map[int]*TaskUpdateConfiguration // keyed by shard id
}

// UpdateResult is the per-shard outcome of a modifyShards call.
type UpdateResult string

const (
	ResultAdded      UpdateResult = "ADDED"
	ResultRestarting UpdateResult = "RESTARTING"
	ResultUnchanged  UpdateResult = "UNCHANGED"
)

// UpdateOutcome is the terminal disposition a caller reports to
// finishUpdate.
type UpdateOutcome string

const (
	OutcomeSuccess UpdateOutcome = "SUCCESS"
	OutcomeFailed  UpdateOutcome = "FAILED"
)

// TaskQuery is a structured predicate over tasks; zero-valued fields
// are unconstrained. The bbolt store evaluates it with Matches against
// every task record; it keeps no secondary indexes.
type TaskQuery struct {
	Role        string
	Environment string
	JobName     string
	ShardIds    []int
	Statuses    []ScheduleStatus
	TaskIds     []string
	SlaveHost   string
}

// Matches reports whether task satisfies the query's predicates.
func (q TaskQuery) Matches(t *ScheduledTask) bool {
	if q.Role != "" && t.AssignedTask.Role != q.Role {
		return false
	}
	if q.Environment != "" && t.AssignedTask.Environment != q.Environment {
		return false
	}
	if q.JobName != "" && t.AssignedTask.JobName != q.JobName {
		return false
	}
	if q.SlaveHost != "" && t.AssignedTask.SlaveHost != q.SlaveHost {
		return false
	}
	if len(q.ShardIds) > 0 && !containsInt(q.ShardIds, t.AssignedTask.ShardId) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, t.Status) {
		return false
	}
	if len(q.TaskIds) > 0 && !containsString(q.TaskIds, t.TaskId) {
		return false
	}
	return true
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsStatus(xs []ScheduleStatus, v ScheduleStatus) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
