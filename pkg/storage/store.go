package storage

import (
	"github.com/cuemby/corral/pkg/types"
)

// Event is a pub/sub notification buffered by a write transaction and
// published only after that transaction's bbolt commit succeeds.
type Event struct {
	Kind     string
	Task     *types.ScheduledTask
	JobKey   types.JobKey
	Shard    int
	Previous types.ScheduleStatus // status before the transition, for state-change events
	Detail   string
}

// TaskStore persists ScheduledTask records.
type TaskStore interface {
	Save(task *types.ScheduledTask) error
	SaveAll(tasks []*types.ScheduledTask) error
	Get(taskId string) (*types.ScheduledTask, bool, error)
	Fetch(query types.TaskQuery) ([]*types.ScheduledTask, error)
	Delete(taskId string) error
	DeleteAll(taskIds []string) error
}

// UpdateStore persists JobUpdateConfiguration records, one per
// (role, environment, job name).
type UpdateStore interface {
	Get(key types.JobKey) (*types.JobUpdateConfiguration, bool, error)
	FetchByRole(role string) ([]*types.JobUpdateConfiguration, error)
	FetchAll() ([]*types.JobUpdateConfiguration, error)
	Save(cfg *types.JobUpdateConfiguration) error
	Delete(key types.JobKey) error
}

// Quota is a role's resource allotment. Quota enforcement itself is
// out of scope; the store exists so the admin surface can record and
// report what was configured.
type Quota struct {
	Role      string
	NumCPUs   float64
	RAMMB     int64
	DiskMB    int64
}

// QuotaStore persists per-role resource quotas.
type QuotaStore interface {
	Get(role string) (Quota, bool, error)
	Save(q Quota) error
	Delete(role string) error
}

// AttributeStore persists host attributes used by the constraint
// matcher.
type AttributeStore interface {
	Get(host string) ([]types.Attribute, bool, error)
	Save(host string, attrs []types.Attribute) error
	FetchAll() (map[string][]types.Attribute, error)
}

// SchedulerStore persists singleton scheduler-driver state such as
// the framework/driver registration id.
type SchedulerStore interface {
	GetDriverId() (string, bool, error)
	SaveDriverId(id string) error
}

// StoreProvider hands out the per-entity store handles bound to the
// transaction (read-only or read-write) that produced it.
type StoreProvider interface {
	Tasks() TaskStore
	Updates() UpdateStore
	Quota() QuotaStore
	Attributes() AttributeStore
	Scheduler() SchedulerStore
}

// Store is the top-level handle to the persisted cluster state.
type Store interface {
	// DoInReadTransaction runs fn against a consistent snapshot. fn
	// must not retain the StoreProvider past its return.
	DoInReadTransaction(fn func(sp StoreProvider) error) error

	// DoInWriteTransaction runs fn inside a single atomic bbolt
	// update. If fn returns nil, every call buffered via
	// Transaction.Defer runs, in enqueue order, and the events
	// buffered via Transaction.Publish are returned for the caller
	// to hand to its event sink. If fn returns an error, nothing
	// buffered runs and the error is returned with a nil event
	// slice.
	DoInWriteTransaction(fn func(tx *Transaction) error) ([]Event, error)

	Close() error
}
