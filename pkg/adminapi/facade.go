package adminapi

import (
	"context"
	"fmt"

	"github.com/cuemby/corral/pkg/config"
	"github.com/cuemby/corral/pkg/statemgr"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
	"github.com/cuemby/corral/pkg/update"
)

// Facade bundles the state manager and update coordinator behind one
// administrative entry point.
type Facade struct {
	cfg   config.Config
	store storage.Store
	mgr   *statemgr.Manager
	coord *update.Coordinator
}

// New constructs a Facade.
func New(cfg config.Config, store storage.Store, mgr *statemgr.Manager, coord *update.Coordinator) *Facade {
	return &Facade{cfg: cfg, store: store, mgr: mgr, coord: coord}
}

// CreateJob inserts the given task configs as a new job, rejecting
// the call when job creation has been administratively disabled.
func (f *Facade) CreateJob(configs []types.TaskConfig) ([]string, error) {
	if !f.cfg.EnableJobCreation {
		return nil, fmt.Errorf("createJob: job creation is disabled")
	}
	return f.mgr.InsertTasks(configs)
}

// KillTasks drives every task matching query to KILLING and waits,
// under the configured backoff, for the active set to drain.
func (f *Facade) KillTasks(ctx context.Context, query types.TaskQuery, auditMsg string) error {
	return f.mgr.KillTasks(ctx, query, auditMsg, statemgr.KillTasksOptions{
		InitialBackoff: f.cfg.KillTaskInitialBackoff.Duration(),
		MaxBackoff:     f.cfg.KillTaskMaxBackoff.Duration(),
	})
}

// StartUpdate registers a rolling update for jobKey.
func (f *Facade) StartUpdate(jobKey types.JobKey, newTaskSet []types.TaskConfig) (string, error) {
	return f.coord.RegisterUpdate(jobKey, newTaskSet)
}

// UpdateShards drives shards to their new config.
func (f *Facade) UpdateShards(identity string, jobKey types.JobKey, shards []int, token string) (map[int]types.UpdateResult, error) {
	return f.coord.ModifyShards(identity, jobKey, shards, token, true)
}

// RollbackShards drives shards back to their old config.
func (f *Facade) RollbackShards(identity string, jobKey types.JobKey, shards []int, token string) (map[int]types.UpdateResult, error) {
	return f.coord.ModifyShards(identity, jobKey, shards, token, false)
}

// FinishUpdate closes out a registered update.
func (f *Facade) FinishUpdate(identity string, jobKey types.JobKey, token string, result types.UpdateOutcome, throwIfMissing bool) (bool, error) {
	return f.coord.FinishUpdate(identity, jobKey, token, result, throwIfMissing)
}

// RestartShards drives the named shards to RESTARTING; the kill goes
// out at commit and every shard is rescheduled on its subsequent
// terminal transition, service or not.
func (f *Facade) RestartShards(identity string, jobKey types.JobKey, shards []int) (int, error) {
	query := types.TaskQuery{Role: jobKey.Role, Environment: jobKey.Environment, JobName: jobKey.Name, ShardIds: shards}
	return f.mgr.ChangeState(query, types.StatusRestarting, fmt.Sprintf("Restarted by %s", identity))
}

// ForceTaskState drives the given task ids directly to target,
// bypassing the job-level query helpers. Intended for operator
// recovery from a stuck task.
func (f *Facade) ForceTaskState(taskIds []string, target types.ScheduleStatus, auditMsg string) (int, error) {
	return f.mgr.ChangeState(types.TaskQuery{TaskIds: taskIds}, target, auditMsg)
}

// GetTasksStatus runs a read-only task query.
func (f *Facade) GetTasksStatus(query types.TaskQuery) ([]*types.ScheduledTask, error) {
	return f.mgr.FetchTasks(query)
}

// GetJobs returns the distinct (role, environment, name) job keys
// with at least one active task.
func (f *Facade) GetJobs() ([]types.JobKey, error) {
	tasks, err := f.mgr.FetchTasks(types.TaskQuery{})
	if err != nil {
		return nil, err
	}
	seen := make(map[types.JobKey]bool)
	var jobs []types.JobKey
	for _, t := range tasks {
		if !t.Status.IsActive() {
			continue
		}
		key := t.JobKey()
		if !seen[key] {
			seen[key] = true
			jobs = append(jobs, key)
		}
	}
	return jobs, nil
}

// GetJobUpdates returns every registered JobUpdateConfiguration.
func (f *Facade) GetJobUpdates() ([]*types.JobUpdateConfiguration, error) {
	var out []*types.JobUpdateConfiguration
	err := f.store.DoInReadTransaction(func(sp storage.StoreProvider) error {
		var err error
		out, err = sp.Updates().FetchAll()
		return err
	})
	return out, err
}

// SetQuota records a role's resource allotment.
func (f *Facade) SetQuota(q storage.Quota) error {
	_, err := f.store.DoInWriteTransaction(func(tx *storage.Transaction) error {
		return tx.Quota().Save(q)
	})
	return err
}

// GetQuota returns the quota recorded for role, if any.
func (f *Facade) GetQuota(role string) (storage.Quota, bool, error) {
	var (
		q  storage.Quota
		ok bool
	)
	err := f.store.DoInReadTransaction(func(sp storage.StoreProvider) error {
		var err error
		q, ok, err = sp.Quota().Get(role)
		return err
	})
	return q, ok, err
}
