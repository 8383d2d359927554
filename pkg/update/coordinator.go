package update

import (
	"fmt"

	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/statemgr"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
	"github.com/cuemby/corral/pkg/workqueue"
	"github.com/google/uuid"
)

// Coordinator drives rolling updates on top of a statemgr.Manager,
// composing registerUpdate/modifyShards/finishUpdate onto the same
// write-transaction-and-drain lifecycle the state manager uses for
// plain task operations.
type Coordinator struct {
	mgr *statemgr.Manager
}

// New constructs a Coordinator bound to mgr.
func New(mgr *statemgr.Manager) *Coordinator {
	return &Coordinator{mgr: mgr}
}

// RegisterUpdate computes the symmetric-diff of the job's current
// active-task configs against newTaskSet and persists one
// TaskUpdateConfiguration per shard in the union, returning a fresh
// opaque token. Fails if any shard is mid-update, no active tasks
// exist for the job, or an update is already registered.
func (c *Coordinator) RegisterUpdate(jobKey types.JobKey, newTaskSet []types.TaskConfig) (string, error) {
	var token string
	err := c.mgr.WriteTx(func(tx *storage.Transaction, queue *workqueue.Queue) error {
		tasks, err := tx.Tasks().Fetch(types.TaskQuery{Role: jobKey.Role, Environment: jobKey.Environment, JobName: jobKey.Name})
		if err != nil {
			return err
		}

		active := make([]*types.ScheduledTask, 0, len(tasks))
		for _, t := range tasks {
			if t.Status.IsActive() {
				active = append(active, t)
			}
		}
		for _, t := range active {
			if t.Status == types.StatusUpdating || t.Status == types.StatusRollback {
				return newException("registerUpdate: %s/%s shard %d is already mid-update", jobKey.Role, jobKey.Name, t.ShardId())
			}
		}
		if len(active) == 0 {
			return newException("registerUpdate: %s/%s has no active tasks", jobKey.Role, jobKey.Name)
		}
		if _, exists, err := tx.Updates().Get(jobKey); err != nil {
			return err
		} else if exists {
			return newException("registerUpdate: update already in progress for %s/%s", jobKey.Role, jobKey.Name)
		}

		existingByShard := make(map[int]types.TaskConfig, len(active))
		for _, t := range active {
			existingByShard[t.ShardId()] = t.AssignedTask.TaskConfig
		}
		newByShard := make(map[int]types.TaskConfig, len(newTaskSet))
		for _, cfg := range newTaskSet {
			newByShard[cfg.ShardId] = cfg
		}

		configs := make(map[int]*types.TaskUpdateConfiguration, len(existingByShard)+len(newByShard))
		for shard := range shardUnion(existingByShard, newByShard) {
			entry := &types.TaskUpdateConfiguration{ShardId: shard}
			if oldCfg, ok := existingByShard[shard]; ok {
				v := oldCfg
				entry.OldConfig = &v
			}
			if newCfg, ok := newByShard[shard]; ok {
				v := newCfg
				entry.NewConfig = &v
			}
			configs[shard] = entry
		}

		token = uuid.NewString()
		return tx.Updates().Save(&types.JobUpdateConfiguration{
			JobKey:      jobKey,
			UpdateToken: token,
			Configs:     configs,
		})
	})
	if err == nil {
		metrics.UpdatesStartedTotal.Inc()
	}
	return token, err
}

// ModifyShards partitions shards into those with no active task
// (newShardIds, inserted from the target config and marked ADDED) and
// those with one (updateShardIds, driven to UPDATING/ROLLBACK and
// marked RESTARTING when their config actually changed, UNCHANGED
// otherwise). All validation happens before any mutation so a
// rejected call leaves the store untouched.
func (c *Coordinator) ModifyShards(identity string, jobKey types.JobKey, shards []int, token string, updating bool) (map[int]types.UpdateResult, error) {
	result := make(map[int]types.UpdateResult, len(shards))
	if len(shards) == 0 {
		return result, nil
	}

	err := c.mgr.WriteTx(func(tx *storage.Transaction, queue *workqueue.Queue) error {
		cfg, found, err := tx.Updates().Get(jobKey)
		if err != nil {
			return err
		}
		if !found {
			return newException("modifyShards: no update registered for %s/%s", jobKey.Role, jobKey.Name)
		}
		if token != "" && token != cfg.UpdateToken {
			return newException("modifyShards: token mismatch for %s/%s", jobKey.Role, jobKey.Name)
		}

		tasks, err := tx.Tasks().Fetch(types.TaskQuery{Role: jobKey.Role, Environment: jobKey.Environment, JobName: jobKey.Name, ShardIds: shards})
		if err != nil {
			return err
		}
		activeByShard := make(map[int]*types.ScheduledTask, len(tasks))
		for _, t := range tasks {
			if t.Status.IsActive() {
				activeByShard[t.ShardId()] = t
			}
		}

		var newShardIds, updateShardIds []int
		for _, shard := range shards {
			if _, ok := activeByShard[shard]; ok {
				updateShardIds = append(updateShardIds, shard)
			} else {
				newShardIds = append(newShardIds, shard)
			}
		}

		newConfigs := make([]types.TaskConfig, 0, len(newShardIds))
		for _, shard := range newShardIds {
			shardCfg, ok := cfg.Configs[shard]
			if !ok {
				return newException("modifyShards: unrecognized shards")
			}
			target := pickTarget(shardCfg, updating)
			if target == nil {
				return newException("modifyShards: unrecognized shards")
			}
			newConfigs = append(newConfigs, *target)
		}
		for _, shard := range updateShardIds {
			if _, ok := cfg.Configs[shard]; !ok {
				return newException("modifyShards: unrecognized shards")
			}
		}

		if len(newConfigs) > 0 {
			if _, err := c.mgr.InsertTasksTx(tx, queue, newConfigs, ""); err != nil {
				return err
			}
		}
		for _, shard := range newShardIds {
			result[shard] = types.ResultAdded
		}

		targetStatus := types.StatusUpdating
		auditMsg := fmt.Sprintf("Updated by %s", identity)
		if !updating {
			targetStatus = types.StatusRollback
			auditMsg = fmt.Sprintf("Rolled back by %s", identity)
		}

		var toDrive []*types.ScheduledTask
		for _, shard := range updateShardIds {
			task := activeByShard[shard]
			if task.Status == types.StatusUpdating || task.Status == types.StatusRollback {
				result[shard] = types.ResultUnchanged
				continue
			}
			target := pickTarget(cfg.Configs[shard], updating)
			if target != nil && task.AssignedTask.TaskConfig.Equivalent(*target) {
				result[shard] = types.ResultUnchanged
				continue
			}
			toDrive = append(toDrive, task)
			result[shard] = types.ResultRestarting
		}
		c.mgr.ChangeStateTx(tx, queue, toDrive, targetStatus, auditMsg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, r := range result {
		metrics.ShardsModifiedTotal.WithLabelValues(string(r)).Inc()
	}
	return result, nil
}

// FinishUpdate fails if any task in the job is still mid-update.
// Otherwise, for a SUCCESS/FAILED outcome, kills every shard whose
// accepted side (new on SUCCESS, old on FAILED) is nil — the shards
// the outcome removes — then deletes the update configuration.
func (c *Coordinator) FinishUpdate(identity string, jobKey types.JobKey, token string, result types.UpdateOutcome, throwIfMissing bool) (bool, error) {
	var ok bool
	err := c.mgr.WriteTx(func(tx *storage.Transaction, queue *workqueue.Queue) error {
		tasks, err := tx.Tasks().Fetch(types.TaskQuery{Role: jobKey.Role, Environment: jobKey.Environment, JobName: jobKey.Name})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.Status == types.StatusUpdating || t.Status == types.StatusRollback {
				return newException("finishUpdate: %s/%s shard %d is still mid-update", jobKey.Role, jobKey.Name, t.ShardId())
			}
		}

		cfg, found, err := tx.Updates().Get(jobKey)
		if err != nil {
			return err
		}
		if !found {
			if throwIfMissing {
				return newException("finishUpdate: no update registered for %s/%s", jobKey.Role, jobKey.Name)
			}
			ok = false
			return nil
		}
		if token != "" && token != cfg.UpdateToken {
			return newException("finishUpdate: token mismatch for %s/%s", jobKey.Role, jobKey.Name)
		}

		if result == types.OutcomeSuccess || result == types.OutcomeFailed {
			byShard := make(map[int]*types.ScheduledTask, len(tasks))
			for _, t := range tasks {
				byShard[t.ShardId()] = t
			}
			var toKill []*types.ScheduledTask
			for shard, shardCfg := range cfg.Configs {
				kept := shardCfg.NewConfig
				if result == types.OutcomeFailed {
					kept = shardCfg.OldConfig
				}
				if kept != nil {
					continue
				}
				if task, ok := byShard[shard]; ok && task.Status.IsActive() {
					toKill = append(toKill, task)
				}
			}
			c.mgr.ChangeStateTx(tx, queue, toKill, types.StatusKilling, fmt.Sprintf("Removed during update by %s", identity))
		}

		if err := tx.Updates().Delete(jobKey); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err == nil && ok && (result == types.OutcomeSuccess || result == types.OutcomeFailed) {
		metrics.UpdatesFinishedTotal.WithLabelValues(string(result)).Inc()
	}
	return ok, err
}

func pickTarget(shardCfg *types.TaskUpdateConfiguration, updating bool) *types.TaskConfig {
	if updating {
		return shardCfg.NewConfig
	}
	return shardCfg.OldConfig
}

func shardUnion(a, b map[int]types.TaskConfig) map[int]struct{} {
	out := make(map[int]struct{}, len(a)+len(b))
	for shard := range a {
		out[shard] = struct{}{}
	}
	for shard := range b {
		out[shard] = struct{}{}
	}
	return out
}
