package statemgr

import (
	"github.com/cuemby/corral/pkg/events"
	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
	"github.com/cuemby/corral/pkg/workqueue"
)

// drain repeatedly empties queue against the store until it runs dry.
// A single pass is not enough: applying a RESCHEDULE/UPDATE/ROLLBACK
// command inserts a fresh task and drives it to PENDING, which itself
// enqueues an UPDATE_STATE command that must also be drained before
// the transaction commits.
func (m *Manager) drain(tx *storage.Transaction, queue *workqueue.Queue) error {
	for {
		cmds := queue.Drain()
		if len(cmds) == 0 {
			return nil
		}
		for _, cmd := range cmds {
			if err := m.apply(tx, queue, cmd); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) apply(tx *storage.Transaction, queue *workqueue.Queue, cmd workqueue.Command) error {
	switch cmd.Type {
	case workqueue.UpdateState, workqueue.IncrementFailures:
		return m.applyMutation(tx, cmd)
	case workqueue.Kill:
		return m.applyKill(tx, cmd)
	case workqueue.Delete:
		return tx.Tasks().Delete(cmd.TaskId)
	case workqueue.Reschedule:
		return m.applyReschedule(tx, queue, cmd, pickSameConfig)
	case workqueue.Update:
		return m.applyReschedule(tx, queue, cmd, pickNewConfig)
	case workqueue.Rollback:
		return m.applyReschedule(tx, queue, cmd, pickOldConfig)
	default:
		return nil
	}
}

// applyMutation fetches the canonical record and applies cmd.Mutation
// to it, the one place a work command actually lands in the store.
func (m *Manager) applyMutation(tx *storage.Transaction, cmd workqueue.Command) error {
	task, ok, err := tx.Tasks().Get(cmd.TaskId)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	previous := task.Status
	if cmd.Mutation != nil {
		cmd.Mutation(task)
	}
	if err := tx.Tasks().Save(task); err != nil {
		return err
	}
	if cmd.Type == workqueue.UpdateState {
		metrics.TaskTransitionsTotal.WithLabelValues(string(task.Status)).Inc()
		tx.Publish(storage.Event{Kind: string(events.TaskStateChange), Task: task, JobKey: cmd.JobKey, Shard: cmd.ShardId, Previous: previous})
	}
	return nil
}

func (m *Manager) applyKill(tx *storage.Transaction, cmd workqueue.Command) error {
	taskId := cmd.TaskId
	drv := m.driver
	tx.Defer(func() {
		if err := drv.KillTask(taskId); err != nil {
			logger := log.Task(taskId)
			logger.Warn().Err(err).Msg("driver kill failed")
		}
	})
	return nil
}

// configPicker resolves the TaskConfig a reschedule/UPDATE/ROLLBACK
// command should recreate the task with. skip=true means no
// replacement should be scheduled: the shard is removed by the update,
// or the update configuration (or its entry for the shard) is gone
// because finishUpdate raced ahead of this event. The missing-
// configuration cases are logged; a removed shard is skipped silently.
type configPicker func(tx *storage.Transaction, oldTask *types.ScheduledTask) (cfg *types.TaskConfig, skip bool, err error)

func pickSameConfig(_ *storage.Transaction, oldTask *types.ScheduledTask) (*types.TaskConfig, bool, error) {
	// Owned copy: the replacement must not share port/constraint
	// slices with the record it replaces.
	cfg := oldTask.DeepCopy().AssignedTask.TaskConfig
	return &cfg, false, nil
}

func pickNewConfig(tx *storage.Transaction, oldTask *types.ScheduledTask) (*types.TaskConfig, bool, error) {
	return pickFromUpdate(tx, oldTask, true)
}

func pickOldConfig(tx *storage.Transaction, oldTask *types.ScheduledTask) (*types.TaskConfig, bool, error) {
	return pickFromUpdate(tx, oldTask, false)
}

func pickFromUpdate(tx *storage.Transaction, oldTask *types.ScheduledTask, wantNew bool) (*types.TaskConfig, bool, error) {
	jobKey := oldTask.JobKey()
	cfg, ok, err := tx.Updates().Get(jobKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		logger := log.Job(jobKey)
		logger.Warn().
			Str("task_id", oldTask.TaskId).
			Msg("update configuration missing at reschedule time; skipping (finishUpdate raced ahead)")
		return nil, true, nil
	}
	shardCfg, ok := cfg.Configs[oldTask.ShardId()]
	if !ok {
		logger := log.Job(jobKey)
		logger.Warn().
			Int("shard", oldTask.ShardId()).
			Msg("no update configuration for shard at reschedule time; skipping")
		return nil, true, nil
	}
	target := shardCfg.OldConfig
	if wantNew {
		target = shardCfg.NewConfig
	}
	if target == nil {
		return nil, true, nil
	}
	return target, false, nil
}

func (m *Manager) applyReschedule(tx *storage.Transaction, queue *workqueue.Queue, cmd workqueue.Command, pick configPicker) error {
	oldTask, ok, err := tx.Tasks().Get(cmd.TaskId)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	cfg, skip, err := pick(tx, oldTask)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	ids, err := m.insertTasksTx(tx, queue, []types.TaskConfig{*cfg}, oldTask.TaskId)
	if err != nil {
		return err
	}
	if len(ids) == 1 {
		metrics.TasksRescheduledTotal.WithLabelValues(rescheduleReason(cmd.Type)).Inc()
		tx.Publish(storage.Event{Kind: string(events.TaskRescheduled), JobKey: cmd.JobKey, Shard: cmd.ShardId, Detail: ids[0]})
	}
	return nil
}

func rescheduleReason(t workqueue.CommandType) string {
	switch t {
	case workqueue.Update:
		return "update"
	case workqueue.Rollback:
		return "rollback"
	default:
		return "reschedule"
	}
}
