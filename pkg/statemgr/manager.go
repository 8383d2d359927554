package statemgr

import (
	"github.com/cuemby/corral/pkg/driver"
	"github.com/cuemby/corral/pkg/events"
	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/statemachine"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
	"github.com/cuemby/corral/pkg/workqueue"
)

// Manager is the state manager: the orchestration layer that turns
// external requests into write transactions driving task state
// machines and draining their emitted work.
type Manager struct {
	store  storage.Store
	driver driver.Driver
	broker *events.Broker
	clock  Clock
}

// New constructs a Manager. drv defaults to driver.NoopDriver when
// nil; broker may be nil, in which case events are computed but never
// published (useful for tests that only care about store state).
func New(store storage.Store, drv driver.Driver, broker *events.Broker) *Manager {
	if drv == nil {
		drv = driver.NoopDriver{}
	}
	return &Manager{store: store, driver: drv, broker: broker, clock: SystemClock}
}

// InsertTasks generates ids for each config, persists the new tasks
// with status INIT, and drives each machine to PENDING. Returns the
// generated task ids in the same order as configs.
func (m *Manager) InsertTasks(configs []types.TaskConfig) ([]string, error) {
	var ids []string
	err := m.writeTx(func(tx *storage.Transaction, queue *workqueue.Queue) error {
		var err error
		ids, err = m.insertTasksTx(tx, queue, configs, "")
		return err
	})
	return ids, err
}

// AssignTask drives the task matching taskId to ASSIGNED, filling in
// placement fields and a name-to-number port map computed from the
// task's requested ports against the offered port set.
func (m *Manager) AssignTask(taskId, host, slaveId string, offeredPorts []int32) (*types.AssignedTask, error) {
	var result types.AssignedTask
	err := m.writeTx(func(tx *storage.Transaction, queue *workqueue.Queue) error {
		task, ok, err := tx.Tasks().Get(taskId)
		if err != nil {
			return err
		}
		if !ok {
			return newScheduleException("assignTask: task %s not found", taskId)
		}
		jobKey := task.JobKey()
		mach := statemachine.New(taskId, jobKey, task.ShardId(), task, m.updateCheckFor(tx, jobKey), queue, m.clock, task.Status)
		ok2 := mach.UpdateState(types.StatusAssigned, "", func(t *types.ScheduledTask) {
			t.AssignedTask.SlaveId = slaveId
			t.AssignedTask.SlaveHost = host
			t.AssignedTask.AssignedPorts = computePortMap(t.AssignedTask.RequestedPorts, offeredPorts)
		})
		if !ok2 {
			return newScheduleException("assignTask: task %s cannot transition from %s to ASSIGNED", taskId, task.Status)
		}
		// The caller gets an owned copy; the port map must not alias
		// the record being committed.
		result = task.DeepCopy().AssignedTask
		return nil
	})
	return &result, err
}

// ChangeState resolves query to a set of tasks and drives each
// machine to target, returning the count that accepted the
// transition.
func (m *Manager) ChangeState(query types.TaskQuery, target types.ScheduleStatus, auditMsg string) (int, error) {
	count := 0
	err := m.writeTx(func(tx *storage.Transaction, queue *workqueue.Queue) error {
		tasks, err := tx.Tasks().Fetch(query)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			jobKey := task.JobKey()
			mach := statemachine.New(task.TaskId, jobKey, task.ShardId(), task, m.updateCheckFor(tx, jobKey), queue, m.clock, task.Status)
			if mach.UpdateState(target, auditMsg, nil) {
				count++
			}
		}
		return nil
	})
	return count, err
}

// StatusUpdate applies a framework-reported status message for a
// single task id. Unlike ChangeState it also covers ids the store has
// no record of: the machine built for an unknown task emits a
// corrective KILL so the framework stops reporting the ghost, and
// nothing is persisted. Returns whether a known task accepted the
// transition.
func (m *Manager) StatusUpdate(taskId string, target types.ScheduleStatus, auditMsg string) (bool, error) {
	accepted := false
	err := m.writeTx(func(tx *storage.Transaction, queue *workqueue.Queue) error {
		task, ok, err := tx.Tasks().Get(taskId)
		if err != nil {
			return err
		}
		if !ok {
			logger := log.Task(taskId)
			logger.Warn().
				Str("reported", string(target)).
				Msg("status update for unknown task; requesting kill")
			mach := statemachine.New(taskId, types.JobKey{}, 0, nil, nil, queue, m.clock, types.StatusUnknown)
			mach.UpdateState(target, auditMsg, nil)
			return nil
		}
		jobKey := task.JobKey()
		mach := statemachine.New(task.TaskId, jobKey, task.ShardId(), task, m.updateCheckFor(tx, jobKey), queue, m.clock, task.Status)
		accepted = mach.UpdateState(target, auditMsg, nil)
		return nil
	})
	return accepted, err
}

// FetchTasks runs a read-only query against the store.
func (m *Manager) FetchTasks(query types.TaskQuery) ([]*types.ScheduledTask, error) {
	var out []*types.ScheduledTask
	err := m.store.DoInReadTransaction(func(sp storage.StoreProvider) error {
		var err error
		out, err = sp.Tasks().Fetch(query)
		return err
	})
	return out, err
}

// DeleteTasks garbage-collects terminal task records by id. Tasks
// that are missing or not yet terminal are silently skipped.
func (m *Manager) DeleteTasks(taskIds []string) error {
	return m.writeTx(func(tx *storage.Transaction, queue *workqueue.Queue) error {
		for _, id := range taskIds {
			task, ok, err := tx.Tasks().Get(id)
			if err != nil {
				return err
			}
			if !ok || !task.Status.IsTerminal() {
				continue
			}
			jobKey := task.JobKey()
			mach := statemachine.New(id, jobKey, task.ShardId(), task, m.updateCheckFor(tx, jobKey), queue, m.clock, task.Status)
			mach.Delete()
		}
		return nil
	})
}

// WriteTx opens a write transaction and hands fn the transaction and a
// fresh per-transaction work queue, draining it and publishing the
// resulting events exactly as the public Manager methods do. Exported
// so pkg/update can compose its own multi-step operations (registerUpdate,
// modifyShards, finishUpdate) onto the same transaction/drain/publish
// lifecycle instead of duplicating it.
func (m *Manager) WriteTx(fn func(tx *storage.Transaction, queue *workqueue.Queue) error) error {
	return m.writeTx(fn)
}

// InsertTasksTx is the tx-scoped core of InsertTasks, exported for
// composition by pkg/update.
func (m *Manager) InsertTasksTx(tx *storage.Transaction, queue *workqueue.Queue, configs []types.TaskConfig, ancestorId string) ([]string, error) {
	return m.insertTasksTx(tx, queue, configs, ancestorId)
}

// ChangeStateTx drives each of tasks to target within an already-open
// transaction, returning the count that accepted the transition.
// Exported for composition by pkg/update.
func (m *Manager) ChangeStateTx(tx *storage.Transaction, queue *workqueue.Queue, tasks []*types.ScheduledTask, target types.ScheduleStatus, auditMsg string) int {
	count := 0
	for _, task := range tasks {
		jobKey := task.JobKey()
		mach := statemachine.New(task.TaskId, jobKey, task.ShardId(), task, m.updateCheckFor(tx, jobKey), queue, m.clock, task.Status)
		if mach.UpdateState(target, auditMsg, nil) {
			count++
		}
	}
	return count
}

// insertTasksTx is the tx-scoped core of InsertTasks, reused by the
// reschedule/UPDATE/ROLLBACK cascade in drain.go so a replacement task
// composes into the same commit as the transition that spawned it.
func (m *Manager) insertTasksTx(tx *storage.Transaction, queue *workqueue.Queue, configs []types.TaskConfig, ancestorId string) ([]string, error) {
	ids := make([]string, 0, len(configs))
	for _, cfg := range configs {
		id := generateTaskId(m.clock, cfg.Role, cfg.JobName, cfg.ShardId)
		task := &types.ScheduledTask{
			TaskId:       id,
			Status:       types.StatusInit,
			AncestorId:   ancestorId,
			AssignedTask: types.AssignedTask{TaskConfig: cfg},
		}
		if err := tx.Tasks().Save(task); err != nil {
			return nil, err
		}
		jobKey := cfg.JobConfigKey()
		mach := statemachine.New(id, jobKey, cfg.ShardId, task, m.updateCheckFor(tx, jobKey), queue, m.clock, types.StatusInit)
		mach.UpdateState(types.StatusPending, "", nil)
		ids = append(ids, id)
	}
	return ids, nil
}

// updateCheckFor returns the UpdateCheck closure a machine uses to
// decide whether a reschedule should be an UPDATE/ROLLBACK instead of
// a plain RESCHEDULE: true iff jobKey currently has a registered
// update.
func (m *Manager) updateCheckFor(tx *storage.Transaction, jobKey types.JobKey) statemachine.UpdateCheck {
	return func() bool {
		_, ok, err := tx.Updates().Get(jobKey)
		return err == nil && ok
	}
}

// writeTx opens a write transaction, hands fn a fresh per-transaction
// work queue, drains it after fn succeeds, and publishes the resulting
// events once the underlying commit has succeeded.
func (m *Manager) writeTx(fn func(tx *storage.Transaction, queue *workqueue.Queue) error) error {
	timer := metrics.NewTimer()
	evts, err := m.store.DoInWriteTransaction(func(tx *storage.Transaction) error {
		queue := workqueue.New()
		if err := fn(tx, queue); err != nil {
			return err
		}
		return m.drain(tx, queue)
	})
	timer.ObserveDuration(metrics.WriteTransactionDuration)
	if err != nil {
		return err
	}
	m.publish(evts)
	return nil
}

func (m *Manager) publish(evts []storage.Event) {
	if m.broker == nil {
		return
	}
	for _, e := range evts {
		ev := events.Event{
			Kind:     events.Kind(e.Kind),
			JobKey:   e.JobKey,
			Shard:    e.Shard,
			Previous: e.Previous,
			Message:  e.Detail,
		}
		if e.Task != nil {
			ev.TaskId = e.Task.TaskId
		}
		m.broker.Publish(ev)
	}
}

func computePortMap(requested []types.Port, offered []int32) map[string]int32 {
	if len(requested) == 0 {
		return nil
	}
	out := make(map[string]int32, len(requested))
	for i, p := range requested {
		if i >= len(offered) {
			break
		}
		out[p.Name] = offered[i]
	}
	return out
}
