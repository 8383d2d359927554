package statemgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/corral/pkg/events"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
	"github.com/stretchr/testify/require"
)

type recordingDriver struct {
	mu     sync.Mutex
	killed []string
}

func (d *recordingDriver) KillTask(taskId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killed = append(d.killed, taskId)
	return nil
}

func (d *recordingDriver) kills() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.killed...)
}

func newTestManager(t *testing.T) (*Manager, *storage.BoltStore, *recordingDriver, *events.Broker) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	drv := &recordingDriver{}
	broker := events.NewBroker()
	t.Cleanup(broker.Close)

	return New(store, drv, broker), store, drv, broker
}

func TestInsertTasksDrivesToPending(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0}})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	tasks, err := mgr.FetchTasks(types.TaskQuery{TaskIds: ids})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, types.StatusPending, tasks[0].Status)
	require.Len(t, tasks[0].TaskEvents, 1)
}

func TestAssignTaskFillsPortMap(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{
		Role: "r", JobName: "j", ShardId: 0,
		RequestedPorts: []types.Port{{Name: "http"}},
	}})
	require.NoError(t, err)

	assigned, err := mgr.AssignTask(ids[0], "h1", "s1", []int32{31000})
	require.NoError(t, err)
	require.Equal(t, "h1", assigned.SlaveHost)
	require.Equal(t, int32(31000), assigned.AssignedPorts["http"])

	tasks, err := mgr.FetchTasks(types.TaskQuery{TaskIds: ids})
	require.NoError(t, err)
	require.Equal(t, types.StatusAssigned, tasks[0].Status)
}

func TestChangeStateToKillingCallsDriver(t *testing.T) {
	mgr, _, drv, _ := newTestManager(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0}})
	require.NoError(t, err)

	n, err := mgr.ChangeState(types.TaskQuery{TaskIds: ids}, types.StatusKilling, "killed by user")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, ids, drv.kills())
}

func TestServiceFailureReschedulesWithAncestor(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0, IsService: true, MaxTaskFailures: 3}})
	require.NoError(t, err)
	oldId := ids[0]

	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: []string{oldId}}, types.StatusAssigned, "")
	require.NoError(t, err)
	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: []string{oldId}}, types.StatusStarting, "")
	require.NoError(t, err)
	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: []string{oldId}}, types.StatusRunning, "")
	require.NoError(t, err)
	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: []string{oldId}}, types.StatusFailed, "")
	require.NoError(t, err)

	tasks, err := mgr.FetchTasks(types.TaskQuery{Role: "r", JobName: "j"})
	require.NoError(t, err)
	require.Len(t, tasks, 2, "old task plus its reschedule replacement")

	var replacement *types.ScheduledTask
	for _, task := range tasks {
		if task.TaskId != oldId {
			replacement = task
		}
	}
	require.NotNil(t, replacement)
	require.Equal(t, oldId, replacement.AncestorId)
	require.Equal(t, types.StatusPending, replacement.Status)
}

func TestStatusUpdateUnknownTaskRequestsKill(t *testing.T) {
	mgr, _, drv, _ := newTestManager(t)

	accepted, err := mgr.StatusUpdate("ghost-task", types.StatusRunning, "")
	require.NoError(t, err)
	require.False(t, accepted)
	require.Equal(t, []string{"ghost-task"}, drv.kills())

	tasks, err := mgr.FetchTasks(types.TaskQuery{TaskIds: []string{"ghost-task"}})
	require.NoError(t, err)
	require.Empty(t, tasks, "nothing is persisted for an unknown task")
}

func TestStatusUpdateDrivesKnownTask(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0}})
	require.NoError(t, err)

	accepted, err := mgr.StatusUpdate(ids[0], types.StatusAssigned, "")
	require.NoError(t, err)
	require.True(t, accepted)

	accepted, err = mgr.StatusUpdate(ids[0], types.StatusFinished, "")
	require.NoError(t, err)
	require.False(t, accepted, "ASSIGNED cannot jump straight to FINISHED")
}

func TestStateChangeEventCarriesPreviousStatus(t *testing.T) {
	mgr, _, _, broker := newTestManager(t)
	sub := broker.Subscribe(events.TaskStateChange)
	defer broker.Unsubscribe(sub)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0}})
	require.NoError(t, err)
	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: ids}, types.StatusAssigned, "")
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub.C:
			if e.Previous != types.StatusPending {
				continue
			}
			require.Equal(t, events.TaskStateChange, e.Kind)
			require.Equal(t, ids[0], e.TaskId)
			require.Equal(t, types.JobKey{Role: "r", Name: "j"}, e.JobKey)
			return
		case <-deadline:
			t.Fatal("no ASSIGNED state-change event with previous=PENDING observed")
		}
	}
}

func TestKillTasksReturnsWhenContextExpires(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err = mgr.KillTasks(ctx, types.TaskQuery{TaskIds: ids}, "admin kill", KillTasksOptions{
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	tasks, err := mgr.FetchTasks(types.TaskQuery{TaskIds: ids})
	require.NoError(t, err)
	require.Equal(t, types.StatusKilling, tasks[0].Status)
}
