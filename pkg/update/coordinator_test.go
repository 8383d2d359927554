package update

import (
	"testing"

	"github.com/cuemby/corral/pkg/driver"
	"github.com/cuemby/corral/pkg/events"
	"github.com/cuemby/corral/pkg/statemgr"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T) (*Coordinator, *statemgr.Manager) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	t.Cleanup(broker.Close)

	mgr := statemgr.New(store, driver.NoopDriver{}, broker)
	return New(mgr), mgr
}

var jobKey = types.JobKey{Role: "r", Name: "j"}

func runToRunning(t *testing.T, mgr *statemgr.Manager, ids []string) {
	t.Helper()
	q := types.TaskQuery{TaskIds: ids}
	for _, st := range []types.ScheduleStatus{types.StatusAssigned, types.StatusStarting, types.StatusRunning} {
		_, err := mgr.ChangeState(q, st, "")
		require.NoError(t, err)
	}
}

func TestRollingUpdateHappyPath(t *testing.T) {
	coord, mgr := newHarness(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{
		{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 1},
		{Role: "r", JobName: "j", ShardId: 1, IsService: true, Priority: 1},
	})
	require.NoError(t, err)
	runToRunning(t, mgr, ids)

	token, err := coord.RegisterUpdate(jobKey, []types.TaskConfig{
		{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 2},
		{Role: "r", JobName: "j", ShardId: 1, IsService: true, Priority: 2},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	result, err := coord.ModifyShards("alice", jobKey, []int{0, 1}, token, true)
	require.NoError(t, err)
	require.Equal(t, map[int]types.UpdateResult{0: types.ResultRestarting, 1: types.ResultRestarting}, result)

	updating, err := mgr.FetchTasks(types.TaskQuery{Role: "r", JobName: "j", Statuses: []types.ScheduleStatus{types.StatusUpdating}})
	require.NoError(t, err)
	require.Len(t, updating, 2)

	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: ids}, types.StatusKilled, "")
	require.NoError(t, err)

	all, err := mgr.FetchTasks(types.TaskQuery{Role: "r", JobName: "j"})
	require.NoError(t, err)
	require.Len(t, all, 4, "2 killed originals + 2 rescheduled replacements")

	replacements := 0
	for _, task := range all {
		if task.AncestorId != "" {
			replacements++
			require.Contains(t, ids, task.AncestorId)
			require.Equal(t, types.StatusPending, task.Status)
			require.Equal(t, 2, task.AssignedTask.Priority)
		}
	}
	require.Equal(t, 2, replacements)

	ok, err := coord.FinishUpdate("alice", jobKey, token, types.OutcomeSuccess, true)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = coord.FinishUpdate("alice", jobKey, token, types.OutcomeSuccess, false)
	require.NoError(t, err)
	require.False(t, ok, "second finishUpdate finds no registered update")
}

func TestModifyShardsEmptyShardSetIsNoop(t *testing.T) {
	coord, mgr := newHarness(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0, IsService: true}})
	require.NoError(t, err)
	runToRunning(t, mgr, ids)

	token, err := coord.RegisterUpdate(jobKey, []types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 2}})
	require.NoError(t, err)

	result, err := coord.ModifyShards("alice", jobKey, nil, token, true)
	require.NoError(t, err)
	require.Empty(t, result)

	tasks, err := mgr.FetchTasks(types.TaskQuery{Role: "r", JobName: "j"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, types.StatusRunning, tasks[0].Status)
}

func TestModifyShardsBadTokenRejected(t *testing.T) {
	coord, mgr := newHarness(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0, IsService: true}})
	require.NoError(t, err)
	runToRunning(t, mgr, ids)

	_, err = coord.RegisterUpdate(jobKey, []types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 2}})
	require.NoError(t, err)

	_, err = coord.ModifyShards("alice", jobKey, []int{0}, "wrong-token", true)
	require.Error(t, err)
	require.IsType(t, &Exception{}, err)
}

func TestFinishUpdateFailedKeepsShardsWithNonNullOldConfig(t *testing.T) {
	coord, mgr := newHarness(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{
		{Role: "r", JobName: "j", ShardId: 0, IsService: true},
		{Role: "r", JobName: "j", ShardId: 1, IsService: true},
		{Role: "r", JobName: "j", ShardId: 2, IsService: true},
	})
	require.NoError(t, err)
	runToRunning(t, mgr, ids)

	token, err := coord.RegisterUpdate(jobKey, []types.TaskConfig{
		{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 2},
		{Role: "r", JobName: "j", ShardId: 1, IsService: true, Priority: 2},
	})
	require.NoError(t, err)

	ok, err := coord.FinishUpdate("alice", jobKey, token, types.OutcomeFailed, true)
	require.NoError(t, err)
	require.True(t, ok)

	tasks, err := mgr.FetchTasks(types.TaskQuery{Role: "r", JobName: "j"})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		require.Equal(t, types.StatusRunning, task.Status, "FAILED keeps oldConfig shards untouched")
	}
}

func TestFinishUpdateSuccessKillsShardRemovedByUpdate(t *testing.T) {
	coord, mgr := newHarness(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{
		{Role: "r", JobName: "j", ShardId: 0, IsService: true},
		{Role: "r", JobName: "j", ShardId: 1, IsService: true},
		{Role: "r", JobName: "j", ShardId: 2, IsService: true},
	})
	require.NoError(t, err)
	runToRunning(t, mgr, ids)
	shard2Id := ids[2]

	token, err := coord.RegisterUpdate(jobKey, []types.TaskConfig{
		{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 2},
		{Role: "r", JobName: "j", ShardId: 1, IsService: true, Priority: 2},
	})
	require.NoError(t, err)

	ok, err := coord.FinishUpdate("alice", jobKey, token, types.OutcomeSuccess, true)
	require.NoError(t, err)
	require.True(t, ok)

	tasks, err := mgr.FetchTasks(types.TaskQuery{TaskIds: []string{shard2Id}})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, types.StatusKilling, tasks[0].Status)

	kept, err := mgr.FetchTasks(types.TaskQuery{TaskIds: []string{ids[0], ids[1]}})
	require.NoError(t, err)
	for _, task := range kept {
		require.Equal(t, types.StatusRunning, task.Status)
	}
}

func TestModifyShardsUnrecognizedShardMakesNoMutation(t *testing.T) {
	coord, mgr := newHarness(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{
		{Role: "r", JobName: "j", ShardId: 0, IsService: true},
		{Role: "r", JobName: "j", ShardId: 1, IsService: true},
	})
	require.NoError(t, err)
	runToRunning(t, mgr, ids)

	token, err := coord.RegisterUpdate(jobKey, []types.TaskConfig{
		{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 2},
		{Role: "r", JobName: "j", ShardId: 1, IsService: true, Priority: 2},
	})
	require.NoError(t, err)

	_, err = coord.ModifyShards("alice", jobKey, []int{0, 1, 2}, token, true)
	require.Error(t, err)
	require.IsType(t, &Exception{}, err)

	tasks, err := mgr.FetchTasks(types.TaskQuery{Role: "r", JobName: "j"})
	require.NoError(t, err)
	require.Len(t, tasks, 2, "no shard-2 task should have been added")
	for _, task := range tasks {
		require.Equal(t, types.StatusRunning, task.Status, "shards 0 and 1 must not have moved")
	}
}

func TestRegisterUpdateRejectsConcurrentUpdate(t *testing.T) {
	coord, mgr := newHarness(t)

	ids, err := mgr.InsertTasks([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0, IsService: true}})
	require.NoError(t, err)
	runToRunning(t, mgr, ids)

	_, err = coord.RegisterUpdate(jobKey, []types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 2}})
	require.NoError(t, err)

	_, err = coord.RegisterUpdate(jobKey, []types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0, IsService: true, Priority: 3}})
	require.Error(t, err)
	require.IsType(t, &Exception{}, err)
}
