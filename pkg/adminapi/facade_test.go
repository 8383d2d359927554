package adminapi

import (
	"testing"

	"github.com/cuemby/corral/pkg/config"
	"github.com/cuemby/corral/pkg/driver"
	"github.com/cuemby/corral/pkg/statemgr"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
	"github.com/cuemby/corral/pkg/update"
	"github.com/stretchr/testify/require"
)

func newFacade(t *testing.T, cfg config.Config) (*Facade, *statemgr.Manager) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr := statemgr.New(store, driver.NoopDriver{}, nil)
	coord := update.New(mgr)
	return New(cfg, store, mgr, coord), mgr
}

func TestCreateJobRejectedWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.EnableJobCreation = false
	facade, _ := newFacade(t, cfg)

	_, err := facade.CreateJob([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0}})
	require.Error(t, err)

	tasks, err := facade.GetTasksStatus(types.TaskQuery{})
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestRestartShardsReschedulesEvenNonServiceTasks(t *testing.T) {
	facade, mgr := newFacade(t, config.Default())

	ids, err := facade.CreateJob([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0}})
	require.NoError(t, err)
	for _, st := range []types.ScheduleStatus{types.StatusAssigned, types.StatusStarting, types.StatusRunning} {
		_, err := mgr.ChangeState(types.TaskQuery{TaskIds: ids}, st, "")
		require.NoError(t, err)
	}

	n, err := facade.RestartShards("ops", types.JobKey{Role: "r", Name: "j"}, []int{0})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	tasks, err := facade.GetTasksStatus(types.TaskQuery{TaskIds: ids})
	require.NoError(t, err)
	require.Equal(t, types.StatusRestarting, tasks[0].Status)

	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: ids}, types.StatusKilled, "")
	require.NoError(t, err)

	all, err := facade.GetTasksStatus(types.TaskQuery{Role: "r", JobName: "j"})
	require.NoError(t, err)
	require.Len(t, all, 2, "killed original plus its replacement")
	for _, task := range all {
		if task.TaskId == ids[0] {
			require.Equal(t, types.StatusKilled, task.Status)
		} else {
			require.Equal(t, types.StatusPending, task.Status)
			require.Equal(t, ids[0], task.AncestorId)
		}
	}
}

func TestGetJobsListsOnlyActiveJobs(t *testing.T) {
	facade, mgr := newFacade(t, config.Default())

	ids, err := facade.CreateJob([]types.TaskConfig{{Role: "r", JobName: "j", ShardId: 0}})
	require.NoError(t, err)

	jobs, err := facade.GetJobs()
	require.NoError(t, err)
	require.Equal(t, []types.JobKey{{Role: "r", Name: "j"}}, jobs)

	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: ids}, types.StatusKilling, "cleanup")
	require.NoError(t, err)
	_, err = mgr.ChangeState(types.TaskQuery{TaskIds: ids}, types.StatusKilled, "")
	require.NoError(t, err)

	jobs, err = facade.GetJobs()
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestQuotaRoundTrip(t *testing.T) {
	facade, _ := newFacade(t, config.Default())

	_, ok, err := facade.GetQuota("r")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, facade.SetQuota(storage.Quota{Role: "r", NumCPUs: 4, RAMMB: 8192, DiskMB: 65536}))

	q, ok, err := facade.GetQuota("r")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(4), q.NumCPUs)
	require.Equal(t, int64(8192), q.RAMMB)
}
