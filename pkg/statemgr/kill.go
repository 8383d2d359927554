package statemgr

import (
	"context"
	"time"

	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/types"
)

// KillTasksOptions configures the backoff loop KillTasks polls under.
// Zero values fall back to the documented defaults (1s initial, 30s
// max), matching kill_task_initial_backoff / kill_task_max_backoff.
type KillTasksOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// KillTasks drives every task matching query to KILLING, then blocks,
// polling the store under an exponential backoff (doubling, truncated
// at MaxBackoff) until no active task still matches. It is the one
// state-manager operation that blocks outside of a transaction; ctx
// cancellation ends the wait early and returns ctx.Err(), leaving the
// tasks in whatever state they have already reached — this is a
// best-effort wait, not a guarantee every task has actually stopped.
func (m *Manager) KillTasks(ctx context.Context, query types.TaskQuery, auditMsg string, opts KillTasksOptions) error {
	if _, err := m.ChangeState(query, types.StatusKilling, auditMsg); err != nil {
		return err
	}

	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	watch := query
	watch.Statuses = activeStatuses

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.KillTaskWaitDuration)

	for {
		tasks, err := m.FetchTasks(watch)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

var activeStatuses = []types.ScheduleStatus{
	types.StatusPending, types.StatusAssigned, types.StatusStarting, types.StatusRunning,
	types.StatusUpdating, types.StatusRollback, types.StatusKilling, types.StatusPreempting, types.StatusRestarting,
}
