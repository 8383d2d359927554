package metrics

import (
	"time"

	"github.com/cuemby/corral/pkg/types"
	"github.com/cuemby/corral/pkg/workqueue"
)

// TaskFetcher is the subset of statemgr.Manager the collector needs.
// Defined here rather than imported so pkg/statemgr is free to import
// pkg/metrics for its own counters without a import cycle.
type TaskFetcher interface {
	FetchTasks(query types.TaskQuery) ([]*types.ScheduledTask, error)
}

// Collector periodically samples task-status counts and the workqueue
// depth from a TaskFetcher (in the daemon, an adapter over
// adminapi.Facade whose reads go to a *statemgr.Manager) into the
// package's prometheus gauges.
type Collector struct {
	mgr    TaskFetcher
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector bound to mgr.
func NewCollector(mgr TaskFetcher) *Collector {
	return &Collector{
		mgr:    mgr,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTaskMetrics()
	WorkQueueDepth.Set(float64(workqueue.Depth()))
}

func (c *Collector) collectTaskMetrics() {
	tasks, err := c.mgr.FetchTasks(types.TaskQuery{})
	if err != nil {
		return
	}

	counts := make(map[[3]string]int)
	for _, task := range tasks {
		key := [3]string{task.AssignedTask.Role, task.AssignedTask.JobName, string(task.Status)}
		counts[key]++
	}

	TasksByStatus.Reset()
	for key, count := range counts {
		TasksByStatus.WithLabelValues(key[0], key[1], key[2]).Set(float64(count))
	}
}
