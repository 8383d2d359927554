// Package metrics registers corral's prometheus metrics and exposes
// them over the daemon's HTTP listener.
//
// Metrics track task counts by (role, job, status), state-transition
// and reschedule counters, write-transaction and kill-task-wait
// latency histograms, workqueue depth (sampled from
// pkg/workqueue.Depth, intentionally unsynchronized per that
// package's own concurrency note), and rolling-update counters.
// Collector samples task counts from a statemgr.Manager on a 15s
// tick; the in-transaction counters are updated directly by their
// owning packages.
//
// Probes tracks named component checks for the /health, /ready, and
// /live HTTP handlers; readiness considers only the critical
// components named at construction.
package metrics
