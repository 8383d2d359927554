/*
Package log provides corral's structured logging on zerolog.

A single process logger is configured once via Init; the rest of the
tree obtains child loggers through the domain-typed constructors:
Component for subsystems, Task for one task id, Job for a types.JobKey,
and Update for a rolling update.

	if err := log.Init(log.Options{Level: "debug", JSON: true}); err != nil {
		...
	}

	log.Task(taskId).Warn().
		Str("from", string(from)).Str("to", string(to)).
		Msg("illegal task state transition")

	log.Job(jobKey).Warn().Msg("update config missing; skipping reschedule")

Do not log task configs or attribute values verbatim in production —
role and job name are enough to correlate; full payloads belong in the
task's own taskEvents audit trail, not the process log.
*/
package log
