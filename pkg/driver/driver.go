package driver

// Driver is the resource-offer framework's task-termination contract.
// KillTask is fire-and-forget and must be idempotent on the framework
// side: the state manager calls it post-commit and never inspects a
// return value beyond logging it.
type Driver interface {
	KillTask(taskId string) error
}

// NoopDriver discards every kill request. It is useful for tests and
// for running the state manager without a live framework connection.
type NoopDriver struct{}

func (NoopDriver) KillTask(taskId string) error { return nil }
