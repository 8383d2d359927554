// Package workqueue holds the deferred side-effect queue a write
// transaction drains at commit time.
//
// A task state machine never performs a side effect itself — killing a
// task, persisting a mutation, rescheduling a replacement — it only
// enqueues a Command describing the side effect. The queue enforces
// one ordering guarantee: DELETE commands drain strictly after every
// other command, so a transition that both mutates a task and then
// deletes it cannot have the delete race the mutation. Within either
// partition, order is unspecified.
package workqueue
