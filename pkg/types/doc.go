/*
Package types defines the data model shared by corral's storage, state
machine, state manager, and update coordinator.

# Core Types

Task:
  - ScheduledTask: the persistent record owned by the store. Holds the
    immutable TaskId, mutable Status, the AssignedTask configuration
    substructure, FailureCount, an optional AncestorId, and the ordered
    TaskEvents audit log.
  - AssignedTask: a task's declared configuration (owner role,
    environment, job name, shard id, resource requests, attribute
    constraints) plus placement info populated on ASSIGN.
  - TaskConfig: what a caller submits when inserting new tasks — the
    portion of AssignedTask that exists before a task id is generated.

Update:
  - JobUpdateConfiguration: keyed by (role, environment, jobName), carries the
    opaque UpdateToken and one TaskUpdateConfiguration per shard in the
    registered update.
  - TaskUpdateConfiguration: OldConfig/NewConfig pair for one shard;
    either may be nil (added or removed shard).

Constraints:
  - Attribute: a host-level (name, values) tag.
  - Constraint, ValueConstraint, LimitConstraint: the predicates the
    scheduler evaluates against a candidate host's attributes.

# Task id format

generateTaskId produces `<epochMillis>-<role>-<jobName>-<shardId>-<uuid>`,
with every character outside [A-Za-z0-9_-] in any component replaced by
"-". Chronological sort of task ids reflects creation order.
*/
package types
