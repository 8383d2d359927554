// Package constraints implements the two pure attribute predicates the
// scheduler evaluates when deciding whether a candidate host is fit for
// a shard: value constraints (the host must/must-not carry a tag) and
// limit constraints (at most N active tasks of the same job may share a
// tag value across hosts).
package constraints
