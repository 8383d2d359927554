/*
Package storage implements corral's transactional store contract on top
of BoltDB (bbolt): embedded, zero-dependency, single-writer, ACID.

# Transaction model

Reads open a bbolt view and hand the caller a StoreProvider with no
side-effect facilities:

	err := store.DoInReadTransaction(func(sp storage.StoreProvider) error {
		tasks, err := sp.Tasks().Fetch(query)
		return err
	})

Writes open a bbolt update and hand the caller a *Transaction, which
embeds a StoreProvider plus two deferred-side-effect buffers:

	events, err := store.DoInWriteTransaction(func(tx *storage.Transaction) error {
		return tx.Tasks().Save(task)
	})

Transaction.Publish buffers a pub/sub event; Transaction.Defer buffers
an arbitrary external call (a driver kill, say). Neither runs until the
underlying bbolt transaction has committed: DoInWriteTransaction runs
every deferred call, in enqueue order, only after db.Update returns
nil, and then returns the buffered events to the caller to publish. If
the transaction body returns an error, nothing buffered ever runs and
DoInWriteTransaction returns that error with no events.

Callers that need to compose several logical operations into one
atomic commit — the update coordinator folding a shard edit and a
reschedule into the same write, say — do so by threading the same
*Transaction through both operations rather than opening a second
write transaction; bbolt does not support nested updates, and
corral's higher-level packages are written with that in mind.

# Buckets

One bucket per store: tasks, job_updates, quota, attributes, and
scheduler. Every record is JSON, keyed by a caller-chosen string (task
id, job key, role, host, or a fixed key for singleton scheduler state).
TaskEvents live inline on their owning ScheduledTask record rather than
in a bucket of their own — they are never queried independently of the
task whose audit log they form.
*/
package storage
