package storage

// Transaction is the StoreProvider bound to one in-flight write, plus
// its two deferred-side-effect buffers. A Transaction is only valid
// for the lifetime of the DoInWriteTransaction call that produced it.
type Transaction struct {
	sp StoreProvider

	deferred []func()
	events   []Event
}

func newTransaction(sp StoreProvider) *Transaction {
	return &Transaction{sp: sp}
}

func (tx *Transaction) Tasks() TaskStore           { return tx.sp.Tasks() }
func (tx *Transaction) Updates() UpdateStore       { return tx.sp.Updates() }
func (tx *Transaction) Quota() QuotaStore          { return tx.sp.Quota() }
func (tx *Transaction) Attributes() AttributeStore { return tx.sp.Attributes() }
func (tx *Transaction) Scheduler() SchedulerStore  { return tx.sp.Scheduler() }

// Publish buffers a pub/sub event. It is published only if the
// transaction commits.
func (tx *Transaction) Publish(e Event) {
	tx.events = append(tx.events, e)
}

// Defer buffers an external call (a driver kill, say). It runs only
// if the transaction commits, after every prior Defer call in this
// transaction, and only once the bbolt commit itself has succeeded.
func (tx *Transaction) Defer(fn func()) {
	tx.deferred = append(tx.deferred, fn)
}

// Nested runs fn against this same transaction. It exists so callers
// that compose several logical write operations into one commit — the
// update coordinator folding a reschedule into a shard edit, say — can
// express that composition the way they would a nested transaction,
// without bbolt actually opening a second update.
func (tx *Transaction) Nested(fn func(tx *Transaction) error) error {
	return fn(tx)
}
