package events

import (
	"sync"
	"time"

	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/types"
)

// Kind tags a scheduler-core event.
type Kind string

const (
	// TaskStateChange fires on every effective task transition.
	TaskStateChange Kind = "task.state_change"
	// TaskRescheduled fires when a terminal task's replacement is
	// inserted (plain reschedule, UPDATE, or ROLLBACK).
	TaskRescheduled Kind = "task.rescheduled"
	// DriverRegistered fires once the resource-offer driver has
	// registered with the framework.
	DriverRegistered Kind = "driver.registered"
	// HostMaintenanceChanged fires when a host's maintenance mode
	// changes, affecting constraint evaluation for future placements.
	HostMaintenanceChanged Kind = "host.maintenance_changed"
)

// Event is one post-commit notification. Fields beyond Kind and At are
// populated per kind: state changes carry TaskId and Previous,
// reschedules carry Shard and the replacement id in Message.
type Event struct {
	Kind     Kind
	At       time.Time
	TaskId   string
	JobKey   types.JobKey
	Shard    int
	Previous types.ScheduleStatus
	Message  string
}

// Subscription receives matching events on C. The channel is closed by
// Unsubscribe or by closing the broker; it is never closed while the
// subscription is still registered.
type Subscription struct {
	C     chan Event
	kinds map[Kind]bool
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Broker fans committed events out to subscribers. Publish runs on the
// publisher's goroutine and never blocks: a subscriber that has fallen
// behind its channel buffer loses the event, and every loss is counted
// on metrics.EventsDroppedTotal.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]bool
	closed bool
}

// NewBroker returns an empty broker, ready for use.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]bool)}
}

// subscriptionBuffer bounds how far a subscriber may lag before it
// starts losing events.
const subscriptionBuffer = 64

// Subscribe registers a new subscription. With no kinds given it
// receives everything; otherwise only the listed kinds.
func (b *Broker) Subscribe(kinds ...Kind) *Subscription {
	sub := &Subscription{C: make(chan Event, subscriptionBuffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.C)
		return sub
	}
	b.subs[sub] = true
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.subs[sub] {
		return
	}
	delete(b.subs, sub)
	close(sub.C)
}

// Publish delivers e to every interested subscriber, stamping At when
// the caller left it zero.
func (b *Broker) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(e.Kind)).Inc()
	for sub := range b.subs {
		if !sub.wants(e.Kind) {
			continue
		}
		select {
		case sub.C <- e:
		default:
			metrics.EventsDroppedTotal.Inc()
		}
	}
}

// Close shuts the broker down: every subscription channel is closed
// and later Publish calls are discarded.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.C)
	}
	b.subs = make(map[*Subscription]bool)
}

// SubscriberCount returns the number of registered subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
