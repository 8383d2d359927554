package events

import (
	"testing"

	"github.com/cuemby/corral/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFiltersByKind(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	sub := b.Subscribe(TaskRescheduled)

	b.Publish(Event{Kind: TaskStateChange, TaskId: "t1"})
	b.Publish(Event{Kind: TaskRescheduled, JobKey: types.JobKey{Role: "r", Name: "j"}, Shard: 3})

	e := <-sub.C
	require.Equal(t, TaskRescheduled, e.Kind)
	require.Equal(t, 3, e.Shard)
	require.False(t, e.At.IsZero(), "publish stamps the event time")
	require.Empty(t, sub.C, "the state-change event was filtered out")
}

func TestUnfilteredSubscriptionSeesEverything(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	sub := b.Subscribe()

	b.Publish(Event{Kind: TaskStateChange})
	b.Publish(Event{Kind: DriverRegistered})

	require.Len(t, sub.C, 2)
}

func TestSlowSubscriberLosesEventsWithoutBlocking(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	sub := b.Subscribe()

	for i := 0; i < subscriptionBuffer+10; i++ {
		b.Publish(Event{Kind: TaskStateChange})
	}

	require.Len(t, sub.C, subscriptionBuffer, "overflow is dropped, not queued")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())
	_, open := <-sub.C
	require.False(t, open)

	b.Unsubscribe(sub) // repeat is harmless
}

func TestCloseDiscardsLaterPublishes(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Close()
	b.Publish(Event{Kind: TaskStateChange})

	_, open := <-sub.C
	require.False(t, open)
	require.Equal(t, 0, b.SubscriberCount())
}
