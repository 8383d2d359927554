/*
Package events delivers the scheduler core's post-commit notifications:
typed Event values carrying the task id, job key, shard, and prior
status the write transaction recorded them with.

Broker fans events out synchronously on the publisher's goroutine.
Delivery is at-most-once per subscriber: each Subscription has a
bounded channel, and a subscriber that stops draining loses events
rather than blocking the transaction-finalization path that publishes
them. Losses are observable on metrics.EventsDroppedTotal.
Subscriptions may filter by kind at Subscribe time.
*/
package events
