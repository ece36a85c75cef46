package core

import "sync"

// EventBus is the append-only event queue for the whole process, scoped per
// scenario instance so worlds stay isolated from each other.
//
// Producers (player-action handlers, the engine itself) call Publish
// synchronously and return immediately; the engine drains each instance's
// queue on its tick. Drain swaps the queue out atomically, so events
// published while a drain's contents are being processed land in the next
// drain and no event is consumed twice or lost.
type EventBus struct {
	mu     sync.Mutex
	queues map[string][]GameEvent
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{queues: make(map[string][]GameEvent)}
}

// Publish enqueues an event for its instance. Never blocks.
func (b *EventBus) Publish(ev GameEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[ev.InstanceID] = append(b.queues[ev.InstanceID], ev)
}

// Drain returns all events queued for instanceID and clears its queue in one
// atomic step.
func (b *EventBus) Drain(instanceID string) []GameEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.queues[instanceID]
	if len(events) == 0 {
		return nil
	}
	delete(b.queues, instanceID)
	return events
}

// Pending reports the number of events waiting for instanceID.
func (b *EventBus) Pending(instanceID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[instanceID])
}

// Clear discards all queued events for a stopped instance.
func (b *EventBus) Clear(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, instanceID)
}

// PendingByInstance is a diagnostic snapshot of non-empty queues.
func (b *EventBus) PendingByInstance() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.queues))
	for id, q := range b.queues {
		if len(q) > 0 {
			out[id] = len(q)
		}
	}
	return out
}
