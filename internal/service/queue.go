package service

import (
	"context"
	"sync"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
)

// EventQueue buffers events that arrive before the connection is fully synced.
//
// Later events supersede pending ones for the same target: a participant change replaces
// queued changes in the same group that share a participant, and a group metadata change
// replaces queued metadata changes for that group. Everything else is kept in arrival order.
// The queue is drained once; after that it rejects new events.
type EventQueue struct {
	mu     sync.Mutex
	events []domain.InboundEvent
	closed bool

	onSupersede func(n int)
}

// NewEventQueue creates an empty queue. onSupersede, if set, is told how many queued events each enqueue replaced.
func NewEventQueue(onSupersede func(n int)) *EventQueue {
	return &EventQueue{onSupersede: onSupersede}
}

// Enqueue appends ev after removing the pending events it supersedes
func (q *EventQueue) Enqueue(ev domain.InboundEvent) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}

	removed := 0
	kept := q.events[:0]
	for _, queued := range q.events {
		if supersedes(ev, queued) {
			removed++
			continue
		}
		kept = append(kept, queued)
	}
	// Clear the tail so dropped payloads can be collected
	for i := len(kept); i < len(q.events); i++ {
		q.events[i] = domain.InboundEvent{}
	}
	q.events = append(kept, ev)
	q.mu.Unlock()

	if removed > 0 && q.onSupersede != nil {
		q.onSupersede(removed)
	}
	return nil
}

// Len returns the number of pending events
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether the queue has been drained
func (q *EventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// DrainAndReplay closes the queue and passes every pending event to replay in insertion order.
// It stops early if ctx is canceled; events not yet replayed are discarded either way.
func (q *EventQueue) DrainAndReplay(ctx context.Context, replay func(context.Context, domain.InboundEvent)) (int, error) {
	q.mu.Lock()
	pending := q.events
	q.events = nil
	q.closed = true
	q.mu.Unlock()

	for i, ev := range pending {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		replay(ctx, ev)
	}
	return len(pending), nil
}

func supersedes(next, queued domain.InboundEvent) bool {
	if next.Kind != queued.Kind {
		return false
	}
	switch next.Kind {
	case domain.EventParticipantChange:
		return next.Participants.Overlaps(queued.Participants)
	case domain.EventGroupMetadataChange:
		return next.Group != nil && queued.Group != nil && next.Group.GroupID == queued.Group.GroupID
	default:
		return false
	}
}
