package sniper

import (
	"sync/atomic"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// eventQueue is a bounded buffer between the discovery source and the
// workers. When full, the oldest event is evicted: a fresh listing is worth
// more than a stale one, and the producer must never block.
type eventQueue struct {
	ch      chan domain.DiscoveryEvent
	dropped atomic.Int64
}

func newEventQueue(size int) *eventQueue {
	return &eventQueue{ch: make(chan domain.DiscoveryEvent, size)}
}

// Push enqueues ev, evicting the oldest event if the buffer is full.
func (q *eventQueue) Push(ev domain.DiscoveryEvent) {
	for {
		select {
		case q.ch <- ev:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns how many events were evicted.
func (q *eventQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	return len(q.ch)
}
