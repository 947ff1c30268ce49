// Package feed moves external inputs into the control loop: push and poll
// price sources, Redis signal streams, and scheduled operator commands.
package feed

import (
	"sync"

	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

// Pusher is the producer side of a Queue.
type Pusher[T any] interface {
	Push(v T) error
}

// Queue is a bounded FIFO filled by producers and emptied in one call by the
// control loop. A full queue drops the new item.
type Queue[T any] struct {
	name     string
	capacity int

	mu    sync.Mutex
	items []T
}

// NewQueue creates a queue named name for metrics, holding at most capacity
// items. A non-positive capacity means 256.
func NewQueue[T any](name string, capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue[T]{name: name, capacity: capacity}
}

// Push appends v or returns domain.ErrQueueFull.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		metrics.RecordQueueDrop(q.name, "full")
		return domain.ErrQueueFull
	}
	q.items = append(q.items, v)
	return nil
}

// Drain removes and returns every queued item in arrival order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
