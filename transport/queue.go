package transport

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Queue is a bounded FIFO. Pushing onto a full queue evicts the oldest item, so a slow consumer
// always sees the most recent data.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	ready    chan struct{}
	dropped  atomic.Uint64
}

// NewQueue returns a queue holding at most capacity items. A capacity below one is treated as
// one.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{capacity: capacity, ready: make(chan struct{}, 1)}
}

// Push appends item and returns the evicted item, if any.
func (q *Queue[T]) Push(item T) (evicted T, didEvict bool) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		evicted, didEvict = q.items[0], true
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped.Inc()
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted, didEvict
}

// Pop blocks until an item is available or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items were evicted so far.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
