// Package queue implements an unbounded FIFO queue whose consumers block
// until an item is available or their context ends.
package queue

import (
	"context"
	"sync"
)

// Queue is safe for concurrent use by multiple producers and consumers.
type Queue[T any] struct {
	mtx   sync.Mutex
	items []T

	// signal holds at most one pending wakeup.
	signal chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{signal: make(chan struct{}, 1)}
}

// Push appends item to the tail of the queue.
func (q *Queue[T]) Push(item T) {
	q.mtx.Lock()
	q.items = append(q.items, item)
	q.mtx.Unlock()

	q.notify()
}

// Pop removes and returns the head of the queue, blocking while it is
// empty. It returns ctx.Err() if ctx ends first.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryPop removes and returns the head of the queue without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	// another consumer may be waiting on the remainder
	if len(q.items) > 0 {
		q.notify()
	}
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return len(q.items)
}

func (q *Queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
