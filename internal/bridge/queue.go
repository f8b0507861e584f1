package bridge

import "context"

// Queue is a fixed-capacity producer/consumer handoff with non-blocking
// push and pop. The capacity bound is the backpressure mechanism: a full
// queue rejects the push and the caller drops the item, because the
// real-time callbacks feeding these queues must never wait.
type Queue[T any] struct {
	ch chan T
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPush enqueues v and reports success. It returns false immediately when
// the queue is full; it never blocks.
func (q *Queue[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// TryPop dequeues the oldest item. It returns false immediately when the
// queue is empty; it never blocks.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Pop blocks until an item is available or ctx is cancelled. Only consumers
// that do not run on a real-time deadline (e.g. the jitter feeder) may use
// it.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the queue's fixed capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }
