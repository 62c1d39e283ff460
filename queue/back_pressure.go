package queue

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// DropPredicate decides whether to drop an item instead of queueing it. It
// receives the current queue length and the item, and returns true to drop.
type DropPredicate[T any] func(queueLen int, item T) bool

// ErrQueueFullAndDropped is returned by Enqueue and TryEnqueue when the item
// is dropped due to the DropPredicate or a full queue.
var ErrQueueFullAndDropped = errors.New("queue full and item dropped")

// BackpressureQueue is a generic, fixed-capacity FIFO queue with
// predicate-based drop behavior. It is backed by a buffered channel so that a
// consumer parks in Dequeue instead of polling.
type BackpressureQueue[T any] struct {
	ch            chan T
	dropPredicate DropPredicate[T]
}

// NewBackpressureQueue creates a new BackpressureQueue with the given capacity
// and drop predicate. A nil predicate drops only when the queue is full.
func NewBackpressureQueue[T any](capacity int,
	predicate DropPredicate[T]) *BackpressureQueue[T] {

	if predicate == nil {
		predicate = DropWhenFull[T](capacity)
	}

	return &BackpressureQueue[T]{
		ch:            make(chan T, capacity),
		dropPredicate: predicate,
	}
}

// Enqueue attempts to add an item to the queue, respecting context
// cancellation. Returns ErrQueueFullAndDropped if dropped, or context error if
// ctx is done before enqueue. Otherwise, `nil` is returned on success.
func (q *BackpressureQueue[T]) Enqueue(ctx context.Context,
	item T) error {

	// First, consult the drop predicate based on the current queue length.
	if q.dropPredicate(len(q.ch), item) {
		return ErrQueueFullAndDropped
	}

	select {
	case q.ch <- item:
		return nil

	default:
		// Channel is full, and the predicate decided not to drop. We
		// must block until space is available or context is cancelled.
		select {
		case q.ch <- item:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryEnqueue adds an item to the queue without ever blocking. The item is
// dropped with ErrQueueFullAndDropped if the predicate says so or if the queue
// filled up between the check and the send.
func (q *BackpressureQueue[T]) TryEnqueue(item T) error {
	if q.dropPredicate(len(q.ch), item) {
		return ErrQueueFullAndDropped
	}

	select {
	case q.ch <- item:
		return nil

	default:
		return ErrQueueFullAndDropped
	}
}

// Dequeue retrieves the next item from the queue, blocking until available or
// context done. Returns the item or an error if ctx is done before an item is
// available.
func (q *BackpressureQueue[T]) Dequeue(ctx context.Context) fn.Result[T] {
	select {
	case item := <-q.ch:
		return fn.Ok(item)

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// Len returns the number of queued items. The value may be stale by the time
// the caller acts on it.
func (q *BackpressureQueue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the capacity of the queue.
func (q *BackpressureQueue[T]) Cap() int {
	return cap(q.ch)
}

// DropWhenFull returns a DropPredicate that rejects items once the queue holds
// capacity items and accepts everything below that.
func DropWhenFull[T any](capacity int) DropPredicate[T] {
	return func(queueLen int, _ T) bool {
		return queueLen >= capacity
	}
}
