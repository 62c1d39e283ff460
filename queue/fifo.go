package queue

import (
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// FIFO is an unbounded, concurrency safe first-in first-out queue. Neither
// Push nor Pop ever blocks beyond the brief critical section.
type FIFO[T any] struct {
	mu    sync.Mutex
	items *fn.List[T]
}

// NewFIFO returns an empty FIFO.
func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{
		items: fn.NewList[T](),
	}
}

// Push appends item to the back of the queue.
func (f *FIFO[T]) Push(item T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items.PushBack(item)
}

// Pop removes and returns the oldest item, or None if the queue is empty.
func (f *FIFO[T]) Pop() fn.Option[T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	front := f.items.Front()
	if front == nil {
		return fn.None[T]()
	}

	return fn.Some(f.items.Remove(front))
}

// Len returns the number of queued items. The value is a snapshot and may be
// stale by the time the caller observes it.
func (f *FIFO[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.items.Len()
}
