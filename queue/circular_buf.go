package queue

import (
	"errors"
	"sync"
)

// errInvalidSize is returned when an invalid size for a buffer is provided.
var errInvalidSize = errors.New("buffer size must be > 0")

// CircularBuffer is a buffer which retains a set of values in memory, and
// overwrites the oldest item in the buffer when a new item needs to be
// written. It is safe for concurrent use.
type CircularBuffer[T any] struct {
	mu sync.Mutex

	// total is the total number of items that have been added to the
	// buffer.
	total int

	// items is the set of buffered items.
	items []T
}

// NewCircularBuffer returns a new circular buffer with the size provided. It
// will fail if a zero or negative size parameter is provided.
func NewCircularBuffer[T any](size int) (*CircularBuffer[T], error) {
	if size <= 0 {
		return nil, errInvalidSize
	}

	return &CircularBuffer[T]{
		items: make([]T, size),
	}, nil
}

// index returns the index that should be written to next.
func (c *CircularBuffer[T]) index() int {
	return c.total % len(c.items)
}

// Add adds an item to the buffer, overwriting the oldest item if the buffer
// is full.
func (c *CircularBuffer[T]) Add(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[c.index()] = item
	c.total++
}

// List returns a copy of the items in the buffer ordered from the oldest to
// newest item.
func (c *CircularBuffer[T]) List() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := len(c.items)
	index := c.index()

	switch {
	case c.total == 0:
		return nil

	// Until the buffer wraps, the oldest item sits at the start of the
	// underlying array rather than at the write index.
	case c.total < size:
		resp := make([]T, c.total)
		copy(resp, c.items[:index])
		return resp
	}

	resp := make([]T, size)

	// Items from the write index to the end are the oldest, followed by
	// the items from the start up to the write index.
	firstHalf := c.items[index:]
	copy(resp, firstHalf)
	copy(resp[len(firstHalf):], c.items[:index])

	return resp
}

// Total returns the total number of items that have been added to the buffer.
func (c *CircularBuffer[T]) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.total
}
