package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestBackpressureQueueOrder asserts that items come out in the order they
// went in.
func TestBackpressureQueueOrder(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOfN(rapid.Int(), 1, 64).Draw(t, "items")
		q := NewBackpressureQueue[int](len(items), nil)

		ctx := context.Background()
		for _, item := range items {
			require.NoError(t, q.Enqueue(ctx, item))
		}
		require.Equal(t, len(items), q.Len())

		for _, item := range items {
			got, err := q.Dequeue(ctx).Unpack()
			require.NoError(t, err)
			require.Equal(t, item, got)
		}
		require.Zero(t, q.Len())
	})
}

// TestTryEnqueueFull asserts that TryEnqueue drops once the queue is full and
// accepts again after an item is taken.
func TestTryEnqueueFull(t *testing.T) {
	t.Parallel()

	q := NewBackpressureQueue[string](2, nil)
	require.Equal(t, 2, q.Cap())

	require.NoError(t, q.TryEnqueue("a"))
	require.NoError(t, q.TryEnqueue("b"))
	require.ErrorIs(t, q.TryEnqueue("c"), ErrQueueFullAndDropped)

	got, err := q.Dequeue(context.Background()).Unpack()
	require.NoError(t, err)
	require.Equal(t, "a", got)

	require.NoError(t, q.TryEnqueue("c"))
}

// TestEnqueueRespectsContext asserts that a predicate that never drops makes
// Enqueue block on a full queue until the context expires.
func TestEnqueueRespectsContext(t *testing.T) {
	t.Parallel()

	never := func(int, int) bool { return false }
	q := NewBackpressureQueue[int](1, never)

	require.NoError(t, q.Enqueue(context.Background(), 1))

	ctx, cancel := context.WithTimeout(
		context.Background(), 50*time.Millisecond,
	)
	defer cancel()

	err := q.Enqueue(ctx, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestDequeueRespectsContext asserts that Dequeue on an empty queue returns
// once the context is cancelled.
func TestDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewBackpressureQueue[int](1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx).Unpack()
	require.ErrorIs(t, err, context.Canceled)
}

// TestDropWhenFull checks the threshold of the default predicate.
func TestDropWhenFull(t *testing.T) {
	t.Parallel()

	drop := DropWhenFull[struct{}](3)
	require.False(t, drop(0, struct{}{}))
	require.False(t, drop(2, struct{}{}))
	require.True(t, drop(3, struct{}{}))
	require.True(t, drop(4, struct{}{}))
}
