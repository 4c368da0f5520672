package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	require.NoError(t, rq.Enqueue(3))
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for want := 1; want <= 3; want++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueGrowKeepsOrder(t *testing.T) {
	rq := NewGrowableRingQueue[string](2)
	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))
	// Move the read index so the wrapped layout is exercised.
	v, _ := rq.Dequeue()
	assert.Equal(t, "a", v)
	require.NoError(t, rq.Enqueue("c"))
	require.NoError(t, rq.Enqueue("d"))

	assert.Equal(t, 3, rq.Len())
	assert.Equal(t, 4, rq.Cap())
	assert.Equal(t, []string{"b", "c", "d"}, rq.Drain())
	assert.True(t, rq.IsEmpty())
}
