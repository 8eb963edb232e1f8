package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameQueue_DropsOldestOnOverflow(t *testing.T) {
	q := newFrameQueue(2)

	assert.False(t, q.Push([]byte("a")))
	assert.False(t, q.Push([]byte("b")))
	assert.True(t, q.Push([]byte("c")))

	assert.Equal(t, 2, q.Len())
	got := q.PopFront(2)
	require := assert.New(t)
	require.Len(got, 2)
	require.Equal([]byte("b"), got[0])
	require.Equal([]byte("c"), got[1])
}

func TestFrameQueue_PopFrontPartial(t *testing.T) {
	q := newFrameQueue(10)
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.Push([]byte("c"))

	got := q.PopFront(2)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, q.Len())
}

func TestFrameQueue_ClearAndDrain(t *testing.T) {
	q := newFrameQueue(10)
	q.Push([]byte("a"))
	q.Push([]byte("b"))

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())

	q.Push([]byte("c"))
	drained := q.Drain()
	assert.Len(t, drained, 1)
	assert.Equal(t, 0, q.Len())
}
