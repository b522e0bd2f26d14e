package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New[string](4)

	assert.False(t, r.Push("A"))
	assert.False(t, r.Push("B"))
	assert.Equal(t, 2, r.Len())

	v, ok := r.Peek()
	assert.True(t, ok)
	assert.Equal(t, "A", v)
	assert.Equal(t, 2, r.Len(), "peek does not remove")

	v, ok = r.Pop()
	assert.True(t, ok)
	assert.Equal(t, "A", v)
	v, ok = r.Pop()
	assert.True(t, ok)
	assert.Equal(t, "B", v)

	_, ok = r.Pop()
	assert.False(t, ok, "pop from empty")
	_, ok = r.Peek()
	assert.False(t, ok)
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		assert.False(t, r.Push(i))
	}
	assert.True(t, r.Push(4))
	assert.True(t, r.Push(5))

	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, uint64(2), r.Overflow())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](2)
	for i := 0; i < 100; i++ {
		r.Push(i)
		v, ok := r.Pop()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Zero(t, r.Len())
	assert.Zero(t, r.Overflow())
}

func TestRing_MinCapacity(t *testing.T) {
	r := New[int](0)
	assert.Equal(t, 1, r.Cap())
	r.Push(1)
	assert.True(t, r.Push(2))
	assert.Equal(t, []int{2}, r.Items())
}
