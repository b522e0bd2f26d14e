// Package ringbuf provides a fixed-capacity FIFO that overwrites its oldest
// entry when full. It is not safe for concurrent use; callers hold their own
// lock.
package ringbuf

// Ring is a bounded FIFO of T.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest item
	n    int

	overflow uint64
}

// New creates a ring holding up to capacity items. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest item is overwritten and
// dropped is true.
func (r *Ring[T]) Push(v T) (dropped bool) {
	if r.n == len(r.buf) {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		r.overflow++
		return true
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	return false
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	if r.n == 0 {
		var zero T
		return zero, false
	}
	return r.buf[r.head], true
}

// Pop removes and returns the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	v, ok := r.Peek()
	if !ok {
		return v, false
	}
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v, true
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the current number of items in the buffer.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Overflow returns how many items were overwritten.
func (r *Ring[T]) Overflow() uint64 { return r.overflow }
