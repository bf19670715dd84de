package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// fifoQueue is an unbounded, mutex-protected FIFO.
// It backs both the worker's live queue and its staging buffer, and the control loop.
type fifoQueue[T any] struct {
	mu    sync.Mutex
	items []T
}

func newFIFOQueue[T any]() *fifoQueue[T] {
	return &fifoQueue[T]{
		items: make([]T, 0, defaultQueueCap),
	}
}

func (q *fifoQueue[T]) Push(item T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return len(q.items)
}

func (q *fifoQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = zero
	q.items = q.items[1:]
	q.maybeCompactLocked()

	return item, true
}

// Drain removes and returns every queued item in FIFO order.
func (q *fifoQueue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	out := make([]T, len(q.items))
	copy(out, q.items)
	q.items = make([]T, 0, defaultQueueCap)
	return out
}

func (q *fifoQueue[T]) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]T, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]T, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

func (q *fifoQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fifoQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}
