package router

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Receive once a closed queue has been drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO used to hand events from the dispatch path to
// consumers on other goroutines. Send never blocks; the ring buffer doubles
// when full.
type Queue[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int // read position
	tail   int // write position
	count  int
	closed bool

	// ready has capacity 1 and is signalled whenever the queue goes from
	// empty to non-empty, or on Close.
	ready chan struct{}

	// Stats
	totalReceived int64
	totalSent     int64
	resizeCount   int
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	ResizeCount   int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Queue[T]{
		buf:   make([]T, initialCapacity),
		ready: make(chan struct{}, 1),
	}
}

// Send appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.count == len(q.buf) {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.totalReceived++

	q.signal()
	return true
}

// Receive removes the oldest item, waiting until one is available. It
// returns ErrQueueClosed when the queue is closed and empty, or ctx.Err().
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	for {
		item, ok, closed := q.tryReceive()
		if ok {
			return item, nil
		}
		if closed {
			var zero T
			return zero, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// TryReceive removes the oldest item without waiting.
func (q *Queue[T]) TryReceive() (T, bool) {
	item, ok, _ := q.tryReceive()
	return item, ok
}

func (q *Queue[T]) tryReceive() (item T, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		if q.closed {
			q.signal() // pass the close on to the next waiter
		}
		return item, false, q.closed
	}

	item = q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.totalSent++

	// Keep waking receivers while items remain.
	if q.count > 0 {
		q.signal()
	}
	return item, true, false
}

// Drain removes up to max items (all items when max <= 0) without waiting.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		result[i] = q.buf[q.head]
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.totalSent++
	}
	return result
}

// Close stops the queue accepting items. Receivers drain what is left and
// then get ErrQueueClosed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.signal()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:         q.count,
		Capacity:      len(q.buf),
		TotalReceived: q.totalReceived,
		TotalSent:     q.totalSent,
		ResizeCount:   q.resizeCount,
	}
}

// signal wakes one waiter. Must be called with lock held.
func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// grow doubles the capacity. Must be called with lock held.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.buf)*2)

	// Unwrap [head...end) + [0...tail) into the new buffer
	n := copy(next, q.buf[q.head:])
	copy(next[n:], q.buf[:q.head])

	q.buf = next
	q.head = 0
	q.tail = q.count
	q.resizeCount++
}
