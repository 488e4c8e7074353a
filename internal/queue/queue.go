// Package queue provides a thread-safe FIFO of index-tagged items whose Get
// gives up after a timeout instead of blocking forever.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andresmejia3/posepipe/internal/types"
)

var (
	// ErrTimeout is returned by Get when no item arrives within the timeout.
	ErrTimeout = errors.New("queue: timed out waiting for item")
	// ErrClosed is returned by Put after Close, and by Get once the queue is closed and drained.
	ErrClosed = errors.New("queue: closed")
)

// Queue is a FIFO of IndexedItem[T]. A capacity of 0 means unbounded.
// The queue never drops or duplicates items; only a timeout, cancellation or
// Close stops a consumer.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []types.IndexedItem[T]
	head     int
	capacity int
	closed   bool

	// Broadcast channels: closed and replaced whenever the condition may have changed.
	readable chan struct{}
	writable chan struct{}
}

// New creates a queue. capacity <= 0 yields an unbounded queue.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		capacity: capacity,
		readable: make(chan struct{}),
		writable: make(chan struct{}),
	}
}

// Put appends an item, blocking while a bounded queue is full.
func (q *Queue[T]) Put(ctx context.Context, item types.IndexedItem[T]) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.capacity == 0 || q.lenLocked() < q.capacity {
			q.items = append(q.items, item)
			q.broadcast(&q.readable)
			q.mu.Unlock()
			return nil
		}
		wait := q.writable
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Get removes the oldest item. It waits at most timeout (timeout <= 0 waits
// until an item arrives, the queue is closed, or ctx is done).
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (types.IndexedItem[T], error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if q.lenLocked() > 0 {
			item := q.pop()
			q.broadcast(&q.writable)
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return types.IndexedItem[T]{}, ErrClosed
		}
		wait := q.readable
		q.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return types.IndexedItem[T]{}, ErrTimeout
		case <-ctx.Done():
			return types.IndexedItem[T]{}, ctx.Err()
		}
	}
}

// Close marks the end of production. Items already queued stay readable.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcast(&q.readable)
	q.broadcast(&q.writable)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Cap returns the configured capacity (0 = unbounded).
func (q *Queue[T]) Cap() int {
	return q.capacity
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

func (q *Queue[T]) pop() types.IndexedItem[T] {
	item := q.items[q.head]
	q.items[q.head] = types.IndexedItem[T]{} // release payload for GC
	q.head++

	// Compact once the consumed prefix dominates the backing array
	if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}

func (q *Queue[T]) broadcast(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}
