// Package queue provides a bounded channel with drop-oldest overflow.
package queue

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest element is
// discarded to make room. Consumers range over C() until Close is called.
type RingChannel[T any] struct {
	ch      chan T
	mu      sync.Mutex // serializes producers so drop+insert is atomic
	closed  bool
	metrics Metrics
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("queue: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It returns the dropped element and true when one was discarded.
// Sending on a closed RingChannel is a no-op that reports ok=false.
func (rc *RingChannel[T]) Send(v T) (dropped T, didDrop bool, ok bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return dropped, false, false
	}

	select {
	case rc.ch <- v:
		rc.metrics.add(&rc.metrics.Written)
		return dropped, false, true
	default:
	}

	select {
	case dropped = <-rc.ch:
		didDrop = true
		rc.metrics.add(&rc.metrics.Overwritten)
	default:
		// a consumer freed a slot in the meantime
	}
	rc.ch <- v
	rc.metrics.add(&rc.metrics.Written)
	return dropped, didDrop, true
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close stops intake. Buffered elements remain readable from C().
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics provides lock-free counters for RingChannel.
type Metrics struct {
	Written     int64
	Overwritten int64
}

func (m *Metrics) add(counter *int64) {
	atomic.AddInt64(counter, 1)
}
