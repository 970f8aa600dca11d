package reassembly

import (
	"errors"
	"fmt"

	"github.com/smallnest/ringbuffer"
)

// Buffer accumulates notification fragments for one streaming session.
//
// Its capacity is the packet threshold: bytes that do not fit are dropped at
// write time, so a flush never carries anything over into the next packet.
// A Buffer has a single writer and is not safe for concurrent use.
type Buffer struct {
	ring    *ringbuffer.RingBuffer
	dropped int64
}

// NewBuffer creates a session buffer holding at most threshold bytes.
func NewBuffer(threshold int) *Buffer {
	return &Buffer{ring: ringbuffer.New(threshold)}
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return b.ring.Length()
}

// Cap returns the threshold the buffer was created with.
func (b *Buffer) Cap() int {
	return b.ring.Capacity()
}

// Full reports whether the threshold has been reached.
func (b *Buffer) Full() bool {
	return b.ring.IsFull()
}

// Dropped returns how many bytes were discarded because they arrived past the threshold.
func (b *Buffer) Dropped() int64 {
	return b.dropped
}

// append writes as much of p as fits and counts the rest as dropped.
func (b *Buffer) append(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := b.ring.Write(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) && !errors.Is(err, ringbuffer.ErrIsFull) {
		return fmt.Errorf("buffer write: %w", err)
	}
	b.dropped += int64(len(p) - n)
	return nil
}

// drain returns every buffered byte and leaves the buffer empty.
func (b *Buffer) drain() ([]byte, error) {
	out := make([]byte, b.ring.Length())
	if len(out) == 0 {
		return out, nil
	}
	n, err := b.ring.Read(out)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return nil, fmt.Errorf("buffer read: %w", err)
	}
	b.ring.Reset()
	return out[:n], nil
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() {
	b.ring.Reset()
}
