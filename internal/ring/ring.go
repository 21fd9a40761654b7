// Package ring implements a bounded, lock-free single-producer/single-consumer
// circular buffer of domain.Event, mirroring the atomic-cursor ring channel
// used by the exchange fan-in path.
package ring

import (
	"sync/atomic"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
)

// Buffer is a fixed-capacity circular buffer of domain.Event. It supports a
// single producer and a single consumer; concurrent use by more than one
// producer, or more than one consumer, requires serialization by the caller.
//
// One slot is always reserved to distinguish empty from full, so a buffer
// constructed with size N holds at most N-1 items.
type Buffer struct {
	slots []domain.Event
	mask  uint64 // size-1, size is a power of two
	size  uint64

	writeIdx atomic.Uint64
	readIdx  atomic.Uint64
}

// New allocates a Buffer able to hold size-1 events. size is rounded up to
// the next power of two so index wrapping can use a mask instead of a
// modulo.
func New(size int) *Buffer {
	if size < 2 {
		size = 2
	}
	n := nextPowerOfTwo(size)
	return &Buffer{
		slots: make([]domain.Event, n),
		mask:  uint64(n - 1),
		size:  uint64(n),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// writeIdx and readIdx are monotonically increasing counters, never wrapped;
// the bitmask is applied only when indexing into slots. This keeps full/empty
// arithmetic simple: the buffer is full when write-read reaches size-1, the
// one slot always held in reserve.

// Push appends e to the buffer. It returns false without blocking if the
// buffer is full.
func (b *Buffer) Push(e domain.Event) bool {
	write := b.writeIdx.Load() // relaxed load of the producer's own cursor
	read := b.readIdx.Load()   // acquire of the peer cursor
	if write-read >= b.size-1 {
		return false
	}
	b.slots[write&b.mask] = e
	b.writeIdx.Store(write + 1) // release: publishes the slot write
	return true
}

// Pop removes and returns the oldest event. ok is false if the buffer was
// empty.
func (b *Buffer) Pop() (domain.Event, bool) {
	read := b.readIdx.Load()
	write := b.writeIdx.Load()
	if read == write {
		return domain.Event{}, false
	}
	e := b.slots[read&b.mask]
	b.slots[read&b.mask] = domain.Event{}
	b.readIdx.Store(read + 1)
	return e, true
}

// Len returns the number of events currently queued.
func (b *Buffer) Len() int {
	write := b.writeIdx.Load()
	read := b.readIdx.Load()
	return int(write - read)
}

// Cap returns the maximum number of events the buffer can hold at once
// (size-1: one slot is always reserved).
func (b *Buffer) Cap() int {
	return int(b.size - 1)
}

// Empty reports whether the buffer currently holds no events.
func (b *Buffer) Empty() bool {
	return b.readIdx.Load() == b.writeIdx.Load()
}

// Full reports whether the buffer cannot currently accept another Push.
func (b *Buffer) Full() bool {
	write := b.writeIdx.Load()
	read := b.readIdx.Load()
	return write-read >= b.size-1
}
