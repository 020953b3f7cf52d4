// Package ring implements the single-producer/single-consumer frame
// queue spec §5 calls for: the CAN driver's RX-complete callback may
// run outside the main polling loop, so the producer (Push, called from
// that callback) and the consumer (Pop, called from Router.Poll) must
// never take a lock in common — only the head/tail indices are shared,
// and those are ordered with atomics. Modeled on the teacher's
// internal/fifo.Fifo (same circular-buffer-of-fixed-capacity shape),
// adapted from a byte stream to a queue of canbus.Frame values and
// given lock-free cursors instead of a Fifo guarded by the caller.
package ring

import (
	"sync/atomic"

	"github.com/aw4Motion/CANopen4Drives/canbus"
)

// MinCapacity is the smallest ring capacity spec §4.4 allows ("ring
// buffer (capacity ≥ 20 frames)").
const MinCapacity = 20

// Ring is a fixed-capacity circular queue of received frames.
type Ring struct {
	buf  []canbus.Frame
	mask uint32
	head atomic.Uint32 // next slot to write, advanced by Push
	tail atomic.Uint32 // next slot to read, advanced by Pop
}

// New creates a ring able to hold capacity frames before Push starts
// dropping. capacity is rounded up to the next power of two and to at
// least MinCapacity.
func New(capacity int) *Ring {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring{buf: make([]canbus.Frame, size), mask: uint32(size - 1)}
}

// Push enqueues frame. It is safe to call from the driver's RX-complete
// callback, concurrently with a single consumer calling Pop. Returns
// false if the ring is full, in which case the frame is dropped — the
// caller counts this as an RX overflow (Router.RxOverflows).
func (r *Ring) Push(frame canbus.Frame) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= uint32(len(r.buf)) {
		return false
	}
	r.buf[head&r.mask] = frame
	r.head.Store(head + 1)
	return true
}

// Pop dequeues the oldest frame. Only the poll-loop goroutine may call
// this. ok is false if the ring is empty.
func (r *Ring) Pop() (frame canbus.Frame, ok bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail == head {
		return canbus.Frame{}, false
	}
	frame = r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return frame, true
}

// Len reports the number of frames currently queued.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}
