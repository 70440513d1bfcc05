// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package uqueue

import (
	"sync/atomic"
)

// ring is the lock-free bounded fifo behind the Atomic policy: a
// fixed-size circular buffer of sequence-stamped cells, pushed and popped
// with compare-and-swap on two monotonically increasing cursors. Each
// cell's sequence tells whether it currently holds a value (seq == deq
// cursor + 1) or room (seq == enq cursor); the cursor CAS hands a cell to
// exactly one producer or consumer, and the sequence store afterwards
// publishes the cell's value with release ordering.
type ring struct {
	mask  uint64
	cap   uint64
	cells []ringCell
	enq   atomic.Uint64
	deq   atomic.Uint64
}

type ringCell struct {
	seq atomic.Uint64
	val any
}

// newRing sizes the cell array to the next power of two at or above
// capacity (the cursor arithmetic needs a power-of-two mask) but bounds
// occupancy at exactly capacity.
func newRing(capacity int) *ring {
	n := 1
	for n < capacity {
		n <<= 1
	}
	r := &ring{
		mask:  uint64(n - 1),
		cap:   uint64(capacity),
		cells: make([]ringCell, n),
	}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r
}

// push attempts to enqueue; it reports false when the ring is full.
func (r *ring) push(e any) bool {
	for {
		pos := r.enq.Load()
		if pos-r.deq.Load() >= r.cap {
			// A stale deq cursor only over-estimates occupancy, so this
			// errs toward a spurious full, never past the bound.
			return false
		}
		cell := &r.cells[pos&r.mask]
		seq := cell.seq.Load()
		switch {
		case seq == pos:
			if r.enq.CompareAndSwap(pos, pos+1) {
				cell.val = e
				cell.seq.Store(pos + 1)
				return true
			}
		case seq < pos:
			// The cell still holds a value the consumer has not taken:
			// full.
			return false
		}
		// seq > pos: another producer advanced the cursor under us;
		// reload and retry.
	}
}

// pop attempts to dequeue; it reports nil when the ring is empty.
func (r *ring) pop() any {
	for {
		pos := r.deq.Load()
		cell := &r.cells[pos&r.mask]
		seq := cell.seq.Load()
		switch {
		case seq == pos+1:
			if r.deq.CompareAndSwap(pos, pos+1) {
				e := cell.val
				cell.val = nil
				cell.seq.Store(pos + uint64(len(r.cells)))
				return e
			}
		case seq <= pos:
			// The cell has no published value yet: empty.
			return nil
		}
	}
}

// vim: foldmethod=marker
