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

package ubuf

import (
	"fmt"

	"github.com/quarium/upipe/uerror"
)

// Block is a contiguous (or, once chained, logically contiguous) sequence
// of octets with a logical size, backed by a shared, refcounted payload.
// Prepend and Append grow the visible window without copying as long as
// slack remains; once exhausted, they fall back to a fresh, larger
// payload.
type Block struct {
	mgr     *Manager
	pl      *payload
	off     int // offset into pl.buf where this Block's window begins
	size    int // logical size of this Block's window
	mapped  int // outstanding Map calls not yet Unmap'd
}

// NewBlock allocates a fresh Block of size octets, with slack reserved at
// both ends per the owning Manager's configuration.
func (m *Manager) NewBlock(size int) (*Block, error) {
	if size < 0 {
		return nil, fmt.Errorf("ubuf: %w: negative block size", uerror.Invalid)
	}
	pl, err := m.allocPayload(size)
	if err != nil {
		return nil, err
	}
	return &Block{mgr: m, pl: pl, off: m.slack, size: size}, nil
}

// Size returns the Block's current logical size.
func (b *Block) Size() int {
	return b.size
}

// Dup returns a new reference to b's storage sharing the same window. The
// first Map(write=true) on either b or the returned Block after this call
// performs a copy-on-write.
func (b *Block) Dup() *Block {
	b.pl.rc.Use()
	return &Block{mgr: b.mgr, pl: b.pl, off: b.off, size: b.size}
}

// Release drops this Block's reference to its payload, freeing the
// underlying slab back to its pool once the last reference is gone.
func (b *Block) Release() {
	b.pl.rc.Release()
}

// Map returns a slice view of the Block's current window. If write is
// true and the payload is shared with another Block, Map first performs a
// copy-on-write so the returned slice is safe to mutate without affecting
// any other reference. Every successful Map must be matched by exactly one
// Unmap.
func (b *Block) Map(write bool) ([]byte, error) {
	if write && b.pl.shared() {
		if err := b.cow(); err != nil {
			return nil, err
		}
	}
	b.mapped++
	return unsafeBytesAt(b.pl.buf, b.off, b.size), nil
}

// Unmap balances a prior Map call. Calling Unmap without a matching Map
// outstanding returns uerror.Invalid.
func (b *Block) Unmap() error {
	if b.mapped <= 0 {
		return fmt.Errorf("ubuf: %w: Unmap without matching Map", uerror.Invalid)
	}
	b.mapped--
	return nil
}

// cow gives b a private payload carrying the same visible bytes at the
// same offset, releasing its reference to the previously shared one.
func (b *Block) cow() error {
	fresh, err := b.mgr.allocPayload(b.size)
	if err != nil {
		return err
	}
	copy(unsafeBytesAt(fresh.buf, b.mgr.slack, b.size), unsafeBytesAt(b.pl.buf, b.off, b.size))
	b.pl.rc.Release()
	b.pl = fresh
	b.off = b.mgr.slack
	return nil
}

// Prepend grows the Block's window by n octets at the front, using front
// slack in place when available and falling back to a fresh, larger
// payload otherwise. Existing content shifts logically forward; the newly
// exposed octets are left uninitialised.
func (b *Block) Prepend(n int) error {
	if n < 0 {
		return fmt.Errorf("ubuf: %w: negative prepend size", uerror.Invalid)
	}
	if n == 0 {
		return nil
	}
	if b.pl.shared() {
		if err := b.cow(); err != nil {
			return err
		}
	}
	if b.off >= n {
		b.off -= n
		b.size += n
		return nil
	}
	return b.realloc(n, 0)
}

// Append grows the Block's window by n octets at the back, symmetric to
// Prepend.
func (b *Block) Append(n int) error {
	if n < 0 {
		return fmt.Errorf("ubuf: %w: negative append size", uerror.Invalid)
	}
	if n == 0 {
		return nil
	}
	if b.pl.shared() {
		if err := b.cow(); err != nil {
			return err
		}
	}
	backSlack := len(b.pl.buf) - (b.off + b.size)
	if backSlack >= n {
		b.size += n
		return nil
	}
	return b.realloc(0, n)
}

// realloc grows b into a brand new, larger payload with front/back extra
// slack, used once a Prepend/Append call exceeds the slack reserved at
// allocation time.
func (b *Block) realloc(front, back int) error {
	newSize := b.size + front + back
	fresh, err := b.mgr.allocPayload(newSize + b.mgr.slack)
	if err != nil {
		return err
	}
	newOff := b.mgr.slack + front
	copy(unsafeBytesAt(fresh.buf, newOff, b.size), unsafeBytesAt(b.pl.buf, b.off, b.size))
	b.pl.rc.Release()
	b.pl = fresh
	b.off = newOff - front
	b.size = newSize
	return nil
}

// Advance drops the first n octets from the Block's window, the way a
// parser peels a header off a packet. This never reallocates; the dropped
// octets become front slack.
func (b *Block) Advance(n int) error {
	if n < 0 || n > b.size {
		return fmt.Errorf("ubuf: %w: advance out of range", uerror.Invalid)
	}
	b.off += n
	b.size -= n
	return nil
}

// Truncate shrinks the Block's logical size to newSize, which must not
// exceed the current size. This never reallocates.
func (b *Block) Truncate(newSize int) error {
	if newSize < 0 || newSize > b.size {
		return fmt.Errorf("ubuf: %w: truncate size out of range", uerror.Invalid)
	}
	b.size = newSize
	return nil
}

// vim: foldmethod=marker
