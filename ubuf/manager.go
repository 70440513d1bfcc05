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

// Package ubuf is the shared payload carrier flowing inside every uref: a
// Block (contiguous octets), a Picture (named planes), or a Sound (named
// channels). Every shape is backed by a umem.Pool and shares the same
// duplicate/copy-on-write discipline: Dup hands out a second reference to
// the same storage, and the first write after a Dup pays for a private
// copy.
package ubuf

import (
	"fmt"

	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/umem"
)

// Manager allocates and recycles Block payloads backed by a single
// fixed-slab-size umem.Pool. One Manager is normally shared by every pipe
// in a flow, reached via a NEED_UBUF_MGR request (urequest).
type Manager struct {
	pool      *umem.Pool
	slack     int
	slabBytes int
}

// NewManager returns a Manager whose Blocks are carved from slabs of
// slabBytes bytes apiece, reserving slack bytes of spare room at both the
// front and back of every fresh allocation so that small Prepend/Append
// calls can grow a Block in place instead of reallocating.
func NewManager(slabBytes, slack int) (*Manager, error) {
	if slabBytes <= 0 {
		return nil, fmt.Errorf("ubuf: %w: slab size must be positive", uerror.Invalid)
	}
	if slack < 0 {
		slack = 0
	}
	pool, err := umem.NewPool(slabBytes, 32)
	if err != nil {
		return nil, err
	}
	return &Manager{pool: pool, slack: slack, slabBytes: slabBytes}, nil
}

// Close releases the manager's underlying memory pool. It must only be
// called once every Block it allocated has been released.
func (m *Manager) Close() error {
	return m.pool.Close()
}

func (m *Manager) allocPayload(size int) (*payload, error) {
	total := size + 2*m.slack
	var slab *umem.Slab
	var buf []byte
	if total <= m.slabBytes {
		slab = m.pool.Get()
		buf = slab.Bytes
	} else {
		buf = make([]byte, total)
	}
	return newPayload(buf, slab), nil
}

// vim: foldmethod=marker
