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
	"github.com/quarium/upipe/internal/yikes"
	"github.com/quarium/upipe/umem"
	"github.com/quarium/upipe/urefcount"
)

// payload is the shared backing storage one or more Blocks can view
// different (offset, size) windows of. It is refcounted so Dup is a cheap
// second reference, and released back to its originating umem.Pool slab
// once every Block referencing it is gone.
type payload struct {
	rc   *urefcount.RefCount
	buf  []byte
	slab *umem.Slab
}

func newPayload(buf []byte, slab *umem.Slab) *payload {
	p := &payload{buf: buf, slab: slab}
	p.rc = urefcount.New(func() {
		if p.slab != nil {
			p.slab.Put()
		}
	})
	return p
}

// shared reports whether more than one Block currently views this payload.
func (p *payload) shared() bool {
	return p.rc.Count() > 1
}

// unsafeBytesAt returns a slice view of base[off:off+size]. The returned
// slice is only valid as long as the payload it was carved from is still
// referenced; yikes.Window clamps its capacity so an append can never bleed
// into a neighbouring window of the same slab.
func unsafeBytesAt(base []byte, off, size int) []byte {
	return yikes.Window(base, off, size)
}

// vim: foldmethod=marker
