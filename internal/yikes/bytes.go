// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020-2021
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

// Package yikes holds the slice-header tricks the buffer layer needs at its
// storage boundary. This is wildly unsafe, and something that needs to be
// very carefully applied to problems; the returned slices alias storage
// whose lifetime is governed elsewhere (a refcounted payload, an mmap'd
// slab), so they are only valid while that storage is still referenced.
package yikes

import (
	"unsafe"
)

// GoBytes works like C.GoBytes, but it allows for mutating the byte array
// from Go. The base pointer must stay valid (and the underlying allocation
// must stay pinned) for as long as the returned slice is in use.
func GoBytes(
	base uintptr,
	size int,
) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size)
}

// Window returns a cap-clamped view of base[off:off+size] by explicit
// pointer arithmetic on the slice's backing array. Used where a refcounted
// payload hands out sub-windows of one shared allocation: the caller's
// window must not be extendable (via append) into a neighbour's bytes,
// which base[off:off+size] alone would permit through spare capacity.
func Window(base []byte, off, size int) []byte {
	if off == 0 && size == len(base) {
		return base
	}
	ptr := unsafe.Pointer(unsafe.SliceData(base))
	return unsafe.Slice((*byte)(unsafe.Add(ptr, off)), size)[:size:size]
}

// vim: foldmethod=marker
