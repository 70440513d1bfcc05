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

// Package urefcount provides the atomic reference counter every shared
// object in this module (ubuf, uref, upipe) is built on top of.
//
// A RefCount does not hold the object it protects; it is meant to be
// embedded (or held alongside) the structure whose lifetime it governs, with
// a release callback that frees that structure's resources once the last
// reference goes away.
package urefcount

import (
	"fmt"
	"sync/atomic"
)

// ErrNegative is the value Release panics with when the counter would be
// driven below zero. This is a contract violation by the caller: some owner released a
// reference it did not hold.
var ErrNegative = fmt.Errorf("urefcount: release called with no references held")

// RefCount is an atomic, use/release reference counter with a release
// callback. The zero value is not usable; construct one with New.
//
// RefCount is safe for concurrent Use/Release from multiple goroutines. The
// release callback runs synchronously on whichever goroutine's Release call
// drives the counter to zero.
type RefCount struct {
	n       int64
	release func()
	dead    int32
}

// New creates a RefCount starting at one outstanding reference, which will
// invoke release when the last reference is dropped. release is called at
// most once.
func New(release func()) *RefCount {
	return &RefCount{n: 1, release: release}
}

// Use adds one reference to the counter. Callers must pair every Use with
// exactly one Release.
func (rc *RefCount) Use() {
	atomic.AddInt64(&rc.n, 1)
}

// Release removes one reference. If this was the last outstanding
// reference, the release callback is invoked before Release returns.
//
// Calling Release more times than Use (plus the initial reference from New)
// is a contract violation; the counter will panic rather than silently
// corrupt state, since a negative refcount means a use-after-free is already
// underway somewhere in the caller.
func (rc *RefCount) Release() {
	n := atomic.AddInt64(&rc.n, -1)
	switch {
	case n > 0:
		return
	case n == 0:
		atomic.StoreInt32(&rc.dead, 1)
		if rc.release != nil {
			rc.release()
		}
	default:
		panic(ErrNegative)
	}
}

// Dead reports whether the counter has already transitioned through zero,
// i.e. whether the release callback has already fired (or is firing).
func (rc *RefCount) Dead() bool {
	return atomic.LoadInt32(&rc.dead) != 0
}

// Count returns the current number of outstanding references. This is a
// snapshot for diagnostics only; a concurrent Use or Release can make it
// stale before the caller can act on it.
func (rc *RefCount) Count() int64 {
	return atomic.LoadInt64(&rc.n)
}

// vim: foldmethod=marker
