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

// Package uerror holds the small integer-code error taxonomy shared by every
// package in this module, so that control-command dispatch, request
// provision, and allocation paths all return comparable, sentinel-style
// errors instead of ad-hoc strings.
package uerror

// Error is a small integer error code. It implements the error interface so
// it composes with errors.Is/errors.As and go.uber.org/multierr the same
// way a plain sentinel error would, while still being cheap to compare and
// switch on.
type Error int

const (
	// None is success. Functions that can fail return nil, not None, to
	// signal success; None exists only so the control-command ABI (which
	// must return a code rather than a Go error) has a concrete zero value.
	None Error = iota
	// Unhandled means the command or event was not recognised; the caller
	// should propagate it further up the chain.
	Unhandled
	// Invalid means an argument or pipe state did not satisfy the
	// precondition for the requested operation.
	Invalid
	// Alloc means a memory or resource allocation failed.
	Alloc
	// External means an underlying OS or library call failed.
	External
	// Busy means the resource is in use; the caller should retry later.
	Busy
	// Upump means the event loop could not create the requested pump.
	Upump
)

var names = [...]string{
	None:      "none",
	Unhandled: "unhandled",
	Invalid:   "invalid",
	Alloc:     "alloc",
	External:  "external",
	Busy:      "busy",
	Upump:     "upump",
}

// Error implements the error interface.
func (e Error) Error() string {
	if int(e) >= 0 && int(e) < len(names) {
		return "uerror: " + names[e]
	}
	return "uerror: unknown"
}

// IsHandled reports whether e represents neither None nor Unhandled, i.e.
// whether some probe or pipe actually dealt with the command/event (even if
// it dealt with it by failing).
func (e Error) IsHandled() bool {
	return e != None && e != Unhandled
}

// vim: foldmethod=marker
