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

// Package urequest is the plumbing for requests flowing opposite to data:
// a pipe that needs an ancillary resource (a buffer manager matched to its
// flow, a uref manager, a clock, an event loop, a flow-format amendment)
// registers a Request on its output; the request bubbles upstream until a
// probe or an upstream pipe provides it.
package urequest

import (
	"github.com/google/uuid"

	"github.com/quarium/upipe/ubuf"
	"github.com/quarium/upipe/uclock"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urefcount"
)

// Kind identifies what resource a Request asks for.
type Kind int

const (
	// FlowFormat asks the upstream to amend the flow definition, when the
	// requester needs a stricter format than the one presented.
	FlowFormat Kind = iota
	// UrefMgr asks for a uref manager.
	UrefMgr
	// UbufMgr asks for a ubuf manager matched to the request's flow
	// definition.
	UbufMgr
	// Uclock asks for a clock source.
	Uclock
	// UpumpMgr asks for the event loop the requester is scheduled on.
	UpumpMgr
)

// Response carries the provided resource; only the field matching the
// request's Kind is meaningful.
type Response struct {
	FlowFormat *uref.Uref
	UrefMgr    *uref.Manager
	UbufMgr    *ubuf.Manager
	Clock      uclock.Clock
	UpumpMgr   *upump.Manager
}

// Request is one upstream query. It carries its own refcount since both
// the requester and whichever upstream entity stored it for asynchronous
// provision hold it; provision may happen synchronously during
// registration or arbitrarily later, and may recur to reflect changes
// (the last provide supersedes earlier ones).
type Request struct {
	kind    Kind
	id      uuid.UUID
	rc      *urefcount.RefCount
	flowDef *uref.Uref
	provide func(*Request, Response)

	response Response
	provided bool
}

// New allocates a Request of the given kind. flowDef is required for
// FlowFormat and UbufMgr requests (it describes what the requester needs)
// and ignored otherwise; the request holds it until released. provide is
// invoked on every provision, on the provider's goroutine.
func New(kind Kind, flowDef *uref.Uref, provide func(*Request, Response)) *Request {
	r := &Request{
		kind:    kind,
		id:      uuid.New(),
		flowDef: flowDef,
		provide: provide,
	}
	r.rc = urefcount.New(func() {
		if r.flowDef != nil {
			r.flowDef.Free()
			r.flowDef = nil
		}
	})
	return r
}

// Kind returns what resource this request asks for.
func (r *Request) Kind() Kind {
	return r.kind
}

// ID returns the request's stable identity. Registration lists use it to
// find a request again across bin-pipe chain rebuilds and transfer
// boundaries, where pointer identity does not survive.
func (r *Request) ID() uuid.UUID {
	return r.id
}

// FlowDef returns the flow definition this request was allocated with, or
// nil. Ownership stays with the request.
func (r *Request) FlowDef() *uref.Uref {
	return r.flowDef
}

// Use adds a reference, for an upstream entity storing the request for
// later asynchronous provision.
func (r *Request) Use() {
	r.rc.Use()
}

// Release drops a reference.
func (r *Request) Release() {
	r.rc.Release()
}

// Provide fulfils (or re-fulfils) the request. The response is cached so
// late observers see the most recent provision; the provide callback runs
// synchronously.
func (r *Request) Provide(resp Response) {
	r.response = resp
	r.provided = true
	if r.provide != nil {
		r.provide(r, resp)
	}
}

// Response returns the most recent provision, if any has happened yet.
func (r *Request) Response() (Response, bool) {
	return r.response, r.provided
}

// vim: foldmethod=marker
