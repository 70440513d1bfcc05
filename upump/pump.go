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

package upump

import (
	"time"

	"github.com/quarium/upipe/urefcount"
)

// Kind identifies what readiness source a Pump watches.
type Kind int

const (
	// FdRead fires when the watched file descriptor is readable.
	FdRead Kind = iota
	// FdWrite fires when the watched file descriptor is writable.
	FdWrite
	// Timer fires once after a delay, then optionally every repeat
	// interval.
	Timer
	// Idler fires whenever the loop has nothing else ready.
	Idler
	// Signal fires when the watched POSIX signal is delivered to the
	// process.
	Signal
)

// Callback is invoked by the loop when the pump's readiness source fires.
type Callback func(*Pump)

// Pump is one registration with a Manager's event loop. A Pump's lifecycle
// is allocate, Start, (fire zero or more times), Stop, Free; Start and Stop
// may alternate. All Pump methods must be called from the goroutine running
// the owning Manager's loop.
type Pump struct {
	mgr    *Manager
	kind   Kind
	cb     Callback
	opaque any

	// refcount of the pump's owner, held across every callback dispatch
	// so the owner cannot be freed out from under its own callback.
	rc *urefcount.RefCount

	started bool
	freed   bool

	fd     int
	sig    int
	after  time.Duration
	repeat time.Duration

	deadline time.Time
}

// SetOpaque attaches an arbitrary owner value to the pump, retrievable in
// the callback with Opaque.
func (p *Pump) SetOpaque(v any) {
	p.opaque = v
}

// Opaque returns the value attached with SetOpaque.
func (p *Pump) Opaque() any {
	return p.opaque
}

// SetRefCount attaches the owner's reference counter. The loop takes one
// reference before every callback dispatch and releases it after the
// callback returns, so a pipe that releases itself from inside its own
// callback survives until the callback has unwound.
func (p *Pump) SetRefCount(rc *urefcount.RefCount) {
	p.rc = rc
}

// Kind returns what readiness source this pump watches.
func (p *Pump) Kind() Kind {
	return p.kind
}

// Start arms the pump. A started pump keeps the Manager's Run loop alive.
// Starting an already started pump is a no-op.
func (p *Pump) Start() {
	if p.freed || p.started {
		return
	}
	p.started = true
	if p.kind == Timer {
		p.deadline = time.Now().Add(p.after)
	}
	p.mgr.started++
}

// Stop disarms the pump without freeing it; it may be started again.
// Stopping an already stopped pump is a no-op.
func (p *Pump) Stop() {
	if p.freed || !p.started {
		return
	}
	p.started = false
	p.mgr.started--
}

// Free stops the pump if needed and removes it from the Manager. The pump
// must not be used afterwards. An in-flight callback dispatch for this pump
// runs to completion; Free only prevents future dispatches.
func (p *Pump) Free() {
	if p.freed {
		return
	}
	p.Stop()
	p.freed = true
	p.mgr.remove(p)
}

// vim: foldmethod=marker
