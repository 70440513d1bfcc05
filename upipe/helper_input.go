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

package upipe

import (
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
)

// InputHelper is the composable building block for pipes that may not be
// able to process a uref the moment it arrives: the uref is held in an
// ordered queue and replayed once the blocking condition clears. A pipe
// never blocks its event loop waiting on a downstream; it holds urefs
// here instead. Embed it in an Impl next to an output callback of the
// form func(*uref.Uref, *upump.Pump) bool returning false while still
// blocked.
type InputHelper struct {
	pipe    *Pipe
	held    []*uref.Uref
	blocked bool
	out     func(*uref.Uref, *upump.Pump) bool
}

// InitInput binds the helper to its owning pipe and the impl's processing
// callback.
func (h *InputHelper) InitInput(p *Pipe, out func(*uref.Uref, *upump.Pump) bool) {
	h.pipe = p
	h.out = out
}

// HandleInput runs u through the processing callback, queueing it (after
// everything already queued) when the callback reports it cannot proceed.
// It reports whether the uref went through without queueing.
func (h *InputHelper) HandleInput(u *uref.Uref, pump *upump.Pump) bool {
	if h.blocked {
		h.held = append(h.held, u)
		return false
	}
	if !h.out(u, pump) {
		h.held = append(h.held, u)
		h.blocked = true
		// The impl could not process: keep the pipe alive until the
		// queue drains, even if the last external reference goes away
		// in the meantime.
		h.pipe.UseInternal()
		return false
	}
	return true
}

// UnblockInput replays the held queue in order after the blocking
// condition cleared, stopping again at the first uref that still cannot
// proceed. It reports whether the queue fully drained.
func (h *InputHelper) UnblockInput(pump *upump.Pump) bool {
	if !h.blocked {
		return true
	}
	for len(h.held) > 0 {
		u := h.held[0]
		if !h.out(u, pump) {
			return false
		}
		h.held = h.held[1:]
	}
	h.blocked = false
	h.pipe.ReleaseInternal()
	return true
}

// HeldInput returns how many urefs are currently queued.
func (h *InputHelper) HeldInput() int {
	return len(h.held)
}

// CleanInput frees whatever is still queued; call from Impl.Free.
func (h *InputHelper) CleanInput() {
	for _, u := range h.held {
		u.Free()
	}
	h.held = nil
}

// vim: foldmethod=marker
