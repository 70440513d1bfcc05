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
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urequest"
)

// OutputHelper is the composable building block for pipes with one output:
// it keeps the connected output pipe, the output flow definition and the
// registered upstream requests together, and owns the discipline of
// announcing the flow definition to a newly connected output before any
// uref reaches it. Embed it in an Impl and route the generic output
// commands to ControlOutput.
type OutputHelper struct {
	pipe    *Pipe
	output  *Pipe
	flowDef *uref.Uref
	sent    bool

	requests []*urequest.Request
}

// InitOutput binds the helper to its owning pipe.
func (h *OutputHelper) InitOutput(p *Pipe) {
	h.pipe = p
}

// Output returns the connected output pipe, nil if none.
func (h *OutputHelper) Output() *Pipe {
	return h.output
}

// FlowDef returns the current output flow definition, nil if none.
func (h *OutputHelper) FlowDef() *uref.Uref {
	return h.flowDef
}

// StoreFlowDef records flow as the output flow definition (taking
// ownership) and re-announces it before the next uref is sent. It also
// throws NewFlowDef so the application sees format changes.
func (h *OutputHelper) StoreFlowDef(flow *uref.Uref) {
	if h.flowDef != nil {
		h.flowDef.Free()
	}
	h.flowDef = flow
	h.sent = false
	if flow != nil {
		h.pipe.ThrowNewFlowDef(flow)
	}
}

// Send forwards u to the connected output, announcing the stored flow
// definition first if the output has not seen it yet. With no output
// connected, NeedOutput is thrown once and the uref is dropped if still
// unconnected afterwards.
func (h *OutputHelper) Send(u *uref.Uref, pump *upump.Pump) {
	if h.output == nil {
		_ = h.pipe.Throw(uprobe.Event{Code: uprobe.NeedOutput, Uref: h.flowDef})
		if h.output == nil {
			h.pipe.ThrowLog(uprobe.LogWarning, "dropping uref with no output connected")
			u.Free()
			return
		}
	}
	if !h.sent && h.flowDef != nil {
		_ = h.output.Control(SetFlowDef{Flow: h.flowDef})
		h.sent = true
	}
	h.output.Input(u, pump)
}

// ControlOutput handles the generic output commands; the embedding Impl
// calls it from its Control before (or after) its own dispatch. It returns
// Unhandled for commands it does not cover.
func (h *OutputHelper) ControlOutput(cmd Command) error {
	switch c := cmd.(type) {
	case SetOutput:
		if h.output != nil {
			h.output.Release()
		}
		h.output = c.Output
		h.sent = false
		if h.output != nil {
			h.output.Use()
			// Replay registered requests downstream so a rebuilt tail
			// still answers them.
			for _, r := range h.requests {
				_ = h.output.Control(RegisterRequest{Request: r})
			}
		}
		return nil
	case GetOutput:
		*c.Output = h.output
		return nil
	case GetFlowDef:
		*c.Flow = h.flowDef
		return nil
	case RegisterRequest:
		h.requests = append(h.requests, c.Request)
		c.Request.Use()
		if h.output != nil {
			return h.output.Control(cmd)
		}
		return h.throwNeed(c.Request)
	case UnregisterRequest:
		for i, r := range h.requests {
			if r == c.Request {
				h.requests = append(h.requests[:i:i], h.requests[i+1:]...)
				if h.output != nil {
					_ = h.output.Control(cmd)
				}
				r.Release()
				return nil
			}
		}
		return uerror.Invalid
	}
	return uerror.Unhandled
}

// throwNeed turns an unforwardable request into the matching Need event so
// a provider probe can answer it.
func (h *OutputHelper) throwNeed(r *urequest.Request) error {
	var code uprobe.Code
	switch r.Kind() {
	case urequest.UrefMgr:
		code = uprobe.NeedUrefMgr
	case urequest.UbufMgr, urequest.FlowFormat:
		code = uprobe.NeedUbufMgr
	case urequest.Uclock:
		code = uprobe.NeedUclock
	case urequest.UpumpMgr:
		code = uprobe.NeedUpumpMgr
	default:
		return uerror.Invalid
	}
	return h.pipe.Throw(uprobe.Event{Code: code, Request: r})
}

// CleanOutput releases everything the helper holds; call from Impl.Free.
func (h *OutputHelper) CleanOutput() {
	if h.output != nil {
		h.output.Release()
		h.output = nil
	}
	if h.flowDef != nil {
		h.flowDef.Free()
		h.flowDef = nil
	}
	for _, r := range h.requests {
		r.Release()
	}
	h.requests = nil
}

// vim: foldmethod=marker
