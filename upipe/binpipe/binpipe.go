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

// Package binpipe implements the facade pattern: a pipe whose behaviour is
// itself a chain of inner pipes. The facade forwards input and the input
// flow definition to the first inner, and output wiring to the last inner,
// so the application sees one pipe whatever the chain inside currently
// looks like. The helper keeps the upstream/downstream wiring state so the
// bin can tear down and rebuild its inner chain (a decoder bin swapping
// codecs on a flow change) without the application noticing.
package binpipe

import (
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urequest"
)

// Bin is the composable facade state: embed it in the bin kind's Impl.
type Bin struct {
	pipe  *upipe.Pipe
	first *upipe.Pipe
	last  *upipe.Pipe

	// Wiring the application asked for, replayed onto every rebuilt
	// chain.
	output   *upipe.Pipe
	requests []*urequest.Request
}

// InitBin binds the helper to its facade pipe.
func (b *Bin) InitBin(p *upipe.Pipe) {
	b.pipe = p
}

// StoreFirstInner installs (or replaces) the input end of the inner chain.
// The bin takes ownership of the reference; nil clears it.
func (b *Bin) StoreFirstInner(inner *upipe.Pipe) {
	if b.first != nil {
		b.first.Release()
	}
	b.first = inner
}

// StoreLastInner installs (or replaces) the output end of the inner chain,
// replaying the stored output connection and every registered request onto
// it. The bin takes ownership of the reference; nil clears it. When the
// chain is a single pipe, pass it (with two references) to both store
// calls.
func (b *Bin) StoreLastInner(inner *upipe.Pipe) {
	if b.last != nil {
		for _, r := range b.requests {
			_ = b.last.Control(upipe.UnregisterRequest{Request: r})
		}
		b.last.Release()
	}
	b.last = inner
	if inner == nil {
		return
	}
	if b.output != nil {
		_ = inner.Control(upipe.SetOutput{Output: b.output})
	}
	for _, r := range b.requests {
		_ = inner.Control(upipe.RegisterRequest{Request: r})
	}
}

// Input forwards a uref to the chain's input end; call from the bin
// Impl's Input.
func (b *Bin) Input(u *uref.Uref, pump *upump.Pump) {
	if b.first == nil {
		b.pipe.ThrowFatal(uerror.Invalid)
		u.Free()
		return
	}
	b.first.Input(u, pump)
}

// ControlBin routes the facade commands: input-side commands to the first
// inner, output-side commands to the last inner, introspection to the
// stored ends. Route unrecognised commands here from the bin Impl's
// Control.
func (b *Bin) ControlBin(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.SetFlowDef:
		if b.first == nil {
			return uerror.Invalid
		}
		return b.first.Control(cmd)
	case upipe.SetOutput:
		if b.output != nil {
			b.output.Release()
		}
		b.output = c.Output
		if b.output != nil {
			b.output.Use()
		}
		if b.last == nil {
			return nil
		}
		return b.last.Control(cmd)
	case upipe.GetOutput:
		*c.Output = b.output
		return nil
	case upipe.RegisterRequest:
		b.requests = append(b.requests, c.Request)
		c.Request.Use()
		if b.last == nil {
			return nil
		}
		return b.last.Control(cmd)
	case upipe.UnregisterRequest:
		for i, r := range b.requests {
			if r == c.Request {
				b.requests = append(b.requests[:i:i], b.requests[i+1:]...)
				if b.last != nil {
					_ = b.last.Control(cmd)
				}
				r.Release()
				return nil
			}
		}
		return uerror.Invalid
	case upipe.BinGetFirstInner:
		*c.Inner = b.first
		return nil
	case upipe.BinGetLastInner:
		*c.Inner = b.last
		return nil
	}
	return uerror.Unhandled
}

// CleanBin releases the inner chain and wiring state; call from the bin
// Impl's NoRef (the inners may flush after that, holding their own
// internal references).
func (b *Bin) CleanBin() {
	b.StoreLastInner(nil)
	b.StoreFirstInner(nil)
	if b.output != nil {
		b.output.Release()
		b.output = nil
	}
	for _, r := range b.requests {
		r.Release()
	}
	b.requests = nil
}

// vim: foldmethod=marker
