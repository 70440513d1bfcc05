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

// Package mock provides the test doubles every pipe's test bench needs: a
// sink pipe that hands each arriving uref to a callback (or retains it for
// later inspection), and an event recorder probe. Configure with the
// Config callbacks, the same way a mock transceiver is configured with
// canned Rx/Tx functions.
package mock

import (
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
)

// Signature identifies the mock sink kind.
var Signature = upipe.FourCC('m', 'o', 'c', 'k')

// Config is the set of optional behaviours of a mock sink.
type Config struct {
	// OnInput, if not nil, receives every arriving uref and owns it. If
	// nil, arriving urefs are retained on Sink.Got.
	OnInput func(u *uref.Uref)

	// OnFlowDef, if not nil, observes every flow definition presented
	// via SetFlowDef (ownership stays with the caller).
	OnFlowDef func(flow *uref.Uref)
}

// Sink is the mock pipe's state, reachable through SinkOf for assertions.
type Sink struct {
	pipe *upipe.Pipe
	cfg  Config

	// Got retains arriving urefs when no OnInput callback is set; they
	// are freed with the pipe.
	Got []*uref.Uref
	// Defs records the flow.def string of every SetFlowDef received.
	Defs []string
}

// NewMgr returns a manager allocating mock sinks with the given
// behaviour.
func NewMgr(cfg Config) *upipe.Manager {
	return upipe.NewManager(Signature, "mock", func(p *upipe.Pipe, _ *uref.Uref) (upipe.Impl, error) {
		return &Sink{pipe: p, cfg: cfg}, nil
	})
}

// SinkOf returns the Sink state behind a pipe allocated by NewMgr.
func SinkOf(p *upipe.Pipe) *Sink {
	return p.Impl().(*Sink)
}

// Input implements upipe.Inputer.
func (s *Sink) Input(u *uref.Uref, pump *upump.Pump) {
	if s.cfg.OnInput != nil {
		s.cfg.OnInput(u)
		return
	}
	s.Got = append(s.Got, u)
}

// Control implements upipe.Impl.
func (s *Sink) Control(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.SetFlowDef:
		def, _ := c.Flow.FlowDef()
		s.Defs = append(s.Defs, def)
		if s.cfg.OnFlowDef != nil {
			s.cfg.OnFlowDef(c.Flow)
		}
		return nil
	}
	return uerror.Unhandled
}

// NoRef implements upipe.Impl.
func (s *Sink) NoRef() {
	s.pipe.ReleaseInternal()
}

// Free implements upipe.Impl.
func (s *Sink) Free() {
	for _, u := range s.Got {
		u.Free()
	}
	s.Got = nil
}

// Recorder is a probe retaining every event that reaches it, for
// asserting on throw order in tests.
type Recorder struct {
	next   uprobe.Probe
	Events []uprobe.Event
}

// NewRecorder stacks a Recorder in front of next (nil to terminate the
// chain here, handling everything).
func NewRecorder(next uprobe.Probe) *Recorder {
	return &Recorder{next: next}
}

// Catch implements uprobe.Probe.
func (r *Recorder) Catch(pipe uprobe.Pipe, ev uprobe.Event) error {
	r.Events = append(r.Events, ev)
	if r.next == nil {
		return nil
	}
	return uprobe.Next(r.next, pipe, ev)
}

// Codes returns just the event codes, in arrival order.
func (r *Recorder) Codes() []uprobe.Code {
	out := make([]uprobe.Code, len(r.Events))
	for i := range r.Events {
		out[i] = r.Events[i].Code
	}
	return out
}

// CountOf returns how many events of one code were recorded.
func (r *Recorder) CountOf(code uprobe.Code) int {
	n := 0
	for i := range r.Events {
		if r.Events[i].Code == code {
			n++
		}
	}
	return n
}

// vim: foldmethod=marker
