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

// Package uprobe is the event side of the pipeline: pipes throw events
// (readiness, death, sync state, clock samples, log lines, resource needs)
// up a chain of stacked probes, and the first probe that recognises an
// event terminates its traversal. Applications build their probe stack
// once, bottom (their own handler) to top (the probe handed to each
// allocated pipe).
package uprobe

import (
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urequest"
)

// Code numbers the standard events. Codes at or above Local are private to
// one pipe implementation and carry the implementation's manager signature
// for disambiguation.
type Code int

const (
	// Ready is thrown once the pipe has finished allocating.
	Ready Code = iota
	// Dead is thrown when the last external reference is gone and the
	// pipe has flushed; no event may follow it.
	Dead
	// Log carries one rendered log line and its level.
	Log
	// Fatal reports an unrecoverable error; the pipe cannot continue.
	Fatal
	// SyncAcquired is thrown when a parser locks onto its stream.
	SyncAcquired
	// SyncLost is thrown when a parser loses lock.
	SyncLost
	// ClockRef carries a fresh program clock reference sample.
	ClockRef
	// ClockTs carries a uref whose timestamps were just decoded.
	ClockTs
	// ClockUTC carries a wall-clock correlation sample.
	ClockUTC
	// NewFlowDef announces the output flow definition of the pipe.
	NewFlowDef
	// SourceEnd is thrown when a source pipe reaches the end of its
	// input; the pipe stays quiescent until released.
	SourceEnd
	// SinkEnd is thrown when a sink disconnects or stops needing input.
	SinkEnd
	// NeedOutput asks the application to connect an output pipe.
	NeedOutput
	// NeedUpumpMgr asks for the event loop of the thread the pipe runs
	// on.
	NeedUpumpMgr
	// NeedUrefMgr asks for a uref manager.
	NeedUrefMgr
	// NeedUbufMgr asks for a ubuf manager matched to a flow definition.
	NeedUbufMgr
	// NeedUclock asks for a clock source.
	NeedUclock
	// NewRap announces a random access point in the flow.
	NewRap
	// SplitUpdate announces that a demuxer's set of elementary flows
	// changed; the application iterates the split sub-pipes to see the
	// new set.
	SplitUpdate
	// Frozen announces that a remote event loop was frozen for
	// introspection.
	Frozen
	// Thaw announces that a frozen remote event loop resumed.
	Thaw

	// Local is the first code available for pipe-private events; such
	// events carry the pipe's manager signature in Event.Sig.
	Local Code = 0x8000
)

// LogLevel grades Log events.
type LogLevel int

const (
	LogVerbose LogLevel = iota
	LogDebug
	LogNotice
	LogWarning
	LogError
)

// Event is one notification travelling up a probe chain. Only the fields
// relevant to the Code are set.
type Event struct {
	Code Code
	// Sig is the throwing manager's signature, for Code >= Local.
	Sig uint32

	// Level and Msg are set on Log events.
	Level LogLevel
	Msg   string

	// Uref is set on ClockTs and NewFlowDef events. The uref remains
	// owned by the thrower; probes must not free it.
	Uref *uref.Uref

	// Value is set on ClockRef (the reference sample) and ClockUTC.
	Value uint64

	// Request is set on Need* events carrying an urequest to provide.
	Request *urequest.Request

	// Args carries the payload of Local events.
	Args []any
}

// Pipe identifies the throwing pipe to probe handlers, without dragging
// the full pipe object model into this package.
type Pipe interface {
	// Name returns the pipe's logging name.
	Name() string
	// MgrSignature returns the pipe's manager signature fourcc.
	MgrSignature() uint32
}

// Probe handles events thrown by a pipe. Catch returns nil (or any error
// other than uerror.Unhandled) to terminate the chain traversal, or
// uerror.Unhandled to let the event continue to the next probe.
type Probe interface {
	Catch(pipe Pipe, ev Event) error
}

// CatchFunc adapts a plain function to the Probe interface.
type CatchFunc func(pipe Pipe, ev Event) error

// Catch implements Probe.
func (f CatchFunc) Catch(pipe Pipe, ev Event) error {
	return f(pipe, ev)
}

// Next forwards ev to the next probe in the chain, or reports Unhandled at
// the end of the chain. Probes that decline an event call this instead of
// returning Unhandled themselves, so a chain is walked head to tail
// without a central dispatcher.
func Next(next Probe, pipe Pipe, ev Event) error {
	if next == nil {
		return uerror.Unhandled
	}
	return next.Catch(pipe, ev)
}

// Throw starts a traversal at the chain head. It exists for symmetry with
// Next; a pipe throws by calling Throw on its probe head.
func Throw(head Probe, pipe Pipe, ev Event) error {
	return Next(head, pipe, ev)
}

// vim: foldmethod=marker
