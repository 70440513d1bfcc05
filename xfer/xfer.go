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

// Package xfer relocates a pipe onto a different event loop thread while
// preserving its identity to the application. A pipe that performs
// blocking work (filesystem reads, kernel sockets, vendor SDK callbacks)
// must not run on the application loop; the transfer Manager wraps such a
// remote pipe in a local facade whose input and control calls are
// serialized as messages through a uqueue, executed in order on the remote
// loop, while every event the remote pipe throws travels the opposite
// queue and re-fires on the facade's probe chain from the local loop.
package xfer

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uqueue"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urefcount"
)

// Signature identifies the transfer pipe kind.
var Signature = upipe.FourCC('x', 'f', 'e', 'r')

// msgKind enumerates the serialized operations, local to remote; events
// travel the reverse queue as msgEvent.
type msgKind int

const (
	msgAttachUpumpMgr msgKind = iota
	msgSetURI
	msgSetOutput
	msgInput
	msgRelease
	msgDetach

	// msgEvent is the reverse direction: one re-wrapped probe event.
	msgEvent
	// msgDead is the reverse direction acknowledgement that the remote
	// pipe died; it triggers the facade's own death on the local loop.
	msgDead
)

// message is one element travelling either queue.
type message struct {
	kind   msgKind
	facade *facade
	uri    string
	output *upipe.Pipe
	input  *uref.Uref
	event  uprobe.Event
}

// Manager owns the two queues and their pumps joining a local loop to one
// remote loop. Allocate one Manager per remote thread.
type Manager struct {
	rc *urefcount.RefCount

	localUpump  *upump.Manager
	remoteUpump *upump.Manager

	toRemote *uqueue.Queue
	toLocal  *uqueue.Queue

	remotePump *upump.Pump
	localPump  *upump.Pump

	// cleanErr keeps whatever the queue teardown reported, readable
	// through CleanErr after the last Release.
	cleanErr error

	// mu serializes remote message execution against Freeze, which lets
	// the application walk a remote pipe's sub-pipes from the local
	// thread while the remote loop is provably not executing.
	mu sync.Mutex
}

// NewManager joins local (the application loop) to remote (the loop the
// transferred pipes run on), with queues of the given length in each
// direction. Both loops' pop pumps are allocated and started; the remote
// loop therefore stays alive until Detach.
func NewManager(local, remote *upump.Manager, length int) (*Manager, error) {
	toRemote, err := uqueue.New(uqueue.Atomic, length)
	if err != nil {
		return nil, err
	}
	toLocal, err := uqueue.New(uqueue.Atomic, length)
	if err != nil {
		_ = toRemote.Clean()
		return nil, err
	}
	m := &Manager{
		localUpump:  local,
		remoteUpump: remote,
		toRemote:    toRemote,
		toLocal:     toLocal,
	}
	m.rc = urefcount.New(m.free)

	m.remotePump = toRemote.NewPopPump(remote, m.remoteWork)
	m.remotePump.Start()
	m.localPump = toLocal.NewPopPump(local, m.localWork)
	m.localPump.Start()
	return m, nil
}

func (m *Manager) free() {
	m.cleanErr = multierr.Combine(m.toRemote.Clean(), m.toLocal.Clean())
}

// CleanErr reports what the queue teardown returned, once the last
// reference is gone.
func (m *Manager) CleanErr() error {
	return m.cleanErr
}

// Use adds a reference to the manager.
func (m *Manager) Use() *Manager {
	m.rc.Use()
	return m
}

// Release drops a reference; the queues are torn down with the last one.
func (m *Manager) Release() {
	m.rc.Release()
}

// Freeze stops the remote loop from executing transfer messages until
// Thaw, so the local thread may safely introspect remote pipes (walk
// sub-pipe lists, send control commands directly). The remote loop keeps
// running its other pumps until it pops a transfer message; that callback
// then blocks the remote loop on the mutex until Thaw.
func (m *Manager) Freeze() {
	m.mu.Lock()
}

// Thaw resumes remote message execution after Freeze.
func (m *Manager) Thaw() {
	m.mu.Unlock()
}

// Detach stops and frees the remote-side pump, letting the remote loop
// exit once its own pumps are done. Call after every transferred pipe has
// died. The local pump is not freed: it stays started on the local loop,
// so that loop's Run returns only through Abort.
func (m *Manager) Detach() error {
	if !m.push(&message{kind: msgDetach}) {
		return fmt.Errorf("xfer: %w: queue full on detach", uerror.Busy)
	}
	return nil
}

// push enqueues toward the remote loop.
func (m *Manager) push(msg *message) bool {
	return m.toRemote.Push(msg)
}

// pushLocal enqueues toward the local loop.
func (m *Manager) pushLocal(msg *message) bool {
	return m.toLocal.Push(msg)
}

// remoteWork drains and executes local-to-remote messages, in order, on
// the remote loop.
func (m *Manager) remoteWork(pump *upump.Pump) {
	for {
		e := m.toRemote.Pop()
		if e == nil {
			return
		}
		msg := e.(*message)
		m.mu.Lock()
		m.remoteExec(msg, pump)
		m.mu.Unlock()
	}
}

func (m *Manager) remoteExec(msg *message, pump *upump.Pump) {
	switch msg.kind {
	case msgAttachUpumpMgr:
		_ = msg.facade.remote.Control(upipe.AttachUpumpMgr{Mgr: m.remoteUpump})
	case msgSetURI:
		_ = msg.facade.remote.Control(upipe.SetURI{URI: msg.uri})
	case msgSetOutput:
		_ = msg.facade.remote.Control(upipe.SetOutput{Output: msg.output})
		if msg.output != nil {
			msg.output.Release()
		}
	case msgInput:
		msg.facade.remote.Input(msg.input, pump)
	case msgRelease:
		msg.facade.remote.Release()
	case msgDetach:
		m.remotePump.Free()
	}
}

// localWork drains remote-to-local messages, re-throwing each event on the
// facade's probe chain, in order, on the local loop.
func (m *Manager) localWork(pump *upump.Pump) {
	for {
		e := m.toLocal.Pop()
		if e == nil {
			return
		}
		msg := e.(*message)
		switch msg.kind {
		case msgEvent:
			_ = msg.facade.pipe.Throw(msg.event)
		case msgDead:
			// The remote acknowledged death: only now may the facade's
			// own Dead fire on the local chain.
			msg.facade.pipe.ReleaseInternal()
		}
	}
}

// Alloc wraps remote, a pipe already living on the manager's remote loop,
// in a local facade. Ownership of remote's reference transfers to the
// facade; from here on the application only touches the facade. A
// transfer probe is pushed onto the remote pipe's chain so every event it
// throws re-fires on the facade from the local loop.
func (m *Manager) Alloc(probe uprobe.Probe, remote *upipe.Pipe) (*upipe.Pipe, error) {
	if remote == nil {
		return nil, fmt.Errorf("xfer: %w: nil remote pipe", uerror.Invalid)
	}
	mgr := upipe.NewManager(Signature, "xfer", func(p *upipe.Pipe, _ *uref.Uref) (upipe.Impl, error) {
		f := &facade{pipe: p, mgr: m, remote: remote}
		// The facade's internal refcount stays held until msgDead comes
		// back from the remote loop.
		p.UseInternal()
		remote.PushProbe(func(next uprobe.Probe) uprobe.Probe {
			return &remoteProbe{next: next, facade: f}
		})
		return f, nil
	})
	p, err := mgr.AllocVoid(probe)
	if err != nil {
		return nil, err
	}
	m.Use()
	return p, nil
}

// facade is the local pipe standing in for the remote one.
type facade struct {
	pipe   *upipe.Pipe
	mgr    *Manager
	remote *upipe.Pipe
}

// Input serializes a uref toward the remote pipe. Ordering with respect to
// control messages on the same facade is preserved; the uref crosses the
// thread boundary whole, ownership moving with it.
func (f *facade) Input(u *uref.Uref, pump *upump.Pump) {
	if !f.mgr.push(&message{kind: msgInput, facade: f, input: u}) {
		f.pipe.ThrowLog(uprobe.LogError, "transfer queue full, dropping uref")
		u.Free()
	}
}

// Control serializes the transferable commands; everything else is
// unhandled locally rather than silently misapplied on the wrong thread.
func (f *facade) Control(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.AttachUpumpMgr:
		// The remote pipe gets the remote loop, whatever was passed.
		if !f.mgr.push(&message{kind: msgAttachUpumpMgr, facade: f}) {
			return uerror.Busy
		}
		return nil
	case upipe.SetURI:
		if !f.mgr.push(&message{kind: msgSetURI, facade: f, uri: c.URI}) {
			return uerror.Busy
		}
		return nil
	case upipe.SetOutput:
		if c.Output != nil {
			c.Output.Use()
		}
		if !f.mgr.push(&message{kind: msgSetOutput, facade: f, output: c.Output}) {
			if c.Output != nil {
				c.Output.Release()
			}
			return uerror.Busy
		}
		return nil
	}
	return uerror.Unhandled
}

// NoRef sends the release over. The extra internal reference taken at
// alloc time is only dropped when the remote's Dead comes back, so the
// facade's own Dead is emitted exactly once, on the local loop, after the
// remote is provably gone.
func (f *facade) NoRef() {
	if !f.mgr.push(&message{kind: msgRelease, facade: f}) {
		// Queue full on the way out: the remote pipe leaks rather than
		// racing two threads on its refcount. Loud, because this only
		// happens when the application tore the manager down first.
		f.pipe.ThrowLog(uprobe.LogError, "transfer queue full, remote pipe leaked")
		f.pipe.ReleaseInternal()
	}
	f.pipe.ReleaseInternal()
}

func (f *facade) Free() {
	f.mgr.Release()
}

// remoteProbe sits at the head of the remote pipe's chain, on the remote
// thread, turning every event into a reverse-direction message. Dead is
// translated to msgDead; everything else crosses as msgEvent and re-fires
// verbatim on the facade.
type remoteProbe struct {
	next   uprobe.Probe
	facade *facade
}

// Catch implements uprobe.Probe.
func (rp *remoteProbe) Catch(pipe uprobe.Pipe, ev uprobe.Event) error {
	var msg *message
	if ev.Code == uprobe.Dead {
		msg = &message{kind: msgDead, facade: rp.facade}
	} else {
		msg = &message{kind: msgEvent, facade: rp.facade, event: ev}
	}
	if !rp.facade.mgr.pushLocal(msg) {
		// Never block the remote loop on the reverse queue: fall through
		// to the rest of the remote chain instead, so the event is at
		// least observable there rather than silently lost.
		return uprobe.Next(rp.next, pipe, ev)
	}
	return nil
}

// vim: foldmethod=marker
