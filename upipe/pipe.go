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

// Package upipe is the pipe object model: every processing element of a
// pipeline is a Pipe allocated through a Manager, receives urefs through
// Input, is configured through typed Commands, and reports upward through
// the probe chain it was allocated with.
//
// A Pipe itself is a thin, kind-independent shell; the behaviour lives in
// the Impl the manager's allocator builds. Exactly one Input or Control
// call is active on a pipe at any time, on the thread owning that pipe's
// event loop.
package upipe

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urefcount"
)

// FourCC packs a four-character code into the uint32 signature space every
// Manager is identified by.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

// Impl is the behaviour of one concrete pipe kind. The Pipe shell
// dispatches Control to it; kinds that accept data additionally implement
// Inputer. NoRef is the start of the death sequence: the last external
// reference is gone, the impl releases whatever it holds (inner pipes,
// queued urefs) and finally calls Pipe.ReleaseInternal, after which Free
// runs.
type Impl interface {
	Control(cmd Command) error
	// NoRef is invoked when the last external reference is released.
	NoRef()
	// Free is invoked once the internal refcount also reaches zero.
	Free()
}

// Inputer is implemented by pipe kinds that accept urefs. Ownership of the
// uref transfers to the pipe; pump identifies the watcher whose callback
// the input originates from, nil when called directly.
type Inputer interface {
	Input(u *uref.Uref, pump *upump.Pump)
}

// Manager describes one concrete pipe kind: its fourcc signature, a short
// name for logs, and the allocator producing the kind's Impl. Managers are
// themselves refcounted since applications and bins may share them.
type Manager struct {
	signature uint32
	name      string
	rc        *urefcount.RefCount
	alloc     func(p *Pipe, flowDef *uref.Uref) (Impl, error)
}

// NewManager builds a Manager. alloc is invoked with the freshly built
// Pipe shell and, for flow allocators, the initial flow definition (nil
// for void allocators); it returns the pipe's Impl.
func NewManager(signature uint32, name string, alloc func(p *Pipe, flowDef *uref.Uref) (Impl, error)) *Manager {
	m := &Manager{signature: signature, name: name, alloc: alloc}
	m.rc = urefcount.New(nil)
	return m
}

// Signature returns the manager's fourcc.
func (m *Manager) Signature() uint32 {
	return m.signature
}

// Name returns the kind's short name.
func (m *Manager) Name() string {
	return m.name
}

// Use adds a reference to the manager.
func (m *Manager) Use() *Manager {
	m.rc.Use()
	return m
}

// Release drops a reference to the manager.
func (m *Manager) Release() {
	m.rc.Release()
}

// AllocVoid allocates a pipe of this kind with no initial flow definition.
// The pipe owns one reference to itself which the caller releases with
// Pipe.Release.
func (m *Manager) AllocVoid(probe uprobe.Probe) (*Pipe, error) {
	return m.allocate(probe, nil)
}

// AllocFlow allocates a pipe of this kind with an initial flow definition.
// flowDef stays owned by the caller; allocators that retain it duplicate
// it.
func (m *Manager) AllocFlow(probe uprobe.Probe, flowDef *uref.Uref) (*Pipe, error) {
	if flowDef == nil {
		return nil, fmt.Errorf("upipe: %w: flow allocator needs a flow def", uerror.Invalid)
	}
	return m.allocate(probe, flowDef)
}

func (m *Manager) allocate(probe uprobe.Probe, flowDef *uref.Uref) (*Pipe, error) {
	p := &Pipe{
		mgr:   m,
		probe: probe,
		id:    uuid.New(),
		name:  m.name,
	}
	p.rc = urefcount.New(p.noRef)
	p.rcInternal = urefcount.New(p.free)
	impl, err := m.alloc(p, flowDef)
	if err != nil {
		return nil, err
	}
	p.impl = impl
	p.ThrowReady()
	return p, nil
}

// Pipe is one processing element. Its zero value is not usable; allocate
// through a Manager.
type Pipe struct {
	mgr   *Manager
	probe uprobe.Probe
	impl  Impl
	id    uuid.UUID
	name  string

	// rc counts external references; rcInternal keeps the pipe's memory
	// and Impl alive while it flushes after the last external release.
	rc         *urefcount.RefCount
	rcInternal *urefcount.RefCount

	opaque any
	dead   bool
}

// Name implements uprobe.Pipe.
func (p *Pipe) Name() string {
	return p.name
}

// SetName overrides the pipe's logging name.
func (p *Pipe) SetName(name string) {
	p.name = name
}

// MgrSignature implements uprobe.Pipe.
func (p *Pipe) MgrSignature() uint32 {
	return p.mgr.signature
}

// Mgr returns the pipe's manager.
func (p *Pipe) Mgr() *Manager {
	return p.mgr
}

// ID returns the pipe's stable instance identity, usable as an indirection
// key where holding the pipe pointer itself would create a cycle (a
// sub-pipe naming its super, a transferred pipe naming its facade).
func (p *Pipe) ID() uuid.UUID {
	return p.id
}

// Impl exposes the pipe's behaviour object, for the pipe kind's own
// package to get back to its state from a *Pipe. Other packages treat the
// result as opaque.
func (p *Pipe) Impl() Impl {
	return p.impl
}

// SetOpaque attaches an arbitrary application value to the pipe.
func (p *Pipe) SetOpaque(v any) {
	p.opaque = v
}

// Opaque returns the value attached with SetOpaque.
func (p *Pipe) Opaque() any {
	return p.opaque
}

// Use adds an external reference.
func (p *Pipe) Use() *Pipe {
	p.rc.Use()
	return p
}

// Release drops an external reference. On the last one, the pipe's Impl
// starts its death sequence; DEAD is thrown once everything is flushed,
// and no event may follow it.
func (p *Pipe) Release() {
	p.rc.Release()
}

// UseInternal holds the pipe's memory alive across a deferred flush (an
// input queue still draining after the last external release).
func (p *Pipe) UseInternal() {
	p.rcInternal.Use()
}

// ReleaseInternal balances UseInternal, or the allocation-time internal
// reference from inside Impl.NoRef once the impl has nothing left to
// flush.
func (p *Pipe) ReleaseInternal() {
	p.rcInternal.Release()
}

func (p *Pipe) noRef() {
	p.impl.NoRef()
}

func (p *Pipe) free() {
	p.ThrowDead()
	p.impl.Free()
}

// Input hands a uref to the pipe. Ownership transfers: the caller must not
// touch u afterwards. A pipe whose kind has no input frees the uref and
// logs the misuse.
func (p *Pipe) Input(u *uref.Uref, pump *upump.Pump) {
	in, ok := p.impl.(Inputer)
	if !ok {
		p.ThrowLog(uprobe.LogWarning, "uref fed to a pipe with no input")
		u.Free()
		return
	}
	in.Input(u, pump)
}

// Control submits one typed command. Unknown commands return
// uerror.Unhandled.
func (p *Pipe) Control(cmd Command) error {
	return p.impl.Control(cmd)
}

// PushProbe inserts a probe at the head of the pipe's chain by wrapping
// the current head. Chains are otherwise immutable once events start
// flowing; the one legitimate caller is the transfer machinery, which
// intercepts a pipe's events at the moment it is relocated and before any
// further event can fire.
func (p *Pipe) PushProbe(wrap func(next uprobe.Probe) uprobe.Probe) {
	p.probe = wrap(p.probe)
}

// Throw sends an event up the pipe's probe chain.
func (p *Pipe) Throw(ev uprobe.Event) error {
	if p.dead {
		return uerror.Invalid
	}
	if ev.Code == uprobe.Dead {
		p.dead = true
	}
	return uprobe.Throw(p.probe, p, ev)
}

// ThrowReady announces the pipe finished allocating.
func (p *Pipe) ThrowReady() {
	_ = p.Throw(uprobe.Event{Code: uprobe.Ready})
}

// ThrowDead announces the pipe's death. No event may follow.
func (p *Pipe) ThrowDead() {
	_ = p.Throw(uprobe.Event{Code: uprobe.Dead})
}

// ThrowFatal reports an unrecoverable error.
func (p *Pipe) ThrowFatal(err error) {
	_ = p.Throw(uprobe.Event{Code: uprobe.Fatal, Msg: fmt.Sprint(err)})
}

// ThrowLog emits one log line at the given level.
func (p *Pipe) ThrowLog(level uprobe.LogLevel, msg string) {
	_ = p.Throw(uprobe.Event{Code: uprobe.Log, Level: level, Msg: msg})
}

// ThrowLogf emits one formatted log line at the given level.
func (p *Pipe) ThrowLogf(level uprobe.LogLevel, format string, args ...any) {
	p.ThrowLog(level, fmt.Sprintf(format, args...))
}

// ThrowNewFlowDef announces the pipe's output flow definition. The uref
// stays owned by the thrower.
func (p *Pipe) ThrowNewFlowDef(flow *uref.Uref) {
	_ = p.Throw(uprobe.Event{Code: uprobe.NewFlowDef, Uref: flow})
}

// ThrowSourceEnd announces the end of a source's input.
func (p *Pipe) ThrowSourceEnd() {
	_ = p.Throw(uprobe.Event{Code: uprobe.SourceEnd})
}

// ThrowSinkEnd announces a sink stopped needing input.
func (p *Pipe) ThrowSinkEnd() {
	_ = p.Throw(uprobe.Event{Code: uprobe.SinkEnd})
}

// vim: foldmethod=marker
