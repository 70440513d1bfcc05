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

// Package uref defines the reference unit: the token that actually flows
// from pipe to pipe. A Uref pairs one optional ubuf payload with one
// optional attribute dictionary, plus a handful of extremely hot fields
// (clock timestamps, block boundary flags) embedded directly in the struct
// so the per-packet fast path never pays for a dictionary lookup.
package uref

import (
	"sync"

	"github.com/quarium/upipe/ubuf"
	"github.com/quarium/upipe/udict"
)

// Flags is the bit-flag word for the handful of boolean attributes hot
// enough to live outside the dictionary.
type Flags uint32

const (
	// FlagBlockStart marks the first uref of a logical access unit (the
	// start of a PES payload, the first slice of a frame).
	FlagBlockStart Flags = 1 << iota
	// FlagBlockEnd marks the last uref of a logical access unit.
	FlagBlockEnd
	// FlagDataAligned marks a payload whose first octet starts an
	// elementary-stream access unit, as signalled by the container.
	FlagDataAligned
	// FlagKey marks a random-access point (key frame).
	FlagKey
	// FlagProgressive marks a progressive (non-interlaced) picture.
	FlagProgressive
	// FlagTFF marks an interlaced picture whose top field comes first.
	FlagTFF
	// FlagRap marks the uref as a random access point for the whole flow.
	FlagRap
)

// Uref is the reference-counted unit of work flowing through pipes. Handing
// a Uref to a pipe's Input transfers ownership: the caller must not touch it
// afterwards. Dup produces an independent metadata copy sharing the payload
// copy-on-write.
type Uref struct {
	mgr   *Manager
	buf   ubuf.Buffer
	dict  udict.Dict
	flags Flags
	clock Clock
}

// Manager allocates and recycles Urefs. It exists so the per-uref churn of
// a busy pipeline hits a freelist instead of the allocator, and so pipes
// can obtain one through a NEED_UREF_MGR request rather than a global.
type Manager struct {
	pool sync.Pool
}

// NewManager returns a ready Manager.
func NewManager() *Manager {
	m := &Manager{}
	m.pool.New = func() any { return &Uref{} }
	return m
}

// New returns an empty Uref: no payload, no attributes, no timestamps.
func (m *Manager) New() *Uref {
	u := m.pool.Get().(*Uref)
	*u = Uref{mgr: m}
	u.clock.init()
	return u
}

// NewFlowDef returns a Uref carrying only a flow definition attribute, the
// conventional way a flow format is announced to a pipe's SetFlowDef.
func (m *Manager) NewFlowDef(def string) (*Uref, error) {
	u := m.New()
	if err := u.SetFlowDef(def); err != nil {
		u.Free()
		return nil, err
	}
	return u, nil
}

// Free releases the payload (if any) and returns the Uref to its manager's
// pool. The Uref must not be used afterwards.
func (u *Uref) Free() {
	if u.buf != nil {
		u.buf.Release()
		u.buf = nil
	}
	u.dict = udict.Dict{}
	if u.mgr != nil {
		u.mgr.pool.Put(u)
	}
}

// Dup returns an independent copy of u's metadata (attributes, flags,
// timestamps) sharing u's payload storage copy-on-write.
func (u *Uref) Dup() *Uref {
	cp := u.mgr.New()
	cp.dict = u.dict.Dup()
	cp.flags = u.flags
	cp.clock = u.clock
	if u.buf != nil {
		cp.buf = u.buf.DupBuffer()
	}
	return cp
}

// Buffer returns the attached payload, or nil. Ownership stays with u.
func (u *Uref) Buffer() ubuf.Buffer {
	return u.buf
}

// Block returns the attached payload as a block, or nil if the payload is
// absent or another shape.
func (u *Uref) Block() *ubuf.Block {
	b, _ := u.buf.(*ubuf.Block)
	return b
}

// Sound returns the attached payload as a sound, or nil if the payload is
// absent or another shape.
func (u *Uref) Sound() *ubuf.Sound {
	s, _ := u.buf.(*ubuf.Sound)
	return s
}

// Picture returns the attached payload as a picture, or nil if the payload
// is absent or another shape.
func (u *Uref) Picture() *ubuf.Picture {
	p, _ := u.buf.(*ubuf.Picture)
	return p
}

// AttachBuffer attaches buf as u's payload, releasing any payload u already
// held. u takes ownership of buf.
func (u *Uref) AttachBuffer(buf ubuf.Buffer) {
	if u.buf != nil {
		u.buf.Release()
	}
	u.buf = buf
}

// DetachBuffer removes and returns u's payload, transferring ownership to
// the caller. Returns nil if u had no payload.
func (u *Uref) DetachBuffer() ubuf.Buffer {
	buf := u.buf
	u.buf = nil
	return buf
}

// Dict exposes the attribute dictionary for read access.
func (u *Uref) Dict() *udict.Dict {
	return &u.dict
}

// HasFlag reports whether every bit of f is set.
func (u *Uref) HasFlag(f Flags) bool {
	return u.flags&f == f
}

// SetFlag sets every bit of f.
func (u *Uref) SetFlag(f Flags) {
	u.flags |= f
}

// ClearFlag clears every bit of f.
func (u *Uref) ClearFlag(f Flags) {
	u.flags &^= f
}

// vim: foldmethod=marker
