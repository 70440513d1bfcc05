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

package upipe_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
)

// passthrough is a minimal pipe kind for the tests: it forwards every uref
// to its output untouched.
type passthrough struct {
	pipe *upipe.Pipe
	out  upipe.OutputHelper

	freed  *bool
	inputs int
}

var passthroughSig = upipe.FourCC('p', 'a', 's', 's')

func newPassthroughMgr(freed *bool) *upipe.Manager {
	return upipe.NewManager(passthroughSig, "pass", func(p *upipe.Pipe, flowDef *uref.Uref) (upipe.Impl, error) {
		impl := &passthrough{pipe: p, freed: freed}
		impl.out.InitOutput(p)
		return impl, nil
	})
}

func (t *passthrough) Input(u *uref.Uref, pump *upump.Pump) {
	t.inputs++
	t.out.Send(u, pump)
}

func (t *passthrough) Control(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.SetFlowDef:
		t.out.StoreFlowDef(c.Flow.Dup())
		return nil
	}
	return t.out.ControlOutput(cmd)
}

func (t *passthrough) NoRef() {
	t.pipe.ReleaseInternal()
}

func (t *passthrough) Free() {
	t.out.CleanOutput()
	if t.freed != nil {
		*t.freed = true
	}
}

// recorder is a control-less sink kind collecting what reaches it.
type recorder struct {
	pipe *upipe.Pipe
	got  []*uref.Uref
	defs []string
}

var recorderSig = upipe.FourCC('s', 'i', 'n', 'k')

func newRecorderMgr() *upipe.Manager {
	return upipe.NewManager(recorderSig, "sink", func(p *upipe.Pipe, flowDef *uref.Uref) (upipe.Impl, error) {
		return &recorder{pipe: p}, nil
	})
}

func (r *recorder) Input(u *uref.Uref, pump *upump.Pump) {
	r.got = append(r.got, u)
}

func (r *recorder) Control(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.SetFlowDef:
		def, _ := c.Flow.FlowDef()
		r.defs = append(r.defs, def)
		return nil
	}
	return uerror.Unhandled
}

func (r *recorder) NoRef() { r.pipe.ReleaseInternal() }
func (r *recorder) Free() {
	for _, u := range r.got {
		u.Free()
	}
}

func TestPipeLifecycle(t *testing.T) {
	var events []uprobe.Code
	probe := uprobe.CatchFunc(func(_ uprobe.Pipe, ev uprobe.Event) error {
		events = append(events, ev.Code)
		return nil
	})

	freed := false
	mgr := newPassthroughMgr(&freed)
	p, err := mgr.AllocVoid(probe)
	require.NoError(t, err)

	assert.Equal(t, []uprobe.Code{uprobe.Ready}, events)
	assert.Equal(t, passthroughSig, p.MgrSignature())

	p.Release()
	assert.True(t, freed, "Free must run once external and internal refs are gone")
	assert.Equal(t, []uprobe.Code{uprobe.Ready, uprobe.Dead}, events,
		"Dead is thrown exactly once, at the end")
}

func TestOutputHelperAnnouncesFlowDefFirst(t *testing.T) {
	mgr := newPassthroughMgr(nil)
	sinkMgr := newRecorderMgr()

	p, err := mgr.AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)
	sink, err := sinkMgr.AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)

	urefMgr := uref.NewManager()
	flow, err := urefMgr.NewFlowDef("block.")
	require.NoError(t, err)
	require.NoError(t, p.Control(upipe.SetFlowDef{Flow: flow}))
	flow.Free()
	require.NoError(t, p.Control(upipe.SetOutput{Output: sink}))

	p.Input(urefMgr.New(), nil)
	p.Input(urefMgr.New(), nil)

	rec := sink.Impl().(*recorder)
	assert.Equal(t, []string{"block."}, rec.defs,
		"the flow def is announced exactly once, before the first uref")
	assert.Len(t, rec.got, 2)

	var got *upipe.Pipe
	require.NoError(t, p.Control(upipe.GetOutput{Output: &got}))
	assert.Same(t, sink, got)

	p.Release()
	sink.Release()
}

func TestUnknownCommandIsUnhandled(t *testing.T) {
	mgr := newPassthroughMgr(nil)
	p, err := mgr.AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)
	defer p.Release()

	err = p.Control(upipe.SetURI{URI: "file:nowhere"})
	assert.True(t, errors.Is(err, uerror.Unhandled))
}

func TestSendWithoutOutputDropsAndThrowsNeedOutput(t *testing.T) {
	needs := 0
	probe := uprobe.CatchFunc(func(_ uprobe.Pipe, ev uprobe.Event) error {
		if ev.Code == uprobe.NeedOutput {
			needs++
			return nil
		}
		return uerror.Unhandled
	})

	mgr := newPassthroughMgr(nil)
	p, err := mgr.AllocVoid(probe)
	require.NoError(t, err)
	defer p.Release()

	urefMgr := uref.NewManager()
	p.Input(urefMgr.New(), nil)
	assert.Equal(t, 1, needs, "an unconnected output throws NeedOutput")
}

func TestInputHelperPreservesOrderAcrossBlocking(t *testing.T) {
	// An impl that refuses to process until unblocked.
	var h upipe.InputHelper
	blocked := true
	var got []uint64

	mgr := upipe.NewManager(upipe.FourCC('h', 'o', 'l', 'd'), "hold",
		func(p *upipe.Pipe, flowDef *uref.Uref) (upipe.Impl, error) {
			impl := &recorder{pipe: p}
			h.InitInput(p, func(u *uref.Uref, pump *upump.Pump) bool {
				if blocked {
					return false
				}
				id, _ := u.FlowID()
				got = append(got, id)
				u.Free()
				return true
			})
			return impl, nil
		})

	p, err := mgr.AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)

	urefMgr := uref.NewManager()
	for i := uint64(0); i < 4; i++ {
		u := urefMgr.New()
		require.NoError(t, u.SetFlowID(i))
		assert.False(t, h.HandleInput(u, nil))
	}
	assert.Equal(t, 4, h.HeldInput())

	blocked = false
	assert.True(t, h.UnblockInput(nil))
	assert.Equal(t, []uint64{0, 1, 2, 3}, got, "held urefs replay in arrival order")

	p.Release()
}

// vim: foldmethod=marker
