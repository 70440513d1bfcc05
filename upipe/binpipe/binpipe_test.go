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

package binpipe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/upipe/binpipe"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
)

// tap is a trivial inner pipe kind recording what reaches it and
// forwarding to its output when connected.
type tap struct {
	pipe   *upipe.Pipe
	out    upipe.OutputHelper
	inputs int
}

func newTapMgr(name string) *upipe.Manager {
	return upipe.NewManager(upipe.FourCC('t', 'a', 'p', '0'), name,
		func(p *upipe.Pipe, flowDef *uref.Uref) (upipe.Impl, error) {
			impl := &tap{pipe: p}
			impl.out.InitOutput(p)
			return impl, nil
		})
}

func (t *tap) Input(u *uref.Uref, pump *upump.Pump) {
	t.inputs++
	if t.out.Output() != nil {
		t.out.Send(u, pump)
		return
	}
	u.Free()
}

func (t *tap) Control(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.SetFlowDef:
		t.out.StoreFlowDef(c.Flow.Dup())
		return nil
	}
	return t.out.ControlOutput(cmd)
}

func (t *tap) NoRef() { t.pipe.ReleaseInternal() }
func (t *tap) Free()  { t.out.CleanOutput() }

// facade is a bin kind whose chain is first -> last.
type facade struct {
	pipe *upipe.Pipe
	bin  binpipe.Bin
}

func newFacade(t *testing.T, first, last *upipe.Pipe) *upipe.Pipe {
	t.Helper()
	mgr := upipe.NewManager(upipe.FourCC('f', 'c', 'd', '0'), "facade",
		func(p *upipe.Pipe, flowDef *uref.Uref) (upipe.Impl, error) {
			impl := &facade{pipe: p}
			impl.bin.InitBin(p)
			impl.bin.StoreFirstInner(first)
			impl.bin.StoreLastInner(last)
			return impl, nil
		})
	p, err := mgr.AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)
	return p
}

func (f *facade) Input(u *uref.Uref, pump *upump.Pump) {
	f.bin.Input(u, pump)
}

func (f *facade) Control(cmd upipe.Command) error {
	return f.bin.ControlBin(cmd)
}

func (f *facade) NoRef() {
	f.bin.CleanBin()
	f.pipe.ReleaseInternal()
}

func (f *facade) Free() {}

func TestBinForwardsInputAndOutputWiring(t *testing.T) {
	first, err := newTapMgr("first").AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)
	last, err := newTapMgr("last").AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)
	require.NoError(t, first.Control(upipe.SetOutput{Output: last}))

	sink, err := newTapMgr("sink").AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)

	bin := newFacade(t, first, last.Use())

	// SET_OUTPUT on the facade lands on the last inner.
	require.NoError(t, bin.Control(upipe.SetOutput{Output: sink}))
	var lastOut *upipe.Pipe
	require.NoError(t, last.Control(upipe.GetOutput{Output: &lastOut}))
	assert.Same(t, sink, lastOut)

	// SET_FLOW_DEF and input on the facade land on the first inner.
	urefMgr := uref.NewManager()
	flow, err := urefMgr.NewFlowDef("block.")
	require.NoError(t, err)
	require.NoError(t, bin.Control(upipe.SetFlowDef{Flow: flow}))
	flow.Free()

	bin.Input(urefMgr.New(), nil)
	assert.Equal(t, 1, first.Impl().(*tap).inputs)
	assert.Equal(t, 1, last.Impl().(*tap).inputs)
	assert.Equal(t, 1, sink.Impl().(*tap).inputs)

	var inner *upipe.Pipe
	require.NoError(t, bin.Control(upipe.BinGetFirstInner{Inner: &inner}))
	assert.Same(t, first, inner)
	require.NoError(t, bin.Control(upipe.BinGetLastInner{Inner: &inner}))
	assert.Same(t, last, inner)

	err = bin.Control(upipe.SetURI{URI: "x"})
	assert.ErrorIs(t, err, uerror.Unhandled)

	bin.Release()
	last.Release()
	sink.Release()
}

// vim: foldmethod=marker
