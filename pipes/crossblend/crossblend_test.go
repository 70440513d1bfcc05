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

package crossblend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarium/upipe/pipes/crossblend"
	"github.com/quarium/upipe/pipes/mock"
	"github.com/quarium/upipe/ubuf"
	"github.com/quarium/upipe/uclock"
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/uref"
)

const (
	sample = 1000.0
	rate   = 80
	nUrefs = 5
)

var planes = []string{"l", "r"}

// sinkState checks the strict monotonic-decrease property the C test
// enforces: every observed sample, on every plane, is below the previous
// one and above the mirrored input-B floor.
type sinkState struct {
	t     *testing.T
	last  [2]float32
	count int
}

func (s *sinkState) observe(u *uref.Uref) {
	snd := u.Sound()
	require.NotNil(s.t, snd)
	for pi, plane := range planes {
		buf, err := snd.ReadF32(plane)
		require.NoError(s.t, err)
		for _, v := range buf {
			assert.Less(s.t, v, s.last[pi], "samples must strictly decrease")
			assert.Greater(s.t, v, float32(-sample-float32(pi)*sample-1))
			s.last[pi] = v
		}
	}
	s.count++
	u.Free()
}

func (s *sinkState) reset() {
	for pi := range planes {
		s.last[pi] = sample + float32(pi)*sample + 1
	}
	s.count = 0
}

func soundFlowDef(t *testing.T, urefMgr *uref.Manager) *uref.Uref {
	t.Helper()
	flow, err := urefMgr.NewFlowDef("sound.f32.")
	require.NoError(t, err)
	require.NoError(t, flow.SetSoundRate(rate))
	require.NoError(t, flow.SetSoundChannels(2))
	return flow
}

func soundUref(t *testing.T, urefMgr *uref.Manager, bufMgr *ubuf.Manager,
	samples int, fill func(plane, i int) float32) *uref.Uref {
	t.Helper()
	snd, err := bufMgr.NewSound(ubuf.SampleF32, rate, samples, planes)
	require.NoError(t, err)
	for pi, plane := range planes {
		buf := make([]float32, samples)
		for i := range buf {
			buf[i] = fill(pi, i)
		}
		require.NoError(t, snd.WriteF32(plane, buf))
	}
	u := urefMgr.New()
	u.AttachBuffer(snd)
	return u
}

// TestCrossBlend drives the two-input fade end to end: input A plays alone, input B takes
// over, the fade strictly interpolates, and A hears SINK_END exactly once
// when the fade completes.
func TestCrossBlend(t *testing.T) {
	urefMgr := uref.NewManager()
	bufMgr, err := ubuf.NewManager(4096, 32)
	require.NoError(t, err)

	blend, err := crossblend.NewMgr().AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)
	// period = 1/5 s at 80 Hz -> the fade spans 16 samples.
	require.NoError(t, blend.Control(crossblend.SetDuration{Period: uclock.Freq / 5}))

	state := &sinkState{t: t}
	state.reset()
	sink, err := mock.NewMgr(mock.Config{OnInput: state.observe}).AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)
	require.NoError(t, blend.Control(upipe.SetOutput{Output: sink}))

	var subMgr *upipe.Manager
	require.NoError(t, blend.Control(upipe.GetSubMgr{Mgr: &subMgr}))

	// Input A, with a SINK_END counter on its probe.
	endsA := 0
	probeA := uprobe.CatchFunc(func(_ uprobe.Pipe, ev uprobe.Event) error {
		if ev.Code == uprobe.SinkEnd {
			endsA++
			return nil
		}
		return uerror.Unhandled
	})
	inA, err := subMgr.AllocVoid(probeA)
	require.NoError(t, err)

	flow := soundFlowDef(t, urefMgr)
	require.NoError(t, inA.Control(upipe.SetFlowDef{Flow: flow}))

	// A alone: five four-sample urefs, monotonically decreasing, pass
	// straight through.
	for i := 0; i < nUrefs; i++ {
		i := i
		inA.Input(soundUref(t, urefMgr, bufMgr, 4, func(plane, j int) float32 {
			return sample + sample*float32(plane) - float32(i*4) - float32(j)
		}), nil)
		assert.Equal(t, i+1, state.count)
	}

	state.reset()

	// Input B goes live; before its flow def is set, its urefs are
	// dropped.
	inB, err := subMgr.AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)
	inB.Input(soundUref(t, urefMgr, bufMgr, 4, func(int, int) float32 { return 0 }), nil)
	assert.Zero(t, state.count)

	require.NoError(t, inB.Control(upipe.SetFlowDef{Flow: flow}))

	// Interleave: A keeps delivering its (now fading) samples in
	// two-sample urefs, B delivers the new programme in four-sample
	// urefs on a parallel, lower timeline. The fade spans 16 samples, so
	// A must hear SINK_END by the fourth round.
	for i := 0; i < nUrefs; i++ {
		i := i
		inA.Input(soundUref(t, urefMgr, bufMgr, 2, func(plane, j int) float32 {
			return sample + sample*float32(plane) - float32(i*2) - float32(j)
		}), nil)

		inB.Input(soundUref(t, urefMgr, bufMgr, 4, func(plane, j int) float32 {
			return -sample - sample*float32(plane) + 4*nUrefs - float32(i*4) - float32(j)
		}), nil)

		inA.Input(soundUref(t, urefMgr, bufMgr, 2, func(plane, j int) float32 {
			return sample + sample*float32(plane) - float32(i*2) - float32(j) - 2
		}), nil)

		if i >= 3 {
			assert.Equal(t, 1, endsA, "SINK_END once the fade completed")
		} else {
			assert.Zero(t, endsA, "no SINK_END while still fading")
		}
		assert.Equal(t, i+1, state.count)
	}

	flow.Free()
	inB.Release()
	inA.Release()
	blend.Release()
	sink.Release()
}

// vim: foldmethod=marker
