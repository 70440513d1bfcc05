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

// Package crossblend fades between audio sources without a gap: each
// source connects to its own input sub-pipe, the newest input is always
// the live one, and for a configurable period the previous input's
// samples are linearly mixed under the new input's. Once the fade
// completes, the losing input hears SINK_END and can be torn down. It is
// a worked example of the sub-pipe pattern: the super pipe owns the
// output, the sub-pipes own the queues, and everything meets in the
// blend.
package crossblend

import (
	"fmt"

	"github.com/quarium/upipe/ubuf"
	"github.com/quarium/upipe/uclock"
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/upipe/subpipe"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
)

// Signature identifies the cross-blend super pipe kind; SubSignature its
// input sub-pipes.
var (
	Signature    = upipe.FourCC('x', 'b', 'l', 'd')
	SubSignature = upipe.FourCC('x', 'b', 'l', 'i')
)

// DefaultPeriod is the fade duration when none is configured.
const DefaultPeriod = uclock.Tick(uclock.Freq / 5)

// SetDuration configures the fade period. It is the pipe-private command
// of the cross-blend kind.
type SetDuration struct {
	upipe.PrivateCommand
	Period uclock.Tick
}

// Signature implements upipe.LocalCommand.
func (SetDuration) Signature() uint32 { return Signature }

// NewMgr returns a manager allocating cross-blend super pipes. Inputs are
// allocated from the super's sub manager (GetSubMgr), one per source, in
// the order the sources go live.
func NewMgr() *upipe.Manager {
	return upipe.NewManager(Signature, "xblend", func(p *upipe.Pipe, _ *uref.Uref) (upipe.Impl, error) {
		s := &super{pipe: p, period: DefaultPeriod}
		s.out.InitOutput(p)
		s.children.InitChildren(p, s.newSubMgr())
		return s, nil
	})
}

// super is the facade: it owns the output and the current/previous input
// designation.
type super struct {
	pipe     *upipe.Pipe
	out      upipe.OutputHelper
	children subpipe.Children

	current  *input
	previous *input

	// crossblend ramps 0 to 1 over the fade; step is its per-sample
	// increment, derived from the flow rate and the period.
	crossblend float64
	step       float64
	period     uclock.Tick
}

// Control implements upipe.Impl.
func (s *super) Control(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case SetDuration:
		if c.Period <= 0 {
			return uerror.Invalid
		}
		s.period = c.Period
		if flow := s.out.FlowDef(); flow != nil {
			if rate, ok := flow.SoundRate(); ok && rate != 0 {
				s.step = float64(uclock.Freq) / float64(rate) / float64(s.period)
			}
		}
		return nil
	}
	if err := s.children.ControlSuper(cmd); err != uerror.Unhandled {
		return err
	}
	return s.out.ControlOutput(cmd)
}

// NoRef implements upipe.Impl.
func (s *super) NoRef() {
	s.pipe.ReleaseInternal()
}

// Free implements upipe.Impl.
func (s *super) Free() {
	s.children.CleanChildren()
	s.out.CleanOutput()
}

// newSubMgr builds the manager the application allocates input sub-pipes
// from. Allocating an input makes it the live one: the old live input
// starts fading out, and whatever was already fading is cut off with
// SINK_END.
func (s *super) newSubMgr() *upipe.Manager {
	return upipe.NewManager(SubSignature, "xblend in", func(p *upipe.Pipe, _ *uref.Uref) (upipe.Impl, error) {
		in := &input{pipe: p, super: s}
		in.sub.InitSub(p, &s.children)

		displaced := s.previous
		s.previous = s.current
		s.current = in
		s.crossblend = 0

		if displaced != nil {
			displaced.pipe.ThrowSinkEnd()
		}
		if s.previous != nil {
			p.ThrowLog(uprobe.LogDebug, "start crossblending")
		}
		return in, nil
	})
}

// input is one source's sub-pipe; urefs it cannot process yet (the live
// input waiting for fade material, the fading input's backlog) stay in
// held, in arrival order.
type input struct {
	pipe  *upipe.Pipe
	super *super
	sub   subpipe.Sub

	flowDef *uref.Uref
	held    []*uref.Uref
}

// Control implements upipe.Impl.
func (in *input) Control(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.SetFlowDef:
		return in.setFlowDef(c.Flow)
	case upipe.GetFlowDef:
		*c.Flow = in.flowDef
		return nil
	}
	return in.sub.ControlSub(cmd)
}

func (in *input) setFlowDef(flow *uref.Uref) error {
	s := in.super
	if !flow.MatchDef(uref.FlowSoundF32) {
		return uerror.Invalid
	}
	rate, ok := flow.SoundRate()
	if !ok || rate == 0 {
		return uerror.Invalid
	}
	if cur := s.out.FlowDef(); cur != nil {
		curRate, _ := cur.SoundRate()
		curCh, _ := cur.SoundChannels()
		ch, _ := flow.SoundChannels()
		if curRate != rate || curCh != ch {
			in.pipe.ThrowLog(uprobe.LogWarning, "crossblend does not support flow def changes")
			return uerror.Invalid
		}
	}

	if in.flowDef != nil {
		in.flowDef.Free()
	}
	in.flowDef = flow.Dup()
	s.step = float64(uclock.Freq) / float64(rate) / float64(s.period)

	if s.current == in {
		s.out.StoreFlowDef(flow.Dup())
	}
	return nil
}

// NoRef implements upipe.Impl.
func (in *input) NoRef() {
	s := in.super
	if s.current == in {
		previous := s.previous
		s.current = nil
		s.previous = nil
		if previous != nil {
			previous.pipe.ThrowSinkEnd()
		}
	} else if s.previous == in {
		s.previous = nil
	}
	in.sub.CleanSub()
	in.pipe.ReleaseInternal()
}

// Free implements upipe.Impl.
func (in *input) Free() {
	if in.flowDef != nil {
		in.flowDef.Free()
	}
	for _, u := range in.held {
		u.Free()
	}
	in.held = nil
}

// Input implements upipe.Inputer. The live input processes (or queues, if
// the fading input is short of material); the fading input only queues,
// then prods the live side to retry; any deposed input's urefs are
// discarded.
func (in *input) Input(u *uref.Uref, pump *upump.Pump) {
	s := in.super
	switch in {
	case s.current:
		if len(in.held) > 0 || !in.process(u, pump) {
			in.held = append(in.held, u)
		}
	case s.previous:
		in.held = append(in.held, u)
		if s.current != nil {
			s.current.replay(pump)
		}
	default:
		u.Free()
	}
}

// replay retries the live input's queued urefs after the fading input
// delivered more material.
func (in *input) replay(pump *upump.Pump) {
	for len(in.held) > 0 {
		u := in.held[0]
		if !in.process(u, pump) {
			return
		}
		in.held = in.held[1:]
	}
}

// pop takes the head of the fading input's queue.
func (in *input) pop() *uref.Uref {
	if len(in.held) == 0 {
		return nil
	}
	u := in.held[0]
	in.held = in.held[1:]
	return u
}

// unshift puts a partially consumed uref back at the head.
func (in *input) unshift(u *uref.Uref) {
	in.held = append([]*uref.Uref{u}, in.held...)
}

// availableFor reports whether the fading input holds enough samples to
// blend a live buffer of size frames, or enough to finish the fade.
func (in *input) availableFor(size int) bool {
	s := in.super
	available := 0
	crossblend := s.crossblend
	for _, u := range in.held {
		if crossblend >= 1 || available >= size {
			break
		}
		snd := u.Sound()
		if snd == nil {
			continue
		}
		available += snd.Samples()
		crossblend += float64(snd.Samples()) * s.step
	}
	return crossblend >= 1 || available >= size
}

// process blends (if a fade is in progress) and outputs one live uref. It
// reports false when the fading input is short of material and the uref
// must wait.
func (in *input) process(u *uref.Uref, pump *upump.Pump) bool {
	s := in.super

	if in.flowDef == nil {
		in.pipe.ThrowLog(uprobe.LogWarning, "no input flow format set")
		u.Free()
		return true
	}
	if s.out.FlowDef() == nil {
		in.pipe.ThrowLog(uprobe.LogWarning, "no output flow format set")
		u.Free()
		return true
	}
	if s.previous == nil {
		s.out.Send(u, pump)
		return true
	}

	snd := u.Sound()
	if snd == nil {
		in.pipe.ThrowLog(uprobe.LogWarning, "invalid sound buffer")
		u.Free()
		return true
	}
	size := snd.Samples()
	if !s.previous.availableFor(size) {
		return false
	}

	if err := s.blend(snd, size); err != nil {
		in.pipe.ThrowFatal(err)
		u.Free()
		return true
	}

	if s.crossblend >= 1 {
		s.previous.pipe.ThrowSinkEnd()
		s.previous = nil
	}
	s.out.Send(u, pump)
	return true
}

// blend mixes the fading input's samples under the live buffer, advancing
// the crossblend ramp one sample at a time: out = live*ramp + old*(1-ramp).
func (s *super) blend(snd *ubuf.Sound, size int) error {
	planes := snd.Channels()

	dst := make(map[string][]float32, len(planes))
	for _, plane := range planes {
		samples, err := snd.ReadF32(plane)
		if err != nil {
			return err
		}
		dst[plane] = samples
	}

	offset := 0
	for size > 0 && s.crossblend < 1 {
		prev := s.previous.pop()
		if prev == nil {
			return fmt.Errorf("crossblend: %w: fade material vanished", uerror.Invalid)
		}
		prevSnd := prev.Sound()
		if prevSnd == nil {
			prev.Free()
			continue
		}
		available := prevSnd.Samples()
		extract := available
		if extract > size {
			extract = size
		}
		for _, plane := range planes {
			src, err := prevSnd.ReadF32(plane)
			if err != nil {
				prev.Free()
				return err
			}
			crossblend := s.crossblend
			for i := 0; i < extract && crossblend < 1; i++ {
				dst[plane][offset+i] = dst[plane][offset+i]*float32(crossblend) +
					src[i]*float32(1-crossblend)
				crossblend += s.step
			}
		}
		s.crossblend += float64(extract) * s.step
		offset += extract
		size -= extract

		if extract < available {
			if err := prevSnd.Advance(extract); err != nil {
				prev.Free()
				return err
			}
			s.previous.unshift(prev)
		} else {
			prev.Free()
		}
	}

	for _, plane := range planes {
		if err := snd.WriteF32(plane, dst[plane]); err != nil {
			return err
		}
	}
	return nil
}

// vim: foldmethod=marker
