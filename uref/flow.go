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

package uref

import (
	"fmt"
	"strings"

	"github.com/quarium/upipe/udict"
	"github.com/quarium/upipe/uerror"
)

// Published flow definition prefixes. Every published level ends in a dot;
// MatchDef tests against these with plain prefix semantics.
const (
	FlowBlock         = "block."
	FlowBlockTS       = "block.mpegts."
	FlowBlockTSPSI    = "block.mpegtspsi."
	FlowBlockTSPES    = "block.mpegtspes."
	FlowBlockSoundS16 = "block.sound.s16."
	FlowPic           = "pic."
	FlowSound         = "sound."
	FlowSoundF32      = "sound.f32."
	FlowVoid          = "void."
)

// FlowDef returns the hierarchical flow definition string, if set.
func (u *Uref) FlowDef() (string, bool) {
	return u.dict.GetString("flow.def")
}

// SetFlowDef sets the flow definition string. Every published level must
// end in a dot; a definition missing its terminator is rejected so a
// prefix match can never span a level boundary.
func (u *Uref) SetFlowDef(def string) error {
	if def == "" || !strings.HasSuffix(def, ".") {
		return fmt.Errorf("uref: %w: flow def %q must end in '.'", uerror.Invalid, def)
	}
	return u.dict.SetString("flow.def", def)
}

// MatchDef reports whether u's flow definition begins with prefix. It is
// false when no flow definition is set.
func (u *Uref) MatchDef(prefix string) bool {
	def, ok := u.FlowDef()
	if !ok {
		return false
	}
	return strings.HasPrefix(def, prefix)
}

// FlowID returns the numeric flow identifier, if set. Demuxers use it to
// tell sibling elementary streams of one program apart.
func (u *Uref) FlowID() (uint64, bool) {
	return u.dict.GetUnsigned("flow.id")
}

// SetFlowID sets the numeric flow identifier.
func (u *Uref) SetFlowID(id uint64) error {
	return u.dict.SetUnsigned("flow.id", id)
}

// FlowRawDef returns the original (pre-amendment) flow definition, if set.
func (u *Uref) FlowRawDef() (string, bool) {
	return u.dict.GetString("flow.rawdef")
}

// SetFlowRawDef records the original flow definition before a pipe amended
// it.
func (u *Uref) SetFlowRawDef(def string) error {
	return u.dict.SetString("flow.rawdef", def)
}

// FlowLatency returns the accumulated pipeline latency announced so far on
// this flow, if set.
func (u *Uref) FlowLatency() (uint64, bool) {
	return u.dict.GetUnsigned("flow.latency")
}

// SetFlowLatency sets the accumulated pipeline latency.
func (u *Uref) SetFlowLatency(latency uint64) error {
	return u.dict.SetUnsigned("flow.latency", latency)
}

// SoundRate returns the sound flow's sample rate, if set.
func (u *Uref) SoundRate() (uint64, bool) {
	return u.dict.GetUnsigned("sound.rate")
}

// SetSoundRate sets the sound flow's sample rate.
func (u *Uref) SetSoundRate(rate uint64) error {
	return u.dict.SetUnsigned("sound.rate", rate)
}

// SoundChannels returns the sound flow's channel count, if set.
func (u *Uref) SoundChannels() (uint64, bool) {
	return u.dict.GetUnsigned("sound.channels")
}

// SetSoundChannels sets the sound flow's channel count.
func (u *Uref) SetSoundChannels(channels uint64) error {
	return u.dict.SetUnsigned("sound.channels", channels)
}

// SoundSamples returns the nominal samples-per-uref of the sound flow, if
// set.
func (u *Uref) SoundSamples() (uint64, bool) {
	return u.dict.GetUnsigned("sound.samples")
}

// SetSoundSamples sets the nominal samples-per-uref of the sound flow.
func (u *Uref) SetSoundSamples(samples uint64) error {
	return u.dict.SetUnsigned("sound.samples", samples)
}

// PicWidth returns the picture flow's horizontal size in pixels, if set.
func (u *Uref) PicWidth() (uint64, bool) {
	return u.dict.GetUnsigned("pic.hsize")
}

// SetPicWidth sets the picture flow's horizontal size.
func (u *Uref) SetPicWidth(hsize uint64) error {
	return u.dict.SetUnsigned("pic.hsize", hsize)
}

// PicHeight returns the picture flow's vertical size in pixels, if set.
func (u *Uref) PicHeight() (uint64, bool) {
	return u.dict.GetUnsigned("pic.vsize")
}

// SetPicHeight sets the picture flow's vertical size.
func (u *Uref) SetPicHeight(vsize uint64) error {
	return u.dict.SetUnsigned("pic.vsize", vsize)
}

// PicFps returns the picture flow's frame rate as a rational, if set.
func (u *Uref) PicFps() (udict.Rational, bool) {
	return u.dict.GetRational("pic.fps")
}

// SetPicFps sets the picture flow's frame rate.
func (u *Uref) SetPicFps(fps udict.Rational) error {
	return u.dict.SetRational("pic.fps", fps)
}

// PicSar returns the picture flow's sample aspect ratio, if set.
func (u *Uref) PicSar() (udict.Rational, bool) {
	return u.dict.GetRational("pic.sar")
}

// SetPicSar sets the picture flow's sample aspect ratio.
func (u *Uref) SetPicSar(sar udict.Rational) error {
	return u.dict.SetRational("pic.sar", sar)
}

// vim: foldmethod=marker
