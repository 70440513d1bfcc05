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

import "github.com/quarium/upipe/uclock"

// clockField indexes one of the directly embedded timestamps.
type clockField int

const (
	fieldCr clockField = iota
	fieldPtsOrig
	fieldPtsProg
	fieldPtsSys
	fieldDtsOrig
	fieldDtsProg
	fieldDtsSys
	fieldDuration
	numClockFields
)

// Clock is the set of directly embedded timestamps every Uref carries: the
// clock reference, the presentation timestamp in each of the three time
// domains (original/sender, program, local system), the decoding timestamp
// likewise, the duration, and the drift rate between the original and local
// clocks. Fields are individually optional; an unset field has no value
// rather than a zero one.
type Clock struct {
	val   [numClockFields]uclock.Tick
	valid uint8
	// DriftRate is the original-to-system clock ratio recovered from PCR
	// samples; 1.0 when unset or when the clocks run in lockstep.
	drift float64
}

func (c *Clock) init() {
	*c = Clock{drift: 1.0}
}

func (c *Clock) get(f clockField) (uclock.Tick, bool) {
	if c.valid&(1<<f) == 0 {
		return 0, false
	}
	return c.val[f], true
}

func (c *Clock) set(f clockField, t uclock.Tick) {
	c.val[f] = t
	c.valid |= 1 << f
}

func (c *Clock) clear(f clockField) {
	c.valid &^= 1 << f
}

// Cr returns the clock reference (PCR domain), if set.
func (u *Uref) Cr() (uclock.Tick, bool) { return u.clock.get(fieldCr) }

// SetCr sets the clock reference.
func (u *Uref) SetCr(t uclock.Tick) { u.clock.set(fieldCr, t) }

// PtsOrig returns the presentation timestamp in the sender's clock domain.
func (u *Uref) PtsOrig() (uclock.Tick, bool) { return u.clock.get(fieldPtsOrig) }

// SetPtsOrig sets the presentation timestamp in the sender's clock domain.
func (u *Uref) SetPtsOrig(t uclock.Tick) { u.clock.set(fieldPtsOrig, t) }

// PtsProg returns the presentation timestamp in the program clock domain.
func (u *Uref) PtsProg() (uclock.Tick, bool) { return u.clock.get(fieldPtsProg) }

// SetPtsProg sets the presentation timestamp in the program clock domain.
func (u *Uref) SetPtsProg(t uclock.Tick) { u.clock.set(fieldPtsProg, t) }

// PtsSys returns the presentation timestamp in the local system clock
// domain.
func (u *Uref) PtsSys() (uclock.Tick, bool) { return u.clock.get(fieldPtsSys) }

// SetPtsSys sets the presentation timestamp in the local system clock
// domain.
func (u *Uref) SetPtsSys(t uclock.Tick) { u.clock.set(fieldPtsSys, t) }

// DtsOrig returns the decoding timestamp in the sender's clock domain.
func (u *Uref) DtsOrig() (uclock.Tick, bool) { return u.clock.get(fieldDtsOrig) }

// SetDtsOrig sets the decoding timestamp in the sender's clock domain.
func (u *Uref) SetDtsOrig(t uclock.Tick) { u.clock.set(fieldDtsOrig, t) }

// DtsProg returns the decoding timestamp in the program clock domain.
func (u *Uref) DtsProg() (uclock.Tick, bool) { return u.clock.get(fieldDtsProg) }

// SetDtsProg sets the decoding timestamp in the program clock domain.
func (u *Uref) SetDtsProg(t uclock.Tick) { u.clock.set(fieldDtsProg, t) }

// DtsSys returns the decoding timestamp in the local system clock domain.
func (u *Uref) DtsSys() (uclock.Tick, bool) { return u.clock.get(fieldDtsSys) }

// SetDtsSys sets the decoding timestamp in the local system clock domain.
func (u *Uref) SetDtsSys(t uclock.Tick) { u.clock.set(fieldDtsSys, t) }

// Duration returns the duration this uref's payload covers, if set.
func (u *Uref) Duration() (uclock.Tick, bool) { return u.clock.get(fieldDuration) }

// SetDuration sets the payload duration.
func (u *Uref) SetDuration(t uclock.Tick) { u.clock.set(fieldDuration, t) }

// ClearDts clears the decoding timestamp in every domain, used when a
// reframer discovers the DTS it guessed was wrong.
func (u *Uref) ClearDts() {
	u.clock.clear(fieldDtsOrig)
	u.clock.clear(fieldDtsProg)
	u.clock.clear(fieldDtsSys)
}

// DriftRate returns the recovered original-to-system clock ratio (1.0 when
// the clocks run in lockstep).
func (u *Uref) DriftRate() float64 { return u.clock.drift }

// SetDriftRate records the recovered original-to-system clock ratio.
func (u *Uref) SetDriftRate(rate float64) { u.clock.drift = rate }

// vim: foldmethod=marker
