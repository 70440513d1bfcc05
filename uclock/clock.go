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

// Package uclock provides the timestamp type every uref carries and the
// clock sources that produce it.
//
// Timestamps run on a 27MHz tick, matching the grid MPEG-TS programs are
// clocked on (and the ratio PES PTS/DTS fields, clocked at 90kHz, convert
// against: one 90kHz tick is exactly 300 ticks of this clock). Using a
// single fixed-frequency integer tick rather than time.Duration everywhere
// keeps every pipe's arithmetic exact instead of accumulating the rounding
// error repeated Duration conversions would introduce.
package uclock

import "time"

// Freq is the number of Ticks per second.
const Freq = 27000000

// Tick is a point in time, or a duration, expressed as a count of 1/27MHz
// intervals. Tick(0) has no absolute meaning on its own; it is only
// meaningful relative to a particular Clock's epoch.
type Tick int64

// FromDuration converts a time.Duration to a Tick, truncating toward zero.
func FromDuration(d time.Duration) Tick {
	sec, rem := d/time.Second, d%time.Second
	return Tick(int64(sec)*Freq + int64(rem)*Freq/int64(time.Second))
}

// Duration converts a Tick back to a time.Duration, truncating toward zero.
func (t Tick) Duration() time.Duration {
	sec, rem := int64(t)/Freq, int64(t)%Freq
	return time.Duration(sec)*time.Second + time.Duration(rem*int64(time.Second)/Freq)
}

// FromPES90k converts a 33-bit, 90kHz-clocked PES PTS/DTS field to a Tick,
// applying the fixed 300x ratio between the 90kHz presentation clock and
// the 27MHz system clock.
func FromPES90k(v uint64) Tick {
	return Tick(v * 300)
}

// ToPES90k converts a Tick back to the 33-bit, 90kHz PES representation,
// wrapping at 2^33 the way the MPEG-TS PTS/DTS fields do.
func (t Tick) ToPES90k() uint64 {
	const mask33 = (uint64(1) << 33) - 1
	return uint64(t/300) & mask33
}

// Clock is a source of the current time, expressed as a Tick against some
// implementation-defined epoch. Pipes obtain a Clock through a
// NeedUclock request (urequest.Uclock), never by calling a global function,
// so that recorded streams can be clocked against a synthetic source in
// tests.
type Clock interface {
	// Now returns the current time.
	Now() Tick
}

// SystemClock is a Clock driven by the host's monotonic clock, with an
// arbitrary but stable epoch fixed at construction time.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock returns a Clock whose Now() tracks the host's monotonic
// clock, with Tick(0) corresponding to the moment of this call.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Now implements Clock.
func (c *SystemClock) Now() Tick {
	return FromDuration(time.Since(c.epoch))
}

// ProgramClock is a Clock whose epoch and rate can be adjusted to track a
// remote program clock reference (PCR), the way a demuxer recovers the
// sender's wall clock from periodic PCR samples rather than trusting the
// local host clock.
type ProgramClock struct {
	base  SystemClock
	epoch Tick // the PCR-domain value corresponding to base's Tick(0)
	drift float64
}

// NewProgramClock returns a ProgramClock initially tracking the system
// clock one-for-one (zero offset, unity drift).
func NewProgramClock() *ProgramClock {
	return &ProgramClock{base: *NewSystemClock(), drift: 1.0}
}

// Now implements Clock, mapping the local monotonic time into the PCR
// domain via the last-set offset and drift rate.
func (c *ProgramClock) Now() Tick {
	local := c.base.Now()
	return c.epoch + Tick(float64(local)*c.drift)
}

// SetReference resamples the clock: at the moment this is called, the
// program clock's value is pcr, and it is running at rate (1.0 = real
// time) relative to the local monotonic clock. This is how a pipe that
// just decoded a fresh PCR sample corrects for sender/receiver clock
// skew.
func (c *ProgramClock) SetReference(pcr Tick, rate float64) {
	local := c.base.Now()
	c.epoch = pcr - Tick(float64(local)*rate)
	c.drift = rate
}

// vim: foldmethod=marker
