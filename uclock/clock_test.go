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

package uclock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quarium/upipe/uclock"
)

func TestDurationRoundTrip(t *testing.T) {
	assert.Equal(t, uclock.Tick(uclock.Freq), uclock.FromDuration(time.Second))
	assert.Equal(t, uclock.Tick(uclock.Freq/2), uclock.FromDuration(time.Second/2))
	assert.Equal(t, time.Second, uclock.Tick(uclock.Freq).Duration())
}

func TestPES90kRatio(t *testing.T) {
	// A 90kHz PTS field of 1 corresponds to exactly 300 27MHz ticks.
	assert.Equal(t, uclock.Tick(300), uclock.FromPES90k(1))
	assert.Equal(t, uint64(1), uclock.FromPES90k(1).ToPES90k())

	const maxPES = (uint64(1) << 33) - 1
	assert.Equal(t, maxPES, uclock.FromPES90k(maxPES).ToPES90k())
}

func TestSystemClockMonotonic(t *testing.T) {
	c := uclock.NewSystemClock()
	t0 := c.Now()
	time.Sleep(time.Millisecond)
	t1 := c.Now()
	assert.Greater(t, int64(t1), int64(t0))
}

func TestProgramClockReference(t *testing.T) {
	c := uclock.NewProgramClock()
	c.SetReference(uclock.Tick(1000*uclock.Freq), 1.0)
	now := c.Now()
	assert.InDelta(t, int64(1000*uclock.Freq), int64(now), float64(uclock.Freq)) // within 1s slop

	// Doubling the drift rate should roughly double how fast the program
	// clock advances relative to the local clock.
	c.SetReference(0, 2.0)
	a := c.Now()
	time.Sleep(5 * time.Millisecond)
	b := c.Now()
	elapsedTicks := int64(b - a)
	assert.Greater(t, elapsedTicks, int64(uclock.FromDuration(5*time.Millisecond)))
}

// vim: foldmethod=marker
