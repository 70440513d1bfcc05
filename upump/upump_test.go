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

package upump_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/urefcount"
)

func TestTimerOneShot(t *testing.T) {
	mgr, err := upump.NewManager()
	require.NoError(t, err)
	defer mgr.Close()

	fired := 0
	pump := mgr.NewTimer(time.Millisecond, 0, func(p *upump.Pump) {
		fired++
	})
	pump.Start()

	// Run returns once the one-shot timer has fired and auto-stopped,
	// leaving no started pumps.
	mgr.Run()
	assert.Equal(t, 1, fired)
	pump.Free()
}

func TestTimerPeriodic(t *testing.T) {
	mgr, err := upump.NewManager()
	require.NoError(t, err)
	defer mgr.Close()

	fired := 0
	var pump *upump.Pump
	pump = mgr.NewTimer(time.Millisecond, time.Millisecond, func(p *upump.Pump) {
		fired++
		if fired == 3 {
			pump.Free()
		}
	})
	pump.Start()

	mgr.Run()
	assert.Equal(t, 3, fired)
}

func TestFdReadPump(t *testing.T) {
	mgr, err := upump.NewManager()
	require.NoError(t, err)
	defer mgr.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var got []byte
	var pump *upump.Pump
	pump = mgr.NewFdRead(fds[0], func(p *upump.Pump) {
		buf := make([]byte, 16)
		n, err := unix.Read(fds[0], buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
		pump.Free()
	})
	pump.Start()

	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	mgr.Run()
	assert.Equal(t, []byte("ping"), got)
}

func TestIdlerFiresWhenQuiet(t *testing.T) {
	mgr, err := upump.NewManager()
	require.NoError(t, err)
	defer mgr.Close()

	fired := 0
	var idler *upump.Pump
	idler = mgr.NewIdler(func(p *upump.Pump) {
		fired++
		idler.Free()
	})
	idler.Start()

	mgr.Run()
	assert.Equal(t, 1, fired)
}

func TestPumpHoldsOwnerRefCount(t *testing.T) {
	mgr, err := upump.NewManager()
	require.NoError(t, err)
	defer mgr.Close()

	released := false
	rc := urefcount.New(func() { released = true })

	var pump *upump.Pump
	pump = mgr.NewTimer(time.Millisecond, 0, func(p *upump.Pump) {
		// The owner releases its own last reference from inside the
		// callback; the pump's held reference must keep it alive until
		// the callback unwinds.
		rc.Release()
		assert.False(t, released, "owner freed while its callback is still running")
		pump.Free()
	})
	pump.SetRefCount(rc)
	pump.Start()

	mgr.Run()
	assert.True(t, released, "owner must be freed once the dispatch is over")
}

func TestAbortFromAnotherGoroutine(t *testing.T) {
	mgr, err := upump.NewManager()
	require.NoError(t, err)
	defer mgr.Close()

	// A pump that would keep the loop alive forever.
	pump := mgr.NewTimer(time.Hour, 0, func(p *upump.Pump) {})
	pump.Start()

	done := make(chan struct{})
	go func() {
		mgr.Run()
		close(done)
	}()

	mgr.Abort()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Abort did not stop the loop")
	}
	pump.Free()
}

// vim: foldmethod=marker
