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

// Package upump is the cooperative event loop pipes are scheduled on.
//
// A Manager owns one loop, and every pump allocated on it (fd readability
// and writability, timers, idlers, POSIX signals) fires its callback on the
// single goroutine running that loop. Cross-thread interaction never goes
// through a Manager directly; it goes through a uqueue whose event fd is
// watched by an FdRead pump on the receiving loop.
//
// The loop itself is a level-triggered poll(2) wrapper: each iteration
// rebuilds the watched fd set from the started pumps, computes the poll
// timeout from the nearest timer deadline (zero when idlers are armed),
// and dispatches whatever fired.
package upump

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/quarium/upipe/uerror"
)

// Manager runs one cooperative event loop. All methods except Wake and
// Abort must be called on the goroutine that runs (or will run) the loop;
// a Manager is deliberately not safe for concurrent pump manipulation,
// matching the one-loop-one-thread scheduling model.
type Manager struct {
	pumps   []*Pump
	started int

	// wakeFd is written by Wake/Abort from other goroutines to interrupt
	// a poll in progress.
	wakeFd  int
	aborted atomic.Bool

	sigCh         chan os.Signal
	sigMu         sync.Mutex
	sigPending    []int
	sigForwarding bool

	running bool
}

// NewManager returns a Manager ready to allocate pumps. Run must be called
// on the goroutine that will own the loop.
func NewManager() (*Manager, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("upump: %w: eventfd: %v", uerror.Upump, err)
	}
	return &Manager{
		wakeFd: fd,
		sigCh:  make(chan os.Signal, 16),
	}, nil
}

// Close releases the Manager's internal resources. Every pump must have
// been freed first, and the loop must not be running.
func (m *Manager) Close() error {
	if m.sigForwarding {
		signal.Stop(m.sigCh)
		close(m.sigCh)
	}
	return unix.Close(m.wakeFd)
}

// NewFdRead allocates a pump firing cb whenever fd is readable.
func (m *Manager) NewFdRead(fd int, cb Callback) *Pump {
	p := &Pump{mgr: m, kind: FdRead, fd: fd, cb: cb}
	m.pumps = append(m.pumps, p)
	return p
}

// NewFdWrite allocates a pump firing cb whenever fd is writable.
func (m *Manager) NewFdWrite(fd int, cb Callback) *Pump {
	p := &Pump{mgr: m, kind: FdWrite, fd: fd, cb: cb}
	m.pumps = append(m.pumps, p)
	return p
}

// NewTimer allocates a pump firing cb once after delay, then every repeat
// interval if repeat is non-zero.
func (m *Manager) NewTimer(delay, repeat time.Duration, cb Callback) *Pump {
	p := &Pump{mgr: m, kind: Timer, after: delay, repeat: repeat, cb: cb}
	m.pumps = append(m.pumps, p)
	return p
}

// NewIdler allocates a pump firing cb whenever the loop has no fd or timer
// activity to dispatch.
func (m *Manager) NewIdler(cb Callback) *Pump {
	p := &Pump{mgr: m, kind: Idler, cb: cb}
	m.pumps = append(m.pumps, p)
	return p
}

// NewSignal allocates a pump firing cb when sig is delivered to the
// process.
func (m *Manager) NewSignal(sig syscall.Signal, cb Callback) *Pump {
	p := &Pump{mgr: m, kind: Signal, sig: int(sig), cb: cb}
	m.pumps = append(m.pumps, p)
	signal.Notify(m.sigCh, sig)
	if !m.sigForwarding {
		m.sigForwarding = true
		go m.forwardSignals()
	}
	return p
}

// forwardSignals turns delivered signals into pending entries plus a
// wakeup, so a blocked poll notices them. It exits when Close closes the
// channel.
func (m *Manager) forwardSignals() {
	for sig := range m.sigCh {
		num := 0
		if s, ok := sig.(syscall.Signal); ok {
			num = int(s)
		}
		m.sigMu.Lock()
		m.sigPending = append(m.sigPending, num)
		m.sigMu.Unlock()
		m.Wake()
	}
}

// remove drops p from the pump list.
func (m *Manager) remove(p *Pump) {
	for i, q := range m.pumps {
		if q == p {
			m.pumps = append(m.pumps[:i], m.pumps[i+1:]...)
			return
		}
	}
}

// Wake interrupts a poll in progress. Along with Abort, it is safe to call
// from any goroutine, used by queues to prod a sleeping consumer loop.
func (m *Manager) Wake() {
	// eventfd counters are host-order 64-bit; on every supported platform
	// that is little-endian.
	buf := [8]byte{1}
	_, _ = unix.Write(m.wakeFd, buf[:])
}

// Abort asks a running loop to return as soon as the current dispatch
// finishes, regardless of remaining started pumps. Safe from any goroutine.
func (m *Manager) Abort() {
	m.aborted.Store(true)
	m.Wake()
}

// Run executes the loop on the calling goroutine. It returns when no
// started pump remains, or when Abort is called. Calling Run concurrently
// with itself is undefined.
func (m *Manager) Run() {
	m.running = true
	defer func() { m.running = false }()

	for !m.aborted.Load() && m.started > 0 {
		m.iterate()
	}
	m.aborted.Store(false)
}

// iterate performs one poll-and-dispatch cycle.
func (m *Manager) iterate() {
	fds := make([]unix.PollFd, 0, len(m.pumps)+1)
	fds = append(fds, unix.PollFd{Fd: int32(m.wakeFd), Events: unix.POLLIN})
	polled := make([]*Pump, 0, len(m.pumps))

	haveIdler := false
	var nextDeadline time.Time
	for _, p := range m.pumps {
		if !p.started {
			continue
		}
		switch p.kind {
		case FdRead:
			fds = append(fds, unix.PollFd{Fd: int32(p.fd), Events: unix.POLLIN})
			polled = append(polled, p)
		case FdWrite:
			fds = append(fds, unix.PollFd{Fd: int32(p.fd), Events: unix.POLLOUT})
			polled = append(polled, p)
		case Timer:
			if nextDeadline.IsZero() || p.deadline.Before(nextDeadline) {
				nextDeadline = p.deadline
			}
		case Idler:
			haveIdler = true
		}
	}

	timeout := -1
	switch {
	case haveIdler:
		timeout = 0
	case !nextDeadline.IsZero():
		d := time.Until(nextDeadline)
		if d < 0 {
			d = 0
		}
		// Round up so we never wake a hair before the deadline and spin.
		timeout = int((d + time.Millisecond - 1) / time.Millisecond)
	}

	n, err := unix.Poll(fds, timeout)
	if err != nil {
		// EINTR and transient poll failures alike: retry on the next
		// iteration rather than dispatch from a garbage revents set.
		return
	}

	// Drain the wake eventfd; Abort is checked by Run's loop condition.
	if fds[0].Revents&unix.POLLIN != 0 {
		var buf [8]byte
		_, _ = unix.Read(m.wakeFd, buf[:])
		m.dispatchSignals()
	}

	dispatched := false
	for i, p := range polled {
		re := fds[i+1].Revents
		if re&(unix.POLLIN|unix.POLLOUT|unix.POLLERR|unix.POLLHUP) == 0 {
			continue
		}
		dispatched = true
		m.dispatch(p)
	}

	now := time.Now()
	for _, p := range m.snapshotStarted(Timer) {
		if p.deadline.After(now) {
			continue
		}
		dispatched = true
		if p.repeat > 0 {
			p.deadline = now.Add(p.repeat)
		} else {
			p.Stop()
		}
		m.dispatch(p)
	}

	if !dispatched && n == 0 {
		for _, p := range m.snapshotStarted(Idler) {
			m.dispatch(p)
		}
	}
}

// snapshotStarted copies the started pumps of one kind, so dispatch
// callbacks may freely start, stop or free pumps without corrupting the
// iteration.
func (m *Manager) snapshotStarted(kind Kind) []*Pump {
	var out []*Pump
	for _, p := range m.pumps {
		if p.started && p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// dispatchSignals delivers any pending POSIX signals to their pumps.
func (m *Manager) dispatchSignals() {
	m.sigMu.Lock()
	pending := m.sigPending
	m.sigPending = nil
	m.sigMu.Unlock()
	for _, num := range pending {
		for _, p := range m.snapshotStarted(Signal) {
			if p.sig == num {
				m.dispatch(p)
			}
		}
	}
}

// dispatch runs one pump callback, holding the pump owner's refcount
// across the call.
func (m *Manager) dispatch(p *Pump) {
	if p.freed || (p.kind != Timer && !p.started) {
		return
	}
	if p.rc != nil {
		p.rc.Use()
		defer p.rc.Release()
	}
	p.cb(p)
}

// vim: foldmethod=marker
