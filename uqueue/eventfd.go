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

package uqueue

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/quarium/upipe/uerror"
)

// eventFd is a level-triggered readiness flag observable from another
// thread's event loop: signalled means the fd polls readable. The kernel
// eventfd counter accumulates signals; clear drains the whole counter in
// one read, so signal/clear pairs need not balance.
type eventFd struct {
	fd int
}

func newEventFd(signalled bool) (eventFd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return eventFd{fd: -1}, fmt.Errorf("uqueue: %w: eventfd: %v", uerror.External, err)
	}
	e := eventFd{fd: fd}
	if signalled {
		e.signal()
	}
	return e, nil
}

// signal makes the fd readable.
func (e eventFd) signal() {
	buf := [8]byte{1}
	_, _ = unix.Write(e.fd, buf[:])
}

// clear makes the fd non-readable.
func (e eventFd) clear() {
	var buf [8]byte
	_, _ = unix.Read(e.fd, buf[:])
}

// readable polls the current state without blocking or consuming it.
func (e eventFd) readable() bool {
	fds := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	return err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0
}

func (e eventFd) close() error {
	if e.fd < 0 {
		return nil
	}
	if err := unix.Close(e.fd); err != nil {
		return fmt.Errorf("uqueue: %w: close eventfd: %v", uerror.External, err)
	}
	return nil
}

// vim: foldmethod=marker
