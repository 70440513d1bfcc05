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

// Package uqueue is the thread-safe bounded queue of opaque elements that
// joins two event loops: push on one thread, pop on another, with
// level-triggered event fds on both ends so each loop sleeps until the
// other side makes progress. The queue does not own its elements.
//
// The readiness invariant both sides rely on: the push event fd is
// signalled iff a push will succeed, and the pop event fd is signalled iff
// a pop will succeed. Because the element store and the event fd cannot be
// updated as one atomic step, both Push and Pop double-check the store
// after clearing their event fd; skipping that re-check loses the wakeup
// from an operation that slipped in between the failed attempt and the
// clear, stranding the peer thread forever.
package uqueue

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upump"
)

// Policy selects the backing store. All policies are behaviour-equivalent;
// they exist as a benchmarking surface, selected per queue at construction
// time rather than through process-global configuration.
type Policy int

const (
	// Atomic backs the queue with a lock-free ring; the default.
	Atomic Policy = iota
	// Mutex backs the queue with a mutex-protected circular buffer.
	Mutex
	// MutexList backs the queue with the ping-pong pair of lists: the
	// producer appends to a carrier list under the mutex, the consumer
	// periodically swaps the whole carrier list into a private ready
	// list and pops from it without the lock.
	MutexList
)

// backend is the element store behind a Queue; push reports false when
// full, pop reports nil when empty.
type backend interface {
	push(e any) bool
	pop() any
}

// Queue is a bounded thread-safe queue of opaque elements. Allocate with
// New; the zero value is not usable.
type Queue struct {
	policy  Policy
	length  int64
	counter atomic.Int64
	store   backend

	eventPush eventFd
	eventPop  eventFd
}

// New allocates a Queue holding at most length elements, with the given
// backing policy. Both event fds are allocated up front; failure aborts
// initialization.
func New(policy Policy, length int) (*Queue, error) {
	if length <= 0 {
		return nil, fmt.Errorf("uqueue: %w: length must be positive", uerror.Invalid)
	}
	q := &Queue{policy: policy, length: int64(length)}
	switch policy {
	case Atomic:
		q.store = newRing(length)
	case Mutex:
		q.store = &mutexStore{buf: make([]any, length)}
	case MutexList:
		q.store = &pingPongStore{length: length}
	default:
		return nil, fmt.Errorf("uqueue: %w: unknown policy %d", uerror.Invalid, policy)
	}

	var err error
	// event_push starts signalled: an empty queue can always be pushed to.
	if q.eventPush, err = newEventFd(true); err != nil {
		return nil, err
	}
	if q.eventPop, err = newEventFd(false); err != nil {
		q.eventPush.close()
		return nil, err
	}
	return q, nil
}

// Push attempts to enqueue e, reporting false when the queue is full. The
// push that fills the last slot clears the push event fd, and on failure it
// is left cleared; the producer's push pump fires once a pop frees a slot.
func (q *Queue) Push(e any) bool {
	if !q.store.push(e) {
		// Signal that we are full.
		q.eventPush.clear()

		// Double-check against a pop that ran between the failed push
		// and the clear; without this, that pop's slot is invisible and
		// the producer sleeps forever (lost wakeup).
		if !q.store.push(e) {
			return false
		}

		// Signal that we're alright again.
		q.eventPush.signal()
	}
	n := q.counter.Add(1)
	if n == 1 {
		q.eventPop.signal()
	}
	if n == q.length {
		// Signal that we are full, then double-check against a pop that
		// already gave a slot back before the clear.
		q.eventPush.clear()
		if q.counter.Load() < q.length {
			q.eventPush.signal()
		}
	}
	return true
}

// Pop attempts to dequeue, reporting nil when the queue is empty. The pop
// that takes the last element clears the pop event fd, and on failure it is
// left cleared; the consumer's pop pump fires once a push adds an element.
func (q *Queue) Pop() any {
	e := q.store.pop()
	if e == nil {
		// Signal that we starve.
		q.eventPop.clear()

		// Double-check, symmetric to Push.
		e = q.store.pop()
		if e == nil {
			return nil
		}

		// Signal that we're alright again.
		q.eventPop.signal()
	}
	n := q.counter.Add(-1)
	if n == q.length-1 {
		q.eventPush.signal()
	}
	if n == 0 {
		// Signal that we drained, double-checked symmetric to Push.
		q.eventPop.clear()
		if q.counter.Load() > 0 {
			q.eventPop.signal()
		}
	}
	return e
}

// Length returns the approximate number of queued elements: a plain
// atomic load, stale the moment it returns.
func (q *Queue) Length() int {
	n := q.counter.Load()
	if n < 0 {
		n = 0
	}
	return int(n)
}

// PushFD returns the fd that polls readable whenever a push would
// succeed, for integration with a foreign event loop.
func (q *Queue) PushFD() int {
	return q.eventPush.fd
}

// PopFD returns the fd that polls readable whenever a pop would succeed.
func (q *Queue) PopFD() int {
	return q.eventPop.fd
}

// NewPushPump allocates a pump on mgr firing when there is room to push,
// the producer-side loop integration.
func (q *Queue) NewPushPump(mgr *upump.Manager, cb upump.Callback) *upump.Pump {
	return mgr.NewFdRead(q.eventPush.fd, cb)
}

// NewPopPump allocates a pump on mgr firing when there is data to pop,
// the consumer-side loop integration.
func (q *Queue) NewPopPump(mgr *upump.Manager, cb upump.Callback) *upump.Pump {
	return mgr.NewFdRead(q.eventPop.fd, cb)
}

// Clean releases the queue's event fds. The caller is responsible for
// draining the queue first; queued elements are not owned and therefore
// not freed.
func (q *Queue) Clean() error {
	return multierr.Combine(q.eventPush.close(), q.eventPop.close())
}

// mutexStore is the Mutex policy: one lock around a plain circular
// buffer.
type mutexStore struct {
	mu    sync.Mutex
	buf   []any
	head  int
	count int
}

func (s *mutexStore) push(e any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == len(s.buf) {
		return false
	}
	s.buf[(s.head+s.count)%len(s.buf)] = e
	s.count++
	return true
}

func (s *mutexStore) pop() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return nil
	}
	e := s.buf[s.head]
	s.buf[s.head] = nil
	s.head = (s.head + 1) % len(s.buf)
	s.count--
	return e
}

// pingPongStore is the MutexList policy: producers append to the carrier
// list under the lock; the consumer drains a private ready list without
// the lock and only takes the lock to swap the full carrier list in when
// ready runs dry.
//
// Invariant made explicit (the C ancestor of this policy read the shared
// list at one site without its lock): ready is touched by the consumer
// thread only, so this policy is single-consumer; readyLen is the atomic
// the producer consults for the bound, since it cannot look at ready
// itself.
type pingPongStore struct {
	length int

	mu      sync.Mutex
	carrier []any

	ready    []any
	readyLen atomic.Int64
}

func (s *pingPongStore) push(e any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(len(s.carrier))+s.readyLen.Load() >= int64(s.length) {
		return false
	}
	s.carrier = append(s.carrier, e)
	return true
}

func (s *pingPongStore) pop() any {
	if len(s.ready) == 0 {
		s.mu.Lock()
		s.ready, s.carrier = s.carrier, s.ready[:0]
		s.readyLen.Store(int64(len(s.ready)))
		s.mu.Unlock()
		if len(s.ready) == 0 {
			return nil
		}
	}
	e := s.ready[0]
	s.ready[0] = nil
	s.ready = s.ready[1:]
	s.readyLen.Add(-1)
	return e
}

// vim: foldmethod=marker
