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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// waitReadable parks the calling goroutine until e polls readable, the way
// a loop's fd-read pump would.
func waitReadable(e eventFd) {
	fds := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
	_, _ = unix.Poll(fds, 100)
}

var policies = map[string]Policy{
	"atomic":     Atomic,
	"mutex":      Mutex,
	"mutex_list": MutexList,
}

// TestQueueUnderPressure fills a queue of 8, checks the 9th push fails
// with the push fd cleared, and that one pop reopens it, against every
// backing policy.
func TestQueueUnderPressure(t *testing.T) {
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			q, err := New(policy, 8)
			require.NoError(t, err)
			defer q.Clean()

			assert.True(t, q.eventPush.readable(), "a fresh queue is pushable")
			assert.False(t, q.eventPop.readable(), "a fresh queue is not poppable")

			elems := make([]int, 9)
			for i := 0; i < 8; i++ {
				require.True(t, q.Push(&elems[i]), "push %d of 8", i+1)
				assert.True(t, q.eventPop.readable(),
					"event_pop stays readable throughout the first 8 pushes")
			}
			assert.Equal(t, 8, q.Length())

			assert.False(t, q.Push(&elems[8]), "the 9th push must fail")
			assert.False(t, q.eventPush.readable(),
				"event_push is non-readable after filling up")

			got := q.Pop()
			assert.Same(t, &elems[0], got)
			assert.True(t, q.eventPush.readable(),
				"event_push is readable again after the first pop")

			require.True(t, q.Push(&elems[8]), "a push succeeds after a pop made room")

			for i := 1; i < 9; i++ {
				require.NotNil(t, q.Pop())
			}
			assert.Nil(t, q.Pop())
			assert.False(t, q.eventPop.readable(),
				"event_pop is non-readable once drained")
			assert.Equal(t, 0, q.Length())
		})
	}
}

func TestQueueFifoOrder(t *testing.T) {
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			q, err := New(policy, 4)
			require.NoError(t, err)
			defer q.Clean()

			vals := []int{10, 20, 30}
			for i := range vals {
				require.True(t, q.Push(&vals[i]))
			}
			for i := range vals {
				assert.Same(t, &vals[i], q.Pop())
			}
		})
	}
}

// TestQueueNoLostWakeup checks that across an adversarial
// interleaving of pushes and pops from two threads, every element makes it
// through, and the producer parked on event_push always gets woken once a
// slot frees. The producer only retries after observing event_push
// readable, so a lost wakeup would deadlock the test (and trip the
// timeout) rather than silently pass.
func TestQueueNoLostWakeup(t *testing.T) {
	const total = 10000
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			q, err := New(policy, 4)
			require.NoError(t, err)
			defer q.Clean()

			elems := make([]int, total)
			for i := range elems {
				elems[i] = i
			}

			var wg sync.WaitGroup
			wg.Add(2)

			go func() {
				defer wg.Done()
				for i := 0; i < total; i++ {
					for !q.Push(&elems[i]) {
						// Park until event_push says there is room, the
						// same way a producer-side pump would.
						waitReadable(q.eventPush)
					}
				}
			}()

			var got []int
			go func() {
				defer wg.Done()
				for len(got) < total {
					e := q.Pop()
					if e == nil {
						waitReadable(q.eventPop)
						continue
					}
					got = append(got, *(e.(*int)))
				}
			}()

			wg.Wait()
			require.Len(t, got, total)
			for i, v := range got {
				assert.Equal(t, i, v, "element order broken at %d", i)
			}
		})
	}
}

// vim: foldmethod=marker
