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

// Package ulist is an intrusive, O(1)-insert doubly-linked list.
//
// The C original (ulist.h) embeds an "uchain" link field directly in each
// structure that wants to participate in a list, and locates the owning
// structure from the link via a fixed field offset. Go has no portable
// container_of, so List instead threads prev/next through a small Node that
// the element type embeds, and gets back to it through a ListNode() method
// on the element's pointer type. A value participates in more than one list
// by embedding more than one Node and exposing more than one accessor.
package ulist

// Node is the intrusive link. Embed it (by value) in any structure that
// needs to belong to a List.
type Node[T any] struct {
	next *T
	prev *T
	self *T
}

// linked reports whether the node is currently attached to some list.
func (n *Node[T]) linked() bool {
	return n.self != nil
}

// Next returns the element following this node's element in its list, or
// nil at the tail (or when unlinked).
func (n *Node[T]) Next() *T {
	return n.next
}

// Prev returns the element preceding this node's element in its list, or
// nil at the head (or when unlinked).
func (n *Node[T]) Prev() *T {
	return n.prev
}

// NodeOf constrains the pointer type PT of an element type T: PT must be
// able to produce the Node[T] it embeds. Every List is parameterized over
// both T (the element) and PT (its pointer type), since the accessor method
// is necessarily defined with a pointer receiver.
type NodeOf[T any] interface {
	*T
	ListNode() *Node[T]
}

// List is a head/tail-tracked doubly linked list of elements of type T,
// addressed through pointer type PT. The zero value is an empty,
// ready-to-use list.
type List[T any, PT NodeOf[T]] struct {
	head PT
	tail PT
	n    int
}

// Init resets the list to empty. It is only needed to re-use a List value
// that has already had elements added to it; the zero value is already
// initialized.
func (l *List[T, PT]) Init() {
	var zero PT
	l.head, l.tail, l.n = zero, zero, 0
}

// Empty reports whether the list has no elements.
func (l *List[T, PT]) Empty() bool {
	return l.n == 0
}

// Len returns the number of elements currently in the list.
func (l *List[T, PT]) Len() int {
	return l.n
}

// Add appends e to the tail of the list.
func (l *List[T, PT]) Add(e PT) {
	n := e.ListNode()
	if n.linked() {
		panic("ulist: element is already linked into a list")
	}
	n.self = e
	n.prev = l.tail
	n.next = nil
	if l.tail != nil {
		l.tail.ListNode().next = e
	} else {
		l.head = e
	}
	l.tail = e
	l.n++
}

// Unshift prepends e to the head of the list.
func (l *List[T, PT]) Unshift(e PT) {
	n := e.ListNode()
	if n.linked() {
		panic("ulist: element is already linked into a list")
	}
	n.self = e
	n.next = l.head
	n.prev = nil
	if l.head != nil {
		l.head.ListNode().prev = e
	} else {
		l.tail = e
	}
	l.head = e
	l.n++
}

// Peek returns the head element without removing it, or the zero PT (nil)
// if the list is empty.
func (l *List[T, PT]) Peek() PT {
	return l.head
}

// Pop removes and returns the head element, or the zero PT (nil) if the
// list is empty.
func (l *List[T, PT]) Pop() PT {
	e := l.head
	if e == nil {
		return e
	}
	l.Delete(e)
	return e
}

// Delete removes e from whatever list it is linked into (which must be l).
// It is a no-op if e is not currently linked.
func (l *List[T, PT]) Delete(e PT) {
	n := e.ListNode()
	if !n.linked() {
		return
	}
	if n.prev != nil {
		PT(n.prev).ListNode().next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		PT(n.next).ListNode().prev = n.prev
	} else {
		l.tail = n.prev
	}
	var zero PT
	n.next, n.prev, n.self = zero, zero, zero
	l.n--
}

// IsIn reports whether e is currently linked into some List.
func IsIn[T any, PT NodeOf[T]](e PT) bool {
	return e.ListNode().linked()
}

// IsFirst reports whether e is the head of the list.
func (l *List[T, PT]) IsFirst(e PT) bool {
	return l.head == e
}

// IsLast reports whether e is the tail of the list.
func (l *List[T, PT]) IsLast(e PT) bool {
	return l.tail == e
}

// At returns the k-th element (0-indexed) from the head, or the zero PT
// (nil) if k is out of range. This is an O(n) walk, as the structure keeps
// no index.
func (l *List[T, PT]) At(k int) PT {
	if k < 0 {
		var zero PT
		return zero
	}
	e := l.head
	for ; e != nil && k > 0; k-- {
		e = e.ListNode().next
	}
	return e
}

// Each calls fn once per element, head to tail, in list order.
func (l *List[T, PT]) Each(fn func(PT)) {
	for e := l.head; e != nil; {
		next := e.ListNode().next
		fn(e)
		e = next
	}
}

// EachReverse calls fn once per element, tail to head, in reverse list order.
func (l *List[T, PT]) EachReverse(fn func(PT)) {
	for e := l.tail; e != nil; {
		prev := e.ListNode().prev
		fn(e)
		e = prev
	}
}

// DeleteEach calls fn once per element, head to tail, snapshotting the next
// pointer before the call so fn may safely call Delete on the current
// element (or any other already-visited element) without corrupting the
// traversal.
func (l *List[T, PT]) DeleteEach(fn func(PT)) {
	for e := l.head; e != nil; {
		next := e.ListNode().next
		fn(e)
		e = next
	}
}

// Flush removes every element from the list, calling fn (if non-nil) once
// per element after it has been unlinked.
func (l *List[T, PT]) Flush(fn func(PT)) {
	for e := l.Pop(); e != nil; e = l.Pop() {
		if fn != nil {
			fn(e)
		}
	}
}

// vim: foldmethod=marker
