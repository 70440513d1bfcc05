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

// Package subpipe implements the parent-owned-children pattern: a split or
// join pipe owns a second Manager whose pipes are its sub-pipes (one per
// demuxed elementary stream, one per mux input), each linked into the
// parent's children list, each able to find its parent back.
package subpipe

import (
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/ulist"
	"github.com/quarium/upipe/upipe"
)

// child is one entry of a parent's children list. It is an intrusive list
// element so removal on sub-pipe death stays O(1) however many lanes a
// demuxer fans out to.
type child struct {
	ulist.Node[child]
	pipe *upipe.Pipe
}

// ListNode satisfies ulist.NodeOf.
func (c *child) ListNode() *ulist.Node[child] {
	return &c.Node
}

// Children is the parent side of the pattern: embed it in the super pipe's
// Impl.
type Children struct {
	super  *upipe.Pipe
	subMgr *upipe.Manager
	list   ulist.List[child, *child]
	byPipe map[*upipe.Pipe]*child
}

// InitChildren binds the helper to the super pipe and the manager its
// sub-pipes are allocated from.
func (ch *Children) InitChildren(super *upipe.Pipe, subMgr *upipe.Manager) {
	ch.super = super
	ch.subMgr = subMgr
	ch.byPipe = make(map[*upipe.Pipe]*child)
}

// add links a freshly allocated sub-pipe. The super pipe's memory is held
// internally for as long as any child exists, so a parent released by the
// application keeps servicing its children until the last one dies.
func (ch *Children) add(sub *upipe.Pipe) {
	c := &child{pipe: sub}
	ch.list.Add(c)
	ch.byPipe[sub] = c
	ch.super.UseInternal()
}

// remove unlinks a dying sub-pipe.
func (ch *Children) remove(sub *upipe.Pipe) {
	c, ok := ch.byPipe[sub]
	if !ok {
		return
	}
	ch.list.Delete(c)
	delete(ch.byPipe, sub)
	ch.super.ReleaseInternal()
}

// Each calls fn once per child, in creation order, for broadcast
// operations. fn may not add or remove children.
func (ch *Children) Each(fn func(*upipe.Pipe)) {
	ch.list.Each(func(c *child) { fn(c.pipe) })
}

// Len returns the number of live children.
func (ch *Children) Len() int {
	return ch.list.Len()
}

// ControlSuper handles the sub-pipe iteration commands on the super pipe;
// route unrecognised commands here from the super Impl's Control.
func (ch *Children) ControlSuper(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.GetSubMgr:
		*c.Mgr = ch.subMgr
		return nil
	case upipe.IterateSub:
		if *c.Sub == nil {
			if head := ch.list.Peek(); head != nil {
				*c.Sub = head.pipe
			}
			return nil
		}
		cur, ok := ch.byPipe[*c.Sub]
		if !ok {
			return uerror.Invalid
		}
		*c.Sub = nil
		if next := cur.Node.Next(); next != nil {
			*c.Sub = next.pipe
		}
		return nil
	}
	return uerror.Unhandled
}

// CleanChildren is called from the super Impl's Free; every child must
// already be gone by then (the internal refcount guarantees Free cannot
// run earlier).
func (ch *Children) CleanChildren() {
	ch.byPipe = nil
}

// Sub is the child side of the pattern: embed it in the sub-pipe kind's
// Impl.
type Sub struct {
	self     *upipe.Pipe
	children *Children
}

// InitSub links the freshly allocated sub-pipe into its parent's children
// list.
func (s *Sub) InitSub(self *upipe.Pipe, children *Children) {
	s.self = self
	s.children = children
	children.add(self)
}

// Super returns the parent pipe.
func (s *Sub) Super() *upipe.Pipe {
	return s.children.super
}

// ControlSub handles the parent-discovery command on the sub-pipe.
func (s *Sub) ControlSub(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.SubGetSuper:
		*c.Super = s.children.super
		return nil
	}
	return uerror.Unhandled
}

// CleanSub unlinks the sub-pipe from its parent; call from the sub Impl's
// NoRef or Free.
func (s *Sub) CleanSub() {
	if s.children != nil {
		s.children.remove(s.self)
		s.children = nil
	}
}

// vim: foldmethod=marker
