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

package upipe

import (
	"github.com/quarium/upipe/uclock"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urequest"
)

// Command is one control operation on a pipe. Each standard command is its
// own struct carrying typed arguments; pipe-specific commands implement
// this interface in their own package and carry their manager signature
// through Signature. A pipe receiving a Command it does not recognise must
// return uerror.Unhandled untouched, so callers can probe capabilities.
type Command interface {
	command()
}

// LocalCommand marks pipe-private commands; Signature returns the manager
// signature the command belongs to, so a pipe can cheaply reject commands
// aimed at another kind.
type LocalCommand interface {
	Command
	Signature() uint32
}

// PrivateCommand is embedded by pipe-private command types defined in
// other packages; embedding it is what satisfies Command's unexported
// marker method from outside this package.
type PrivateCommand struct{}

func (PrivateCommand) command() {}

// AttachUpumpMgr hands the pipe the event loop of the thread it runs on.
type AttachUpumpMgr struct{ Mgr *upump.Manager }

// AttachUclock hands the pipe a clock source.
type AttachUclock struct{ Clock uclock.Clock }

// SetFlowDef presents the input flow definition. The uref stays owned by
// the caller; a pipe that needs to retain it duplicates it.
type SetFlowDef struct{ Flow *uref.Uref }

// GetFlowDef asks for the pipe's current input flow definition. The
// returned uref stays owned by the pipe.
type GetFlowDef struct{ Flow **uref.Uref }

// SetOutput connects the pipe's output to another pipe. The pipe takes a
// reference on the output for as long as it stays connected.
type SetOutput struct{ Output *Pipe }

// GetOutput asks for the currently connected output pipe, nil if none.
type GetOutput struct{ Output **Pipe }

// SetOutputSize configures the preferred output chunk size of pipes that
// reblock their output (a file source's read size, a TS mux's packet
// aggregation).
type SetOutputSize struct{ Size int }

// GetOutputSize asks for the configured output chunk size.
type GetOutputSize struct{ Size *int }

// RegisterRequest registers an upstream resource request on this pipe; the
// pipe either provides it, forwards it further upstream, or throws the
// corresponding Need event for a probe to answer.
type RegisterRequest struct{ Request *urequest.Request }

// UnregisterRequest removes a previously registered request.
type UnregisterRequest struct{ Request *urequest.Request }

// SetURI points a source or sink pipe at its resource.
type SetURI struct{ URI string }

// GetURI asks for the pipe's current resource location.
type GetURI struct{ URI *string }

// SetOption passes one string option to the pipe.
type SetOption struct{ Key, Value string }

// GetOption asks for the current value of one string option.
type GetOption struct {
	Key   string
	Value *string
}

// GetSubMgr asks a split/join pipe for the manager allocating its
// sub-pipes.
type GetSubMgr struct{ Mgr **Manager }

// IterateSub walks a parent pipe's children: pass nil to get the first
// child, then the previous child to get the next; *Sub is nil at the end.
type IterateSub struct{ Sub **Pipe }

// SubGetSuper asks a sub-pipe for its parent.
type SubGetSuper struct{ Super **Pipe }

// BinGetFirstInner asks a bin pipe for the input end of its inner chain.
type BinGetFirstInner struct{ Inner **Pipe }

// BinGetLastInner asks a bin pipe for the output end of its inner chain.
type BinGetLastInner struct{ Inner **Pipe }

func (AttachUpumpMgr) command() {}
func (AttachUclock) command() {}
func (SetFlowDef) command() {}
func (GetFlowDef) command() {}
func (SetOutput) command() {}
func (GetOutput) command() {}
func (SetOutputSize) command() {}
func (GetOutputSize) command() {}
func (RegisterRequest) command() {}
func (UnregisterRequest) command() {}
func (SetURI) command() {}
func (GetURI) command() {}
func (SetOption) command() {}
func (GetOption) command() {}
func (GetSubMgr) command() {}
func (IterateSub) command() {}
func (SubGetSuper) command() {}
func (BinGetFirstInner) command() {}
func (BinGetLastInner) command() {}

// vim: foldmethod=marker
