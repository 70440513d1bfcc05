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

package uprobe

import (
	"go.uber.org/zap"

	"github.com/quarium/upipe/ubuf"
	"github.com/quarium/upipe/uclock"
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urequest"
)

// LogProbe renders Log events through a zap logger and lets everything
// else continue up the chain. It is conventionally the last probe of an
// application's stack, so whatever no other probe handled still leaves a
// trace.
type LogProbe struct {
	next   Probe
	logger *zap.Logger
}

// NewLogProbe stacks a LogProbe in front of next.
func NewLogProbe(next Probe, logger *zap.Logger) *LogProbe {
	return &LogProbe{next: next, logger: logger}
}

// Catch implements Probe.
func (p *LogProbe) Catch(pipe Pipe, ev Event) error {
	if ev.Code != Log {
		return Next(p.next, pipe, ev)
	}
	fields := []zap.Field{}
	if pipe != nil {
		fields = append(fields,
			zap.String("pipe", pipe.Name()),
			zap.Uint32("signature", pipe.MgrSignature()),
		)
	}
	switch ev.Level {
	case LogVerbose, LogDebug:
		p.logger.Debug(ev.Msg, fields...)
	case LogNotice:
		p.logger.Info(ev.Msg, fields...)
	case LogWarning:
		p.logger.Warn(ev.Msg, fields...)
	default:
		p.logger.Error(ev.Msg, fields...)
	}
	return nil
}

// LevelProbe drops Log events below its threshold and passes everything
// else along.
type LevelProbe struct {
	next Probe
	min  LogLevel
}

// NewLevelProbe stacks a LevelProbe in front of next.
func NewLevelProbe(next Probe, min LogLevel) *LevelProbe {
	return &LevelProbe{next: next, min: min}
}

// Catch implements Probe.
func (p *LevelProbe) Catch(pipe Pipe, ev Event) error {
	if ev.Code == Log && ev.Level < p.min {
		return nil
	}
	return Next(p.next, pipe, ev)
}

// PrefixProbe rewrites Log events to carry a stable label in front of the
// message, so several pipes sharing one logger stay distinguishable.
type PrefixProbe struct {
	next   Probe
	prefix string
}

// NewPrefixProbe stacks a PrefixProbe in front of next.
func NewPrefixProbe(next Probe, prefix string) *PrefixProbe {
	return &PrefixProbe{next: next, prefix: prefix}
}

// Catch implements Probe.
func (p *PrefixProbe) Catch(pipe Pipe, ev Event) error {
	if ev.Code == Log {
		ev.Msg = p.prefix + ": " + ev.Msg
	}
	return Next(p.next, pipe, ev)
}

// ProviderProbe answers Need* events with pre-built managers, the way an
// application wires its allocation context into every pipe it creates.
// Nil fields leave the corresponding event unanswered, continuing up the
// chain.
type ProviderProbe struct {
	next     Probe
	UrefMgr  *uref.Manager
	UbufMgr  *ubuf.Manager
	Clock    uclock.Clock
	UpumpMgr *upump.Manager
}

// NewProviderProbe stacks a ProviderProbe in front of next. Populate the
// exported manager fields before attaching it to a pipe.
func NewProviderProbe(next Probe) *ProviderProbe {
	return &ProviderProbe{next: next}
}

// Catch implements Probe.
func (p *ProviderProbe) Catch(pipe Pipe, ev Event) error {
	if ev.Request == nil {
		return Next(p.next, pipe, ev)
	}
	switch ev.Code {
	case NeedUrefMgr:
		if p.UrefMgr != nil {
			ev.Request.Provide(urequest.Response{UrefMgr: p.UrefMgr})
			return nil
		}
	case NeedUbufMgr:
		if p.UbufMgr != nil {
			ev.Request.Provide(urequest.Response{UbufMgr: p.UbufMgr})
			return nil
		}
	case NeedUclock:
		if p.Clock != nil {
			ev.Request.Provide(urequest.Response{Clock: p.Clock})
			return nil
		}
	case NeedUpumpMgr:
		if p.UpumpMgr != nil {
			ev.Request.Provide(urequest.Response{UpumpMgr: p.UpumpMgr})
			return nil
		}
	}
	return Next(p.next, pipe, ev)
}

// SelectorProbe watches SplitUpdate events from a demuxer and calls its
// callback for every announced flow matched by the filter, the way an
// application picks one program out of a multi-program stream. A nil
// filter matches every flow.
type SelectorProbe struct {
	next   Probe
	filter func(flow *uref.Uref) bool
	onFlow func(flow *uref.Uref)
}

// NewSelectorProbe stacks a SelectorProbe in front of next.
func NewSelectorProbe(next Probe, filter func(*uref.Uref) bool, onFlow func(*uref.Uref)) *SelectorProbe {
	return &SelectorProbe{next: next, filter: filter, onFlow: onFlow}
}

// Catch implements Probe.
func (p *SelectorProbe) Catch(pipe Pipe, ev Event) error {
	if ev.Code != SplitUpdate {
		return Next(p.next, pipe, ev)
	}
	for _, arg := range ev.Args {
		flow, ok := arg.(*uref.Uref)
		if !ok {
			continue
		}
		if p.filter == nil || p.filter(flow) {
			p.onFlow(flow)
		}
	}
	return nil
}

// DeclineAll is a terminal probe reporting every event Unhandled, for
// tests and for pipes whose events the application genuinely does not
// care about.
var DeclineAll Probe = CatchFunc(func(Pipe, Event) error {
	return uerror.Unhandled
})

// vim: foldmethod=marker
