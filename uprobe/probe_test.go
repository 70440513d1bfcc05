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

package uprobe_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/uref"
	"github.com/quarium/upipe/urequest"
)

type fakePipe struct{ name string }

func (p *fakePipe) Name() string         { return p.name }
func (p *fakePipe) MgrSignature() uint32 { return 0x74657374 }

// TestChainOrdering checks the dispatch contract: an event visits the
// chain head to tail, and the first probe returning something other than
// Unhandled terminates the traversal.
func TestChainOrdering(t *testing.T) {
	var visited []string

	tail := uprobe.CatchFunc(func(_ uprobe.Pipe, ev uprobe.Event) error {
		visited = append(visited, "tail")
		return nil
	})
	mid := uprobe.CatchFunc(func(p uprobe.Pipe, ev uprobe.Event) error {
		visited = append(visited, "mid")
		if ev.Code == uprobe.SyncAcquired {
			return nil
		}
		return uprobe.Next(tail, p, ev)
	})
	head := uprobe.CatchFunc(func(p uprobe.Pipe, ev uprobe.Event) error {
		visited = append(visited, "head")
		return uprobe.Next(mid, p, ev)
	})

	pipe := &fakePipe{name: "test"}

	// Handled mid-chain: the tail must not see it.
	err := uprobe.Throw(head, pipe, uprobe.Event{Code: uprobe.SyncAcquired})
	require.NoError(t, err)
	assert.Equal(t, []string{"head", "mid"}, visited)

	// Unhandled by everyone: traversal reaches the tail, which handles.
	visited = nil
	err = uprobe.Throw(head, pipe, uprobe.Event{Code: uprobe.SourceEnd})
	require.NoError(t, err)
	assert.Equal(t, []string{"head", "mid", "tail"}, visited)
}

func TestThrowUnhandledAtChainEnd(t *testing.T) {
	err := uprobe.Throw(uprobe.DeclineAll, &fakePipe{}, uprobe.Event{Code: uprobe.NewRap})
	assert.True(t, errors.Is(err, uerror.Unhandled))

	err = uprobe.Throw(nil, &fakePipe{}, uprobe.Event{Code: uprobe.NewRap})
	assert.True(t, errors.Is(err, uerror.Unhandled))
}

func TestLogProbeRendersAndPrefixDecorates(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	chain := uprobe.NewPrefixProbe(uprobe.NewLogProbe(uprobe.DeclineAll, logger), "pesd")
	pipe := &fakePipe{name: "pesd 0"}

	err := uprobe.Throw(chain, pipe, uprobe.Event{
		Code:  uprobe.Log,
		Level: uprobe.LogWarning,
		Msg:   "dropping malformed header",
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pesd: dropping malformed header", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
}

func TestLevelProbeFilters(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	chain := uprobe.NewLevelProbe(uprobe.NewLogProbe(uprobe.DeclineAll, logger), uprobe.LogWarning)
	pipe := &fakePipe{name: "x"}

	require.NoError(t, uprobe.Throw(chain, pipe, uprobe.Event{
		Code: uprobe.Log, Level: uprobe.LogDebug, Msg: "chatty",
	}))
	require.NoError(t, uprobe.Throw(chain, pipe, uprobe.Event{
		Code: uprobe.Log, Level: uprobe.LogError, Msg: "important",
	}))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "important", entries[0].Message)
}

func TestProviderProbeAnswersNeeds(t *testing.T) {
	urefMgr := uref.NewManager()

	provider := uprobe.NewProviderProbe(uprobe.DeclineAll)
	provider.UrefMgr = urefMgr

	var got *uref.Manager
	req := urequest.New(urequest.UrefMgr, nil, func(_ *urequest.Request, resp urequest.Response) {
		got = resp.UrefMgr
	})
	defer req.Release()

	err := uprobe.Throw(provider, &fakePipe{}, uprobe.Event{
		Code:    uprobe.NeedUrefMgr,
		Request: req,
	})
	require.NoError(t, err)
	assert.Same(t, urefMgr, got)

	// A need the provider cannot answer continues up the chain.
	clockReq := urequest.New(urequest.Uclock, nil, nil)
	defer clockReq.Release()
	err = uprobe.Throw(provider, &fakePipe{}, uprobe.Event{
		Code:    uprobe.NeedUclock,
		Request: clockReq,
	})
	assert.True(t, errors.Is(err, uerror.Unhandled))
}

func TestSelectorProbeFiltersFlows(t *testing.T) {
	mgr := uref.NewManager()

	flowA := mgr.New()
	require.NoError(t, flowA.SetFlowDef("block.mpegtspes."))
	require.NoError(t, flowA.SetFlowID(68))
	defer flowA.Free()

	flowB := mgr.New()
	require.NoError(t, flowB.SetFlowDef("block.mpegtspsi."))
	require.NoError(t, flowB.SetFlowID(0))
	defer flowB.Free()

	var picked []uint64
	sel := uprobe.NewSelectorProbe(uprobe.DeclineAll,
		func(flow *uref.Uref) bool { return flow.MatchDef("block.mpegtspes.") },
		func(flow *uref.Uref) {
			id, _ := flow.FlowID()
			picked = append(picked, id)
		})

	err := uprobe.Throw(sel, &fakePipe{}, uprobe.Event{
		Code: uprobe.SplitUpdate,
		Args: []any{flowA, flowB},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{68}, picked)
}

// vim: foldmethod=marker
