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

package tspesdecaps_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarium/upipe/pipes/mock"
	"github.com/quarium/upipe/pipes/tspesdecaps"
	"github.com/quarium/upipe/ubuf"
	"github.com/quarium/upipe/uclock"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/uref"
)

const (
	streamIDVideo   = 0xe0
	streamIDPadding = 0xbe
)

// pesHeader builds one PES header. pts/dts are 33-bit 90kHz values; pass
// a negative value to omit the field.
func pesHeader(streamID byte, payloadLen int, aligned bool, pts, dts int64) []byte {
	var opt []byte
	var flags byte
	if pts >= 0 {
		flags |= 0x80
		opt = append(opt, encode33(0x20, uint64(pts))...)
		if dts >= 0 {
			flags |= 0x40
			opt[0] |= 0x10
			opt = append(opt, encode33(0x10, uint64(dts))...)
		}
	}
	hdr := []byte{0, 0, 1, streamID, 0, 0, 0x80, flags, byte(len(opt))}
	if aligned {
		hdr[6] |= 0x04
	}
	length := len(hdr) - 6 + len(opt) + payloadLen
	hdr[4] = byte(length >> 8)
	hdr[5] = byte(length)
	return append(hdr, opt...)
}

// encode33 packs a 33-bit timestamp into the 5-octet marker-bit layout.
func encode33(prefix byte, v uint64) []byte {
	return []byte{
		prefix | byte(v>>30<<1) | 1,
		byte(v >> 22),
		byte(v>>15<<1) | 1,
		byte(v >> 7),
		byte(v<<1) | 1,
	}
}

type bench struct {
	urefMgr *uref.Manager
	bufMgr  *ubuf.Manager
	rec     *mock.Recorder
	pesd    *upipe.Pipe
	sink    *upipe.Pipe
}

func newBench(t *testing.T) *bench {
	t.Helper()
	bufMgr, err := ubuf.NewManager(4096, 32)
	require.NoError(t, err)

	b := &bench{
		urefMgr: uref.NewManager(),
		bufMgr:  bufMgr,
		rec:     mock.NewRecorder(nil),
	}
	b.pesd, err = tspesdecaps.NewMgr(bufMgr).AllocVoid(b.rec)
	require.NoError(t, err)
	b.sink, err = mock.NewMgr(mock.Config{}).AllocVoid(uprobe.DeclineAll)
	require.NoError(t, err)

	flow, err := b.urefMgr.NewFlowDef("block.mpegtspes.")
	require.NoError(t, err)
	require.NoError(t, b.pesd.Control(upipe.SetFlowDef{Flow: flow}))
	flow.Free()
	require.NoError(t, b.pesd.Control(upipe.SetOutput{Output: b.sink}))
	return b
}

func (b *bench) feed(t *testing.T, data []byte, start bool) {
	t.Helper()
	blk, err := b.bufMgr.NewBlock(len(data))
	require.NoError(t, err)
	buf, err := blk.Map(true)
	require.NoError(t, err)
	copy(buf, data)
	require.NoError(t, blk.Unmap())

	u := b.urefMgr.New()
	u.AttachBuffer(blk)
	if start {
		u.SetFlag(uref.FlagBlockStart)
	}
	b.pesd.Input(u, nil)
}

func (b *bench) close() {
	b.pesd.Release()
	b.sink.Release()
}

// TestPesDecaps checks the happy path and sync edges: a PES header followed
// by 12 octets of payload yields one 12-octet output uref carrying the
// decoded original timestamps, SYNC_ACQUIRED exactly once, and no
// SYNC_LOST; a padding stream throws SYNC_LOST once, and a resuming video
// PES re-acquires once.
func TestPesDecaps(t *testing.T) {
	const pts = 0x112121212
	const dts = pts - 1080000

	b := newBench(t)
	defer b.close()

	packet := append(pesHeader(streamIDVideo, 12, true, pts, dts), make([]byte, 12)...)
	b.feed(t, packet, true)

	sink := mock.SinkOf(b.sink)
	require.Len(t, sink.Got, 1)
	out := sink.Got[0]
	assert.Equal(t, 12, out.Block().Size())
	assert.True(t, out.HasFlag(uref.FlagBlockStart))
	assert.True(t, out.HasFlag(uref.FlagDataAligned))

	gotPts, ok := out.PtsOrig()
	require.True(t, ok)
	assert.Equal(t, uclock.Tick(pts*300), gotPts)
	gotDts, ok := out.DtsOrig()
	require.True(t, ok)
	assert.Equal(t, uclock.Tick(dts*300), gotDts)

	assert.Equal(t, 1, b.rec.CountOf(uprobe.SyncAcquired))
	assert.Equal(t, 0, b.rec.CountOf(uprobe.SyncLost))
	assert.Equal(t, 1, b.rec.CountOf(uprobe.ClockTs))

	// A padding stream id loses sync, exactly once.
	b.feed(t, pesHeader(streamIDPadding, 0, false, -1, -1)[:6], true)
	assert.Equal(t, 1, b.rec.CountOf(uprobe.SyncLost))

	// Continuation urefs while out of sync are discarded.
	b.feed(t, make([]byte, 42), false)
	assert.Len(t, sink.Got, 1)

	// A video PES resumes: sync re-acquired, exactly once more.
	b.feed(t, append(pesHeader(streamIDVideo, 12, false, -1, -1), make([]byte, 12)...), true)
	assert.Equal(t, 2, b.rec.CountOf(uprobe.SyncAcquired))
	require.Len(t, sink.Got, 2)
	assert.Equal(t, 12, sink.Got[1].Block().Size())
	assert.False(t, sink.Got[1].HasFlag(uref.FlagBlockStart))
}

// TestPesDecapsFragmentedHeader cuts a PTS-only header into single-octet
// urefs; the decaps must reassemble it and emit one empty payload uref
// with the right timestamp.
func TestPesDecapsFragmentedHeader(t *testing.T) {
	const pts = 0x112121212

	b := newBench(t)
	defer b.close()

	hdr := pesHeader(streamIDVideo, 0, false, pts, -1)
	require.Len(t, hdr, 14)
	for i := range hdr {
		b.feed(t, hdr[i:i+1], i == 0)
	}

	sink := mock.SinkOf(b.sink)
	require.Len(t, sink.Got, 1)
	out := sink.Got[0]
	assert.Equal(t, 0, out.Block().Size())
	assert.False(t, out.HasFlag(uref.FlagBlockStart))

	gotPts, ok := out.PtsOrig()
	require.True(t, ok)
	assert.Equal(t, uclock.Tick(pts*300), gotPts)
	// Absent a DTS field, the DTS mirrors the PTS.
	gotDts, ok := out.DtsOrig()
	require.True(t, ok)
	assert.Equal(t, gotPts, gotDts)

	// Continuation payload after a complete header is forwarded as-is.
	b.feed(t, make([]byte, 42), false)
	require.Len(t, sink.Got, 2)
	assert.Equal(t, 42, sink.Got[1].Block().Size())
}

// vim: foldmethod=marker
