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

package uref_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarium/upipe/ubuf"
	"github.com/quarium/upipe/uclock"
	"github.com/quarium/upipe/uref"
)

func TestMatchDef(t *testing.T) {
	mgr := uref.NewManager()

	u, err := mgr.NewFlowDef("block.mpegtspes.")
	require.NoError(t, err)
	defer u.Free()

	assert.True(t, u.MatchDef("block."))
	assert.True(t, u.MatchDef("block.mpegtspes."))
	assert.False(t, u.MatchDef("block.mpegtspes.h264."))
	assert.False(t, u.MatchDef("pic."))

	empty := mgr.New()
	defer empty.Free()
	assert.False(t, empty.MatchDef("block."))
}

func TestFlowDefRequiresTerminator(t *testing.T) {
	mgr := uref.NewManager()
	u := mgr.New()
	defer u.Free()

	assert.Error(t, u.SetFlowDef("block"))
	assert.Error(t, u.SetFlowDef(""))
	assert.NoError(t, u.SetFlowDef("void."))
}

func TestClockFields(t *testing.T) {
	mgr := uref.NewManager()
	u := mgr.New()
	defer u.Free()

	_, ok := u.PtsOrig()
	assert.False(t, ok, "fresh uref must carry no timestamps")
	assert.Equal(t, 1.0, u.DriftRate())

	u.SetPtsOrig(uclock.FromPES90k(0x112121212))
	u.SetDtsOrig(uclock.FromPES90k(0x112121212 - 1080000))
	u.SetDuration(uclock.Tick(27000))

	pts, ok := u.PtsOrig()
	require.True(t, ok)
	assert.Equal(t, uclock.Tick(0x112121212*300), pts)
	dts, ok := u.DtsOrig()
	require.True(t, ok)
	assert.Equal(t, uclock.Tick((0x112121212-1080000)*300), dts)

	u.ClearDts()
	_, ok = u.DtsOrig()
	assert.False(t, ok)
	_, ok = u.PtsOrig()
	assert.True(t, ok, "clearing DTS must leave the PTS alone")
}

func TestDupSharesPayloadCopiesMetadata(t *testing.T) {
	urefMgr := uref.NewManager()
	bufMgr, err := ubuf.NewManager(4096, 32)
	require.NoError(t, err)

	u := urefMgr.New()
	blk, err := bufMgr.NewBlock(4)
	require.NoError(t, err)
	u.AttachBuffer(blk)
	require.NoError(t, u.SetFlowDef("block."))
	u.SetFlag(uref.FlagBlockStart)
	u.SetPtsOrig(42)

	dup := u.Dup()

	// Metadata diverges independently.
	require.NoError(t, dup.SetFlowDef("block.mpegts."))
	def, _ := u.FlowDef()
	assert.Equal(t, "block.", def)
	assert.True(t, dup.HasFlag(uref.FlagBlockStart))
	pts, ok := dup.PtsOrig()
	require.True(t, ok)
	assert.Equal(t, uclock.Tick(42), pts)

	// Payload is shared copy-on-write: writing through dup's block must not
	// change u's bytes.
	buf, err := u.Block().Map(true)
	require.NoError(t, err)
	copy(buf, []byte{1, 2, 3, 4})
	require.NoError(t, u.Block().Unmap())

	buf, err = dup.Block().Map(true)
	require.NoError(t, err)
	copy(buf, []byte{9, 9, 9, 9})
	require.NoError(t, dup.Block().Unmap())

	buf, err = u.Block().Map(false)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
	require.NoError(t, u.Block().Unmap())

	dup.Free()
	u.Free()
}

func TestDetachBuffer(t *testing.T) {
	urefMgr := uref.NewManager()
	bufMgr, err := ubuf.NewManager(4096, 32)
	require.NoError(t, err)

	u := urefMgr.New()
	blk, err := bufMgr.NewBlock(4)
	require.NoError(t, err)
	u.AttachBuffer(blk)

	detached := u.DetachBuffer()
	assert.NotNil(t, detached)
	assert.Nil(t, u.Buffer())
	detached.Release()
	u.Free()
}

func TestTsAttributes(t *testing.T) {
	mgr := uref.NewManager()
	u := mgr.New()
	defer u.Free()

	require.NoError(t, u.SetTsPid(0x100))
	pid, ok := u.TsPid()
	require.True(t, ok)
	assert.Equal(t, uint64(0x100), pid)

	assert.Error(t, u.SetTsPid(0x2000), "PIDs are 13-bit")

	require.NoError(t, u.SetPsiFilter([]byte{0x00}, []byte{0xff}))
	value, mask, ok := u.PsiFilter()
	require.True(t, ok)
	assert.Equal(t, []byte{0x00}, value)
	assert.Equal(t, []byte{0xff}, mask)

	assert.Error(t, u.SetPsiFilter([]byte{0, 1}, []byte{0xff}))
}

// vim: foldmethod=marker
