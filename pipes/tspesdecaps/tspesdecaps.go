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

// Package tspesdecaps strips the PES encapsulation layer off a transport
// stream elementary flow: input urefs carry PES-framed blocks (the first
// uref of each PES marked with the block-start flag), output urefs carry
// the bare payload, stamped with the presentation and decoding timestamps
// decoded from the header. It is a worked example of a parsing pipe over
// the runtime: sync acquisition/loss events, header reassembly across
// fragmented input, and O(1) header stripping on the unfragmented path.
package tspesdecaps

import (
	"github.com/quarium/upipe/ubuf"
	"github.com/quarium/upipe/uclock"
	"github.com/quarium/upipe/uerror"
	"github.com/quarium/upipe/upipe"
	"github.com/quarium/upipe/uprobe"
	"github.com/quarium/upipe/upump"
	"github.com/quarium/upipe/uref"
)

// Signature identifies the PES decaps kind.
var Signature = upipe.FourCC('p', 'e', 's', 'd')

// PES framing constants.
const (
	headerSize       = 6  // start code + stream id + length
	headerSizeNoPts  = 9  // + flags and header-length octets
	headerSizePts    = 14 // + 5-octet PTS field
	headerSizePtsDts = 19 // + 5-octet DTS field

	streamIDPadding  = 0xbe
	streamIDPrivate2 = 0xbf
)

// NewMgr returns a manager allocating PES decaps pipes. ubufMgr backs the
// payload reassembly buffer used when a PES header arrives fragmented
// across several urefs; the common single-uref path never allocates.
func NewMgr(ubufMgr *ubuf.Manager) *upipe.Manager {
	return upipe.NewManager(Signature, "pesd", func(p *upipe.Pipe, _ *uref.Uref) (upipe.Impl, error) {
		d := &decaps{pipe: p, ubufMgr: ubufMgr}
		d.out.InitOutput(p)
		return d, nil
	})
}

type decaps struct {
	pipe    *upipe.Pipe
	out     upipe.OutputHelper
	ubufMgr *ubuf.Manager

	// acquired is the sync state announced up the probe chain.
	acquired bool
	// dropping discards continuation urefs after a lost or never
	// acquired sync, until the next PES start.
	dropping bool

	// gather accumulates header octets while a PES start arrives in
	// fragments; meta keeps the first fragment's metadata for the
	// eventual output.
	gather []byte
	meta   *uref.Uref
}

// Control implements upipe.Impl.
func (d *decaps) Control(cmd upipe.Command) error {
	switch c := cmd.(type) {
	case upipe.SetFlowDef:
		if !c.Flow.MatchDef(uref.FlowBlockTSPES) {
			return uerror.Invalid
		}
		flow := c.Flow.Dup()
		if err := flow.SetFlowDef(uref.FlowBlock); err != nil {
			flow.Free()
			return err
		}
		d.out.StoreFlowDef(flow)
		return nil
	}
	return d.out.ControlOutput(cmd)
}

// NoRef implements upipe.Impl.
func (d *decaps) NoRef() {
	d.pipe.ReleaseInternal()
}

// Free implements upipe.Impl.
func (d *decaps) Free() {
	d.flush()
	d.out.CleanOutput()
}

func (d *decaps) flush() {
	d.gather = nil
	if d.meta != nil {
		d.meta.Free()
		d.meta = nil
	}
}

func (d *decaps) syncAcquired() {
	if !d.acquired {
		d.acquired = true
		_ = d.pipe.Throw(uprobe.Event{Code: uprobe.SyncAcquired})
	}
}

func (d *decaps) syncLost() {
	if d.acquired {
		d.acquired = false
		_ = d.pipe.Throw(uprobe.Event{Code: uprobe.SyncLost})
	}
}

// Input implements upipe.Inputer.
func (d *decaps) Input(u *uref.Uref, pump *upump.Pump) {
	if u.HasFlag(uref.FlagBlockStart) {
		d.flush()
		d.dropping = false
		d.begin(u, pump)
		return
	}
	if d.meta != nil {
		// Still reassembling a fragmented header.
		d.appendFragment(u, pump)
		return
	}
	if d.dropping {
		u.Free()
		return
	}
	// Continuation payload of the current PES.
	d.output(u, pump)
}

// begin handles the first uref of a PES.
func (d *decaps) begin(u *uref.Uref, pump *upump.Pump) {
	blk := u.Block()
	if blk == nil {
		d.pipe.ThrowLog(uprobe.LogWarning, "PES start without block payload")
		u.Free()
		d.dropping = true
		return
	}
	if blk.Size() >= headerSize {
		// The whole fixed header is here; the variable part may or may
		// not be. Peek without consuming.
		data, err := blk.Map(false)
		if err != nil {
			u.Free()
			d.dropping = true
			return
		}
		need := wantedHeader(data)
		_ = blk.Unmap()
		if need < 0 {
			d.badHeader(u)
			return
		}
		if blk.Size() >= need {
			d.parseWhole(u, need, pump)
			return
		}
	}
	// Fragmented: start gathering.
	d.meta = u
	data, err := blk.Map(false)
	if err != nil {
		d.flush()
		d.dropping = true
		return
	}
	d.gather = append(d.gather[:0], data...)
	_ = blk.Unmap()
}

// appendFragment adds a continuation fragment to a gathering header.
func (d *decaps) appendFragment(u *uref.Uref, pump *upump.Pump) {
	blk := u.Block()
	if blk == nil {
		u.Free()
		return
	}
	data, err := blk.Map(false)
	if err != nil {
		u.Free()
		return
	}
	d.gather = append(d.gather, data...)
	_ = blk.Unmap()
	u.Free()

	if len(d.gather) < headerSize {
		return
	}
	need := wantedHeader(d.gather)
	if need < 0 {
		meta := d.meta
		d.meta = nil
		d.badHeader(meta)
		d.gather = nil
		return
	}
	if len(d.gather) < need {
		return
	}
	d.parseGathered(need, pump)
}

// wantedHeader returns the complete header size implied by the fixed
// part, or -1 for stream ids this pipe cannot lock onto.
func wantedHeader(data []byte) int {
	if data[0] != 0 || data[1] != 0 || data[2] != 1 {
		return -1
	}
	id := data[3]
	if id == streamIDPadding {
		return -1
	}
	if id == streamIDPrivate2 {
		return headerSize
	}
	if len(data) < headerSizeNoPts {
		return headerSizeNoPts
	}
	return headerSizeNoPts + int(data[8])
}

// badHeader drops a PES whose header cannot be parsed (bad start code or
// a padding stream), losing sync.
func (d *decaps) badHeader(u *uref.Uref) {
	d.pipe.ThrowLog(uprobe.LogWarning, "lost PES synchronization")
	d.syncLost()
	d.dropping = true
	u.Free()
}

// parseWhole is the unfragmented path: the uref holds at least the whole
// header, which is peeled off in place.
func (d *decaps) parseWhole(u *uref.Uref, need int, pump *upump.Pump) {
	blk := u.Block()
	data, err := blk.Map(false)
	if err != nil {
		u.Free()
		d.dropping = true
		return
	}
	hdr := append([]byte(nil), data[:need]...)
	_ = blk.Unmap()
	if err := blk.Advance(need); err != nil {
		u.Free()
		d.dropping = true
		return
	}
	d.emit(u, hdr, pump)
}

// parseGathered is the fragmented path: the header was reassembled into
// gather; whatever follows it is the payload's first octets.
func (d *decaps) parseGathered(need int, pump *upump.Pump) {
	meta := d.meta
	d.meta = nil
	hdr := d.gather[:need]
	rest := d.gather[need:]

	payload, err := d.ubufMgr.NewBlock(len(rest))
	if err != nil {
		d.pipe.ThrowFatal(err)
		meta.Free()
		d.gather = nil
		return
	}
	if len(rest) > 0 {
		buf, err := payload.Map(true)
		if err != nil {
			payload.Release()
			meta.Free()
			d.gather = nil
			return
		}
		copy(buf, rest)
		_ = payload.Unmap()
	}
	meta.AttachBuffer(payload)
	d.emit(meta, hdr, pump)
	d.gather = nil
}

// emit decodes the header fields onto u (whose payload is already the
// bare PES payload) and outputs it.
func (d *decaps) emit(u *uref.Uref, hdr []byte, pump *upump.Pump) {
	u.ClearFlag(uref.FlagBlockStart | uref.FlagDataAligned)

	if len(hdr) >= headerSizeNoPts {
		if hdr[6]&0x04 != 0 {
			// The elementary stream says its access unit starts here.
			u.SetFlag(uref.FlagBlockStart | uref.FlagDataAligned)
		}
		flags := hdr[7]
		if flags&0x80 != 0 && len(hdr) >= headerSizePts {
			pts := uclock.FromPES90k(decode33(hdr[9:14]))
			u.SetPtsOrig(pts)
			if flags&0x40 != 0 && len(hdr) >= headerSizePtsDts {
				u.SetDtsOrig(uclock.FromPES90k(decode33(hdr[14:19])))
			} else {
				u.SetDtsOrig(pts)
			}
			_ = d.pipe.Throw(uprobe.Event{Code: uprobe.ClockTs, Uref: u})
		}
	}

	d.syncAcquired()
	d.output(u, pump)
}

func (d *decaps) output(u *uref.Uref, pump *upump.Pump) {
	d.out.Send(u, pump)
}

// decode33 extracts the 33-bit timestamp from its 5-octet marker-bit
// encoding.
func decode33(b []byte) uint64 {
	return uint64(b[0]>>1&0x07)<<30 |
		uint64(b[1])<<22 |
		uint64(b[2]>>1)<<15 |
		uint64(b[3])<<7 |
		uint64(b[4]>>1)
}

// vim: foldmethod=marker
