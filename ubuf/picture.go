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

package ubuf

import (
	"fmt"

	"github.com/quarium/upipe/uerror"
)

// PlaneFormat describes one named plane of a Picture: its chroma label,
// subsampling factors relative to the picture's pixel dimensions, the
// macropixel size in bytes, and whether it participates at all (hsub/vsub
// of 0 is invalid).
type PlaneFormat struct {
	Chroma         string
	Hsub, Vsub     int
	MacropixelSize int
}

// Picture is a set of named planes, each a Block, sharing one width,
// height and macropixel factor.
type Picture struct {
	mgr        *Manager
	width      int
	height     int
	macropixel int
	planes     map[string]*Block
	formats    map[string]PlaneFormat
}

// NewPicture allocates a Picture of the given pixel dimensions and
// macropixel factor, with one Block per plane sized according to its
// PlaneFormat: plane_width = width / macropixel / hsub, plane_height =
// height / vsub, each pixel occupying MacropixelSize bytes.
func (m *Manager) NewPicture(width, height, macropixel int, formats []PlaneFormat) (*Picture, error) {
	if width <= 0 || height <= 0 || macropixel <= 0 {
		return nil, fmt.Errorf("ubuf: %w: picture dimensions must be positive", uerror.Invalid)
	}
	pic := &Picture{
		mgr:        m,
		width:      width,
		height:     height,
		macropixel: macropixel,
		planes:     make(map[string]*Block, len(formats)),
		formats:    make(map[string]PlaneFormat, len(formats)),
	}
	for _, f := range formats {
		if f.Hsub <= 0 || f.Vsub <= 0 || f.MacropixelSize <= 0 {
			return nil, fmt.Errorf("ubuf: %w: invalid plane format for chroma %q", uerror.Invalid, f.Chroma)
		}
		if width%(macropixel*f.Hsub) != 0 || height%f.Vsub != 0 {
			return nil, fmt.Errorf("ubuf: %w: picture dimensions do not divide evenly for chroma %q", uerror.Invalid, f.Chroma)
		}
		planeWidth := width / macropixel / f.Hsub
		planeHeight := height / f.Vsub
		blk, err := m.NewBlock(planeWidth * planeHeight * f.MacropixelSize)
		if err != nil {
			return nil, err
		}
		pic.planes[f.Chroma] = blk
		pic.formats[f.Chroma] = f
	}
	return pic, nil
}

// Chromas returns the set of plane names this Picture carries.
func (p *Picture) Chromas() []string {
	out := make([]string, 0, len(p.planes))
	for c := range p.planes {
		out = append(out, c)
	}
	return out
}

// Stride returns the plane's stride in bytes for its full width, i.e. the
// byte distance between the start of consecutive rows.
func (p *Picture) Stride(chroma string) (int, error) {
	f, ok := p.formats[chroma]
	if !ok {
		return 0, fmt.Errorf("ubuf: %w: no such chroma plane %q", uerror.Invalid, chroma)
	}
	return (p.width / p.macropixel / f.Hsub) * f.MacropixelSize, nil
}

// MapPlane returns a read-only view of rows [y, y+h) of the named plane, in
// the plane's own row coordinates (already divided by vsub by the caller if
// needed — MapPlane does not rescale). Each row is mapped at its full
// stride; there is no horizontal (x, w) sub-region. It never triggers
// copy-on-write and needs no unmap; use WritePlane for writable access.
func (p *Picture) MapPlane(chroma string, y, h int) ([]byte, error) {
	blk, ok := p.planes[chroma]
	if !ok {
		return nil, fmt.Errorf("ubuf: %w: no such chroma plane %q", uerror.Invalid, chroma)
	}
	stride, err := p.Stride(chroma)
	if err != nil {
		return nil, err
	}
	full, err := blk.Map(false)
	if err != nil {
		return nil, err
	}
	_ = blk.Unmap()
	start, end := y*stride, (y+h)*stride
	if start < 0 || end > len(full) {
		return nil, fmt.Errorf("ubuf: %w: plane region out of range", uerror.Invalid)
	}
	return full[start:end], nil
}

// WritePlane behaves like MapPlane but triggers copy-on-write if the
// plane's payload is shared, and must be paired with UnmapPlane.
func (p *Picture) WritePlane(chroma string, y, h int) ([]byte, error) {
	blk, ok := p.planes[chroma]
	if !ok {
		return nil, fmt.Errorf("ubuf: %w: no such chroma plane %q", uerror.Invalid, chroma)
	}
	stride, err := p.Stride(chroma)
	if err != nil {
		return nil, err
	}
	full, err := blk.Map(true)
	if err != nil {
		return nil, err
	}
	start, end := y*stride, (y+h)*stride
	if start < 0 || end > len(full) {
		_ = blk.Unmap()
		return nil, fmt.Errorf("ubuf: %w: plane region out of range", uerror.Invalid)
	}
	return full[start:end], nil
}

// UnmapPlane balances a prior WritePlane call.
func (p *Picture) UnmapPlane(chroma string) error {
	blk, ok := p.planes[chroma]
	if !ok {
		return fmt.Errorf("ubuf: %w: no such chroma plane %q", uerror.Invalid, chroma)
	}
	return blk.Unmap()
}

// Dup returns a new Picture sharing every plane's storage with p.
func (p *Picture) Dup() *Picture {
	cp := &Picture{
		mgr:        p.mgr,
		width:      p.width,
		height:     p.height,
		macropixel: p.macropixel,
		planes:     make(map[string]*Block, len(p.planes)),
		formats:    p.formats,
	}
	for c, blk := range p.planes {
		cp.planes[c] = blk.Dup()
	}
	return cp
}

// Release releases every plane's Block.
func (p *Picture) Release() {
	for _, blk := range p.planes {
		blk.Release()
	}
}

// vim: foldmethod=marker
