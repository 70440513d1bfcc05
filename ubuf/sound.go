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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/quarium/upipe/uerror"
)

// SampleFormat identifies the binary layout of one audio sample within a
// Sound channel plane.
type SampleFormat int

const (
	// SampleS16 is signed 16-bit integer samples, native byte order.
	SampleS16 SampleFormat = iota
	// SampleS32 is signed 32-bit integer samples, native byte order.
	SampleS32
	// SampleF32 is IEEE-754 32-bit float samples.
	SampleF32
)

// Size returns the byte size of one sample in this format.
func (f SampleFormat) Size() int {
	switch f {
	case SampleS16:
		return 2
	case SampleS32, SampleF32:
		return 4
	}
	return 0
}

// Sound is a set of named channel planes ("l", "r", or "lr" for packed
// stereo), all sharing one sample format, rate and samples count. A packed
// plane simply carries more than one sample per frame; its name is the
// concatenation of the channels it interleaves.
type Sound struct {
	mgr        *Manager
	format     SampleFormat
	rate       int
	samples    int
	planes     map[string]*Block
	sampleSize map[string]int // bytes per frame in this plane (covers packing)
	order      []string
}

// NewSound allocates a Sound of samples frames at the given rate, one Block
// per plane name. A plane name longer than one channel label ("lr") is
// packed: every frame interleaves one sample per labelled channel.
func (m *Manager) NewSound(format SampleFormat, rate, samples int, planes []string) (*Sound, error) {
	if rate <= 0 || samples < 0 {
		return nil, fmt.Errorf("ubuf: %w: sound rate/samples out of range", uerror.Invalid)
	}
	if format.Size() == 0 {
		return nil, fmt.Errorf("ubuf: %w: unknown sample format", uerror.Invalid)
	}
	snd := &Sound{
		mgr:        m,
		format:     format,
		rate:       rate,
		samples:    samples,
		planes:     make(map[string]*Block, len(planes)),
		sampleSize: make(map[string]int, len(planes)),
	}
	for _, name := range planes {
		if name == "" {
			return nil, fmt.Errorf("ubuf: %w: empty channel plane name", uerror.Invalid)
		}
		frame := format.Size() * len(name)
		blk, err := m.NewBlock(samples * frame)
		if err != nil {
			return nil, err
		}
		snd.planes[name] = blk
		snd.sampleSize[name] = frame
		snd.order = append(snd.order, name)
	}
	return snd, nil
}

// Format returns the sample format shared by every plane.
func (s *Sound) Format() SampleFormat {
	return s.format
}

// Rate returns the sample rate in Hz.
func (s *Sound) Rate() int {
	return s.rate
}

// Samples returns the number of frames each plane carries.
func (s *Sound) Samples() int {
	return s.samples
}

// Channels returns the plane names, in allocation order.
func (s *Sound) Channels() []string {
	return append([]string(nil), s.order...)
}

// SampleSize returns the byte size of one frame in the named plane (the
// sample size times the number of channels the plane packs).
func (s *Sound) SampleSize(channel string) (int, error) {
	n, ok := s.sampleSize[channel]
	if !ok {
		return 0, fmt.Errorf("ubuf: %w: no such channel plane %q", uerror.Invalid, channel)
	}
	return n, nil
}

// MapChannel returns a read-only view of the named plane's raw bytes. It
// must be balanced by UnmapChannel.
func (s *Sound) MapChannel(channel string) ([]byte, error) {
	blk, ok := s.planes[channel]
	if !ok {
		return nil, fmt.Errorf("ubuf: %w: no such channel plane %q", uerror.Invalid, channel)
	}
	return blk.Map(false)
}

// WriteChannel returns a writable view of the named plane's raw bytes,
// performing copy-on-write first if the plane is shared. It must be
// balanced by UnmapChannel.
func (s *Sound) WriteChannel(channel string) ([]byte, error) {
	blk, ok := s.planes[channel]
	if !ok {
		return nil, fmt.Errorf("ubuf: %w: no such channel plane %q", uerror.Invalid, channel)
	}
	return blk.Map(true)
}

// UnmapChannel balances a prior MapChannel or WriteChannel call.
func (s *Sound) UnmapChannel(channel string) error {
	blk, ok := s.planes[channel]
	if !ok {
		return fmt.Errorf("ubuf: %w: no such channel plane %q", uerror.Invalid, channel)
	}
	return blk.Unmap()
}

// ReadF32 decodes the named plane as float32 frames. The plane must have
// been allocated with SampleF32.
func (s *Sound) ReadF32(channel string) ([]float32, error) {
	if s.format != SampleF32 {
		return nil, fmt.Errorf("ubuf: %w: plane is not float32", uerror.Invalid)
	}
	raw, err := s.MapChannel(channel)
	if err != nil {
		return nil, err
	}
	defer s.UnmapChannel(channel)
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// WriteF32 encodes values into the named plane as float32 frames,
// triggering copy-on-write if the plane is shared. values must exactly
// fill the plane.
func (s *Sound) WriteF32(channel string, values []float32) error {
	if s.format != SampleF32 {
		return fmt.Errorf("ubuf: %w: plane is not float32", uerror.Invalid)
	}
	raw, err := s.WriteChannel(channel)
	if err != nil {
		return err
	}
	defer s.UnmapChannel(channel)
	if len(values)*4 != len(raw) {
		return fmt.Errorf("ubuf: %w: %d samples do not fill a %d-byte plane", uerror.Invalid, len(values), len(raw))
	}
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return nil
}

// Advance drops the first n frames from every plane, the way a mixer
// consumes the head of a buffer it only partially needed. This never
// reallocates.
func (s *Sound) Advance(n int) error {
	if n < 0 || n > s.samples {
		return fmt.Errorf("ubuf: %w: advance out of range", uerror.Invalid)
	}
	for name, blk := range s.planes {
		if err := blk.Advance(n * s.sampleSize[name]); err != nil {
			return err
		}
	}
	s.samples -= n
	return nil
}

// Resize truncates the Sound to the first samples frames of every plane.
func (s *Sound) Resize(samples int) error {
	if samples < 0 || samples > s.samples {
		return fmt.Errorf("ubuf: %w: resize out of range", uerror.Invalid)
	}
	for name, blk := range s.planes {
		if err := blk.Truncate(samples * s.sampleSize[name]); err != nil {
			return err
		}
	}
	s.samples = samples
	return nil
}

// Dup returns a new Sound sharing every plane's storage with s.
func (s *Sound) Dup() *Sound {
	cp := &Sound{
		mgr:        s.mgr,
		format:     s.format,
		rate:       s.rate,
		samples:    s.samples,
		planes:     make(map[string]*Block, len(s.planes)),
		sampleSize: s.sampleSize,
		order:      s.order,
	}
	for name, blk := range s.planes {
		cp.planes[name] = blk.Dup()
	}
	return cp
}

// Release releases every plane's Block.
func (s *Sound) Release() {
	for _, blk := range s.planes {
		blk.Release()
	}
}

// vim: foldmethod=marker
