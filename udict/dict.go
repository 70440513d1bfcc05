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

// Package udict is the packed, ordered attribute dictionary embedded in
// every uref. Attributes are keyed by (Type, name) and held in insertion
// order as a list of decoded records, so that Dup is a cheap slice-header
// copy and only the first mutation after a Dup pays for a private copy.
// The packed byte form exists only as the output of Pack and the input of
// Unpack; it is not the in-memory storage.
//
// A small fixed set of hot attribute names (flow.def, flow.id, ...) are
// recognised and packed behind a one-byte shorthand tag instead of their
// full string name, the way streaming pipelines in practice touch the same
// handful of attributes on every uref.
package udict

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/quarium/upipe/uerror"
)

// Type identifies the on-wire representation of an attribute's value.
type Type uint8

const (
	Void Type = iota
	Bool
	SmallUnsigned // uint8
	SmallInt      // int8
	Unsigned      // uint64
	Int           // int64
	Float         // float64
	String
	Opaque
	Ratio
)

// Rational is the value type for the Ratio attribute kind.
type Rational struct {
	Num, Den int64
}

// shorthand is the reserved set of single-byte name codes for hot
// attributes. 0 is reserved to mean "no shorthand, string name follows".
const (
	shorthandNone byte = iota
	shorthandFlowDef
	shorthandFlowID
	shorthandFlowRawDef
	shorthandFlowRate
	shorthandFlowLatency
	shorthandCr
	shorthandPtsOrig
	shorthandDtsOrig
	shorthandTsPid
)

var nameToShorthand = map[string]byte{
	"flow.def":     shorthandFlowDef,
	"flow.id":      shorthandFlowID,
	"flow.rawdef":  shorthandFlowRawDef,
	"flow.rate":    shorthandFlowRate,
	"flow.latency": shorthandFlowLatency,
	"cr":           shorthandCr,
	"pts_orig":     shorthandPtsOrig,
	"dts_orig":     shorthandDtsOrig,
	"ts.pid":       shorthandTsPid,
}

var shorthandToName = func() map[byte]string {
	m := make(map[byte]string, len(nameToShorthand))
	for name, code := range nameToShorthand {
		m[code] = name
	}
	return m
}()

// record is the decoded form of one packed attribute entry.
type record struct {
	typ   Type
	name  string
	value any
}

// Dict is an ordered (Type, name) -> value map. The zero value is an empty,
// ready-to-use dictionary.
//
// Dict is a value type so it can be embedded directly in a uref without an
// extra pointer indirection; copying a Dict by assignment copies the slice
// header, so both copies alias the same backing array without the
// copy-on-write protection Dup sets up — Dup is the supported way to get a
// cheap, explicitly COW-aware second reference; see Dup's doc comment.
type Dict struct {
	records []record
	owned   bool
}

// Get returns the value stored for (t, name), or (nil, false) if absent.
func (d Dict) Get(t Type, name string) (any, bool) {
	for i := range d.records {
		if d.records[i].typ == t && d.records[i].name == name {
			return d.records[i].value, true
		}
	}
	return nil, false
}

// Set stores value under (t, name), overwriting any existing entry of the
// same (t, name) in place, or appending a new entry at the end of the
// insertion order. If this Dict's storage is currently shared with another
// Dict (via Dup), Set first materialises a private copy.
func (d *Dict) Set(t Type, name string, value any) error {
	if err := checkValue(t, value); err != nil {
		return err
	}
	d.cow()
	for i := range d.records {
		if d.records[i].typ == t && d.records[i].name == name {
			d.records[i].value = value
			return nil
		}
	}
	d.records = append(d.records, record{typ: t, name: name, value: value})
	return nil
}

// Delete removes the (t, name) entry, if present, compacting the remaining
// entries to preserve insertion order. It reports whether an entry was
// removed.
func (d *Dict) Delete(t Type, name string) bool {
	for i := range d.records {
		if d.records[i].typ == t && d.records[i].name == name {
			d.cow()
			d.records = append(d.records[:i:i], d.records[i+1:]...)
			return true
		}
	}
	return false
}

// Each calls fn once per attribute, in insertion order.
func (d Dict) Each(fn func(t Type, name string, value any)) {
	for i := range d.records {
		fn(d.records[i].typ, d.records[i].name, d.records[i].value)
	}
}

// Len returns the number of attributes currently stored.
func (d Dict) Len() int {
	return len(d.records)
}

// Import copies every attribute from other into d, in other's insertion
// order, overwriting any (type, name) collisions with other's value.
func (d *Dict) Import(other Dict) {
	other.Each(func(t Type, name string, value any) {
		_ = d.Set(t, name, value)
	})
}

// Dup returns a second reference to d's storage that shares the backing
// array until either copy is next mutated (Set or Delete), at which point
// that copy alone pays for a private copy (classic copy-on-write). Both the
// receiver and the returned Dict are marked un-owned by this call, since
// the backing array now has two holders.
func (d *Dict) Dup() Dict {
	d.owned = false
	return Dict{records: d.records, owned: false}
}

// cow materialises a private copy of d.records if it might currently be
// shared with another Dict (i.e. was produced by, or is the source of, a
// Dup that hasn't since been exclusively mutated).
func (d *Dict) cow() {
	if d.owned {
		return
	}
	cp := make([]record, len(d.records))
	copy(cp, d.records)
	d.records = cp
	d.owned = true
}

func checkValue(t Type, value any) error {
	switch t {
	case Void:
		if value != nil {
			return fmt.Errorf("udict: %w: void attribute must carry a nil value", uerror.Invalid)
		}
	case Bool:
		if _, ok := value.(bool); !ok {
			return typeMismatch(t, value)
		}
	case SmallUnsigned:
		if _, ok := value.(uint8); !ok {
			return typeMismatch(t, value)
		}
	case SmallInt:
		if _, ok := value.(int8); !ok {
			return typeMismatch(t, value)
		}
	case Unsigned:
		if _, ok := value.(uint64); !ok {
			return typeMismatch(t, value)
		}
	case Int:
		if _, ok := value.(int64); !ok {
			return typeMismatch(t, value)
		}
	case Float:
		if _, ok := value.(float64); !ok {
			return typeMismatch(t, value)
		}
	case String:
		if _, ok := value.(string); !ok {
			return typeMismatch(t, value)
		}
	case Opaque:
		if _, ok := value.([]byte); !ok {
			return typeMismatch(t, value)
		}
	case Ratio:
		if _, ok := value.(Rational); !ok {
			return typeMismatch(t, value)
		}
	default:
		return fmt.Errorf("udict: %w: unknown attribute type %d", uerror.Invalid, t)
	}
	return nil
}

func typeMismatch(t Type, value any) error {
	return fmt.Errorf("udict: %w: value %v does not match attribute type %d", uerror.Invalid, value, t)
}

// Pack serialises d into the packed on-wire block format: a sequence of
// records, each a one-byte shorthand-or-zero tag (optionally followed by a
// varint-length-prefixed name string when zero), a one-byte type tag, and a
// type-specific value encoding. Get/Set/Delete/Each all operate on the
// decoded record list for simplicity and only pay the packing cost when a
// Dict actually needs to cross a boundary that wants the block form (e.g.
// a udict manager persisting it into a ubuf.Block).
func (d Dict) Pack() []byte {
	var out []byte
	for _, r := range d.records {
		out = appendRecord(out, r)
	}
	return out
}

func appendRecord(out []byte, r record) []byte {
	if code, ok := nameToShorthand[r.name]; ok {
		out = append(out, code)
	} else {
		out = append(out, shorthandNone)
		out = appendUvarint(out, uint64(len(r.name)))
		out = append(out, r.name...)
	}
	out = append(out, byte(r.typ))
	switch r.typ {
	case Void:
	case Bool:
		v := r.value.(bool)
		if v {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case SmallUnsigned:
		out = append(out, r.value.(uint8))
	case SmallInt:
		out = append(out, byte(r.value.(int8)))
	case Unsigned:
		out = binary.BigEndian.AppendUint64(out, r.value.(uint64))
	case Int:
		out = binary.BigEndian.AppendUint64(out, uint64(r.value.(int64)))
	case Float:
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(r.value.(float64)))
	case String:
		s := r.value.(string)
		out = appendUvarint(out, uint64(len(s)))
		out = append(out, s...)
	case Opaque:
		b := r.value.([]byte)
		out = appendUvarint(out, uint64(len(b)))
		out = append(out, b...)
	case Ratio:
		v := r.value.(Rational)
		out = binary.BigEndian.AppendUint64(out, uint64(v.Num))
		out = binary.BigEndian.AppendUint64(out, uint64(v.Den))
	}
	return out
}

func appendUvarint(out []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(out, buf[:n]...)
}

// Unpack returns a new Dict holding the attributes packed in buf by Pack.
// It returns uerror.Invalid wrapped in an error if buf is malformed.
func Unpack(buf []byte) (Dict, error) {
	var d Dict
	d.owned = true
	for len(buf) > 0 {
		code := buf[0]
		buf = buf[1:]
		var name string
		if code == shorthandNone {
			n, rest, err := readUvarint(buf)
			if err != nil {
				return Dict{}, err
			}
			buf = rest
			if uint64(len(buf)) < n {
				return Dict{}, fmt.Errorf("udict: %w: truncated attribute name", uerror.Invalid)
			}
			name = string(buf[:n])
			buf = buf[n:]
		} else {
			var ok bool
			name, ok = shorthandToName[code]
			if !ok {
				return Dict{}, fmt.Errorf("udict: %w: unknown shorthand code %d", uerror.Invalid, code)
			}
		}
		if len(buf) < 1 {
			return Dict{}, fmt.Errorf("udict: %w: truncated attribute type", uerror.Invalid)
		}
		typ := Type(buf[0])
		buf = buf[1:]

		var value any
		switch typ {
		case Void:
		case Bool:
			if len(buf) < 1 {
				return Dict{}, fmt.Errorf("udict: %w: truncated bool value", uerror.Invalid)
			}
			value = buf[0] != 0
			buf = buf[1:]
		case SmallUnsigned:
			if len(buf) < 1 {
				return Dict{}, fmt.Errorf("udict: %w: truncated u8 value", uerror.Invalid)
			}
			value = buf[0]
			buf = buf[1:]
		case SmallInt:
			if len(buf) < 1 {
				return Dict{}, fmt.Errorf("udict: %w: truncated i8 value", uerror.Invalid)
			}
			value = int8(buf[0])
			buf = buf[1:]
		case Unsigned:
			if len(buf) < 8 {
				return Dict{}, fmt.Errorf("udict: %w: truncated u64 value", uerror.Invalid)
			}
			value = binary.BigEndian.Uint64(buf)
			buf = buf[8:]
		case Int:
			if len(buf) < 8 {
				return Dict{}, fmt.Errorf("udict: %w: truncated i64 value", uerror.Invalid)
			}
			value = int64(binary.BigEndian.Uint64(buf))
			buf = buf[8:]
		case Float:
			if len(buf) < 8 {
				return Dict{}, fmt.Errorf("udict: %w: truncated f64 value", uerror.Invalid)
			}
			value = math.Float64frombits(binary.BigEndian.Uint64(buf))
			buf = buf[8:]
		case String:
			n, rest, err := readUvarint(buf)
			if err != nil {
				return Dict{}, err
			}
			buf = rest
			if uint64(len(buf)) < n {
				return Dict{}, fmt.Errorf("udict: %w: truncated string value", uerror.Invalid)
			}
			value = string(buf[:n])
			buf = buf[n:]
		case Opaque:
			n, rest, err := readUvarint(buf)
			if err != nil {
				return Dict{}, err
			}
			buf = rest
			if uint64(len(buf)) < n {
				return Dict{}, fmt.Errorf("udict: %w: truncated opaque value", uerror.Invalid)
			}
			value = append([]byte(nil), buf[:n]...)
			buf = buf[n:]
		case Ratio:
			if len(buf) < 16 {
				return Dict{}, fmt.Errorf("udict: %w: truncated rational value", uerror.Invalid)
			}
			value = Rational{
				Num: int64(binary.BigEndian.Uint64(buf[:8])),
				Den: int64(binary.BigEndian.Uint64(buf[8:16])),
			}
			buf = buf[16:]
		default:
			return Dict{}, fmt.Errorf("udict: %w: unknown attribute type %d", uerror.Invalid, typ)
		}
		d.records = append(d.records, record{typ: typ, name: name, value: value})
	}
	return d, nil
}

func readUvarint(buf []byte) (uint64, []byte, error) {
	n, size := binary.Uvarint(buf)
	if size <= 0 {
		return 0, nil, fmt.Errorf("udict: %w: malformed length varint", uerror.Invalid)
	}
	return n, buf[size:], nil
}

// vim: foldmethod=marker
