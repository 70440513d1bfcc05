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

package uref

import (
	"fmt"

	"github.com/quarium/upipe/udict"
	"github.com/quarium/upipe/uerror"
)

// Attributes specific to MPEG transport stream flows. A TS demuxer sets
// the PID on each elementary flow it splits out; PSI consumers register a
// (value, mask) filter over section headers.

// TsPid returns the flow's transport stream packet identifier, if set.
func (u *Uref) TsPid() (uint64, bool) {
	return u.dict.GetUnsigned("ts.pid")
}

// SetTsPid sets the flow's transport stream packet identifier. PIDs are
// 13-bit values.
func (u *Uref) SetTsPid(pid uint64) error {
	if pid > 0x1fff {
		return fmt.Errorf("uref: %w: TS PID %d out of range", uerror.Invalid, pid)
	}
	return u.dict.SetUnsigned("ts.pid", pid)
}

// TsOctetRate returns the flow's nominal octet rate, if set.
func (u *Uref) TsOctetRate() (uint64, bool) {
	return u.dict.GetUnsigned("ts.octetrate")
}

// SetTsOctetRate sets the flow's nominal octet rate.
func (u *Uref) SetTsOctetRate(rate uint64) error {
	return u.dict.SetUnsigned("ts.octetrate", rate)
}

// PsiFilter returns the PSI section filter as parallel value and mask byte
// strings, if set. A section matches when section[i] & mask[i] == value[i]
// for every i.
func (u *Uref) PsiFilter() (value, mask []byte, ok bool) {
	v, vok := u.dict.Get(udict.Opaque, "ts.psi.filter")
	m, mok := u.dict.Get(udict.Opaque, "ts.psi.mask")
	if !vok || !mok {
		return nil, nil, false
	}
	return v.([]byte), m.([]byte), true
}

// SetPsiFilter sets the PSI section filter. value and mask must be the
// same length.
func (u *Uref) SetPsiFilter(value, mask []byte) error {
	if len(value) != len(mask) {
		return fmt.Errorf("uref: %w: PSI filter value and mask lengths differ", uerror.Invalid)
	}
	if err := u.dict.Set(udict.Opaque, "ts.psi.filter", append([]byte(nil), value...)); err != nil {
		return err
	}
	return u.dict.Set(udict.Opaque, "ts.psi.mask", append([]byte(nil), mask...))
}

// vim: foldmethod=marker
