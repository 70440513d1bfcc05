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

package udict

// The functions below are thin, typed convenience wrappers over the handful
// of hot attributes every flow definition touches. They exist the way the
// original project generates one accessor pair per UREF_ATTR_* attribute:
// callers spell out the attribute they want instead of threading Type
// values and interface{} conversions through every call site.

// GetString returns the string attribute name, if present.
func (d Dict) GetString(name string) (string, bool) {
	v, ok := d.Get(String, name)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// SetString sets the string attribute name.
func (d *Dict) SetString(name, value string) error {
	return d.Set(String, name, value)
}

// GetUnsigned returns the unsigned attribute name, if present.
func (d Dict) GetUnsigned(name string) (uint64, bool) {
	v, ok := d.Get(Unsigned, name)
	if !ok {
		return 0, false
	}
	return v.(uint64), true
}

// SetUnsigned sets the unsigned attribute name.
func (d *Dict) SetUnsigned(name string, value uint64) error {
	return d.Set(Unsigned, name, value)
}

// GetRational returns the rational attribute name, if present.
func (d Dict) GetRational(name string) (Rational, bool) {
	v, ok := d.Get(Ratio, name)
	if !ok {
		return Rational{}, false
	}
	return v.(Rational), true
}

// SetRational sets the rational attribute name.
func (d *Dict) SetRational(name string, value Rational) error {
	return d.Set(Ratio, name, value)
}

// vim: foldmethod=marker
