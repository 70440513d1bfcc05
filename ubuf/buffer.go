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

// Buffer is the common surface a uref holds its payload through, whatever
// the shape. Callers that need shape-specific access type-assert back to
// *Block, *Picture or *Sound.
type Buffer interface {
	// DupBuffer returns a second reference to the same storage, with the
	// usual copy-on-write discipline on the first write through either
	// reference.
	DupBuffer() Buffer
	// Release drops this reference to the storage.
	Release()
}

// DupBuffer implements Buffer.
func (b *Block) DupBuffer() Buffer { return b.Dup() }

// DupBuffer implements Buffer.
func (p *Picture) DupBuffer() Buffer { return p.Dup() }

// DupBuffer implements Buffer.
func (s *Sound) DupBuffer() Buffer { return s.Dup() }

// vim: foldmethod=marker
