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

// Package umem is the page-aligned memory pool ubuf allocators draw from.
//
// Rather than handing every ubuf a freshly make()'d slice, a Pool carves
// fixed-size slabs out of pages obtained from the kernel with an anonymous
// unix.Mmap, and recycles them through a freelist once released. This
// mirrors how a zero-copy capture pipeline (go4vl's MapMemoryBuffer) avoids
// the allocator and page faults on the hot path: the pages are touched and
// resident once, then reused for the life of the process.
package umem

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Slab is a single fixed-size allocation handed out by a Pool. Its Bytes
// slice is only valid between a successful Pool.Get and the matching
// Pool.Put; using it afterwards is a use-after-free.
type Slab struct {
	Bytes []byte
	pool  *Pool
}

// Pool is a fixed-slab-size allocator backed by page-aligned anonymous
// mappings. The zero value is not usable; construct one with NewPool.
//
// Pool is safe for concurrent use. Each goroutine's sync.Pool shard acts as
// a thread-local freelist in front of the shared arena;
// sync.Pool already does per-P (effectively per-OS-thread) caching with a
// shared fallback, which is the same shape as upipe's umem_pool thread-local
// free lists backed by a shared mmap arena.
type Pool struct {
	slabSize int
	pageSize int
	free     sync.Pool
	mu       sync.Mutex
	arenas   [][]byte
}

// NewPool returns a Pool handing out slabs of exactly slabSize bytes, each
// carved from page-aligned mmap arenas. The first arena is sized to
// arenaSlabs slabs; every later arena, mapped by Get when the freelist
// runs dry, is sized to 64 slabs whatever arenaSlabs was.
func NewPool(slabSize, arenaSlabs int) (*Pool, error) {
	if slabSize <= 0 {
		return nil, fmt.Errorf("umem: slab size must be positive")
	}
	if arenaSlabs <= 0 {
		arenaSlabs = 64
	}
	p := &Pool{
		slabSize: slabSize,
		pageSize: unix.Getpagesize(),
	}
	p.free.New = func() any { return nil }
	if err := p.growLocked(arenaSlabs); err != nil {
		return nil, err
	}
	return p, nil
}

func pageAlign(n, pageSize int) int {
	return (n + pageSize - 1) / pageSize * pageSize
}

// growLocked maps one more arena of count slabs and seeds the freelist with
// its slices. Callers must hold p.mu.
func (p *Pool) growLocked(count int) error {
	size := pageAlign(p.slabSize*count, p.pageSize)
	arena, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("umem: mmap arena: %w", err)
	}
	p.arenas = append(p.arenas, arena)
	for off := 0; off+p.slabSize <= size; off += p.slabSize {
		p.free.Put(arena[off : off+p.slabSize : off+p.slabSize])
	}
	return nil
}

// Get returns a Slab of exactly the pool's slab size. The bytes are not
// zeroed; callers that need a clean buffer must zero it themselves (most
// ubuf consumers overwrite every byte they use before reading it back, so
// the common case skips that cost).
func (p *Pool) Get() *Slab {
	v := p.free.Get()
	buf, _ := v.([]byte)
	if buf == nil {
		p.mu.Lock()
		if err := p.growLocked(64); err == nil {
			v = p.free.Get()
			buf, _ = v.([]byte)
		}
		p.mu.Unlock()
	}
	if buf == nil {
		// Fall back to a heap slab rather than fail the allocation; it will
		// simply not be mmap-backed, and Put returns it to the freelist
		// like any other slab.
		buf = make([]byte, p.slabSize)
	}
	return &Slab{Bytes: buf, pool: p}
}

// Put returns a Slab to its pool's freelist. It is a no-op if s is nil.
// Calling Put twice on the same Slab, or using s.Bytes afterwards, is a
// contract violation left to the caller to avoid (ubuf's refcount is what
// guarantees exactly one Put per Get in practice).
func (s *Slab) Put() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.free.Put(s.Bytes)
	s.pool = nil
	s.Bytes = nil
}

// SlabSize returns the fixed size of every Slab this Pool hands out.
func (p *Pool) SlabSize() int {
	return p.slabSize
}

// Close unmaps every arena the pool has allocated. It must only be called
// once every Slab obtained from the pool has been returned via Put, and the
// pool must not be used afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, arena := range p.arenas {
		if err := unix.Munmap(arena); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("umem: munmap arena: %w", err)
		}
	}
	p.arenas = nil
	return firstErr
}

// vim: foldmethod=marker
