// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma provides a first-fit allocator over a fixed span of memory,
// used by the virtio block driver to place descriptor rings and I/O buffers
// at addresses a device can address directly.
//
// The source design backs a Region with real physical memory addressed
// through unsafe.Pointer, since it only ever runs bare metal on an actual
// SoC. rv6 targets a device model that may run as an ordinary Go process (for
// tests, and for development against a software-emulated block device), so a
// Region here is backed by a plain Go byte slice standing in for a span of
// guest-physical memory; "addresses" handed out by Alloc/Reserve are offsets
// into that slice, shifted by the region's configured start address so they
// still round-trip correctly through the wire formats in the virtio package.
package dma

import (
	"container/list"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Region represents a span of memory allocated for DMA purposes.
type Region struct {
	sync.Mutex

	start uint
	size  uint
	mem   []byte

	freeBlocks *list.List
	usedBlocks map[uint]*block
}

var dma *Region

// NewRegion creates a Region of size bytes addressed starting at start. The
// returned Region owns its own backing memory; it is not aliased to any
// other Region.
func NewRegion(start uint, size uint) *Region {
	r := &Region{
		start:      start,
		size:       size,
		mem:        make([]byte, size),
		freeBlocks: list.New(),
		usedBlocks: make(map[uint]*block),
	}

	r.freeBlocks.PushBack(&block{addr: start, size: size})

	return r
}

// NewMmapRegion behaves like NewRegion, but backs the simulated
// guest-physical span with an anonymous mmap instead of a heap slice. This
// gets the simulated region onto its own page-aligned mapping, closer to how
// the source design's Region sits on physical memory the CPU's MMU maps
// directly, and lets Close unmap it explicitly rather than waiting on the
// garbage collector.
func NewMmapRegion(start uint, size uint) (*Region, error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("dma: mmap region: %w", err)
	}

	r := &Region{
		start:      start,
		size:       size,
		mem:        mem,
		freeBlocks: list.New(),
		usedBlocks: make(map[uint]*block),
	}

	r.freeBlocks.PushBack(&block{addr: start, size: size})

	return r, nil
}

// Close unmaps a Region created with NewMmapRegion. It must not be called on
// a Region created with NewRegion.
func (r *Region) Close() error {
	return unix.Munmap(r.mem)
}

// Init installs r as the package-level default Region, used by the
// package-level Reserve/Alloc/Read/Write/Free/Release/Reserved functions.
func Init(r *Region) {
	dma = r
}

// Default returns the package-level default Region installed by Init.
func Default() *Region {
	return dma
}

// Start returns the region's start address.
func (r *Region) Start() uint {
	return r.start
}

// End returns the address one past the region's last byte.
func (r *Region) End() uint {
	return r.start + r.size
}

// Size returns the region size in bytes.
func (r *Region) Size() uint {
	return r.size
}

// Reserve allocates size bytes within the region, with optional alignment,
// and returns a slice aliasing the allocation along with its address. The
// buffer contents are uninitialized. It is freed with Release.
//
// Reserving buffers with Reserve allows a caller to pre-allocate DMA memory,
// avoiding copies when performance matters: Alloc and Read return without
// copying when passed a buffer obtained from Reserve.
//
// The optional alignment must be a power of 2; word alignment (4) is always
// enforced when align is 0.
func (r *Region) Reserve(size int, align int) (addr uint, buf []byte) {
	if size == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b := r.alloc(uint(size), uint(align))
	b.res = true
	r.usedBlocks[b.addr] = b

	off := b.addr - r.start
	return b.addr, r.mem[off : off+uint(size) : off+uint(size)]
}

// Reserved reports whether buf aliases memory within r, returning the
// address the memory was allocated at if so.
func (r *Region) Reserved(buf []byte) (res bool, addr uint) {
	if len(buf) == 0 {
		return false, 0
	}

	for a, b := range r.usedBlocks {
		off := a - r.start
		if off+b.size <= uint(len(r.mem)) && sameBacking(r.mem[off:off+b.size], buf) {
			return true, a
		}
	}

	return false, 0
}

func sameBacking(a, b []byte) bool {
	if len(a) < len(b) || len(b) == 0 {
		return false
	}
	return &a[0] == &b[0]
}

// Alloc copies buf into a newly allocated region of memory, with optional
// alignment, and returns its address. The allocation is freed with Free.
//
// If buf was itself obtained from Reserve, its existing address is returned
// without any further allocation or copy.
func (r *Region) Alloc(buf []byte, align int) (addr uint) {
	size := len(buf)
	if size == 0 {
		return 0
	}

	if res, addr := r.Reserved(buf); res {
		return addr
	}

	r.Lock()
	defer r.Unlock()

	b := r.alloc(uint(size), uint(align))
	b.write(r, 0, buf)
	r.usedBlocks[b.addr] = b

	return b.addr
}

// Read copies len(buf) bytes from addr (previously returned by Alloc) into
// buf. It panics if addr or the [off, off+len(buf)) span is not within the
// original allocation.
//
// If buf was obtained from Reserve, Read returns without copying, since the
// caller is assumed to keep that memory updated directly.
func (r *Region) Read(addr uint, off int, buf []byte) {
	size := len(buf)
	if addr == 0 || size == 0 {
		return
	}

	if res, _ := r.Reserved(buf); res {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok {
		panic("dma: read of unallocated address")
	}

	if uint(off+size) > b.size {
		panic(fmt.Sprintf("dma: read out of bounds for block of size %d", b.size))
	}

	b.read(r, uint(off), buf)
}

// Write copies buf into the allocation at addr (previously returned by
// Alloc or Reserve), at offset off. It panics if the span is not within the
// original allocation.
func (r *Region) Write(addr uint, off int, buf []byte) {
	size := len(buf)
	if addr == 0 || size == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok {
		return
	}

	if uint(off+size) > b.size {
		panic(fmt.Sprintf("dma: write out of bounds for block of size %d", b.size))
	}

	b.write(r, uint(off), buf)
}

// Free releases the allocation at addr, previously returned by Alloc.
func (r *Region) Free(addr uint) {
	r.freeBlock(addr, false)
}

// Release releases the allocation at addr, previously returned by Reserve.
func (r *Region) Release(addr uint) {
	r.freeBlock(addr, true)
}

// defrag merges adjacent free blocks, keeping the free list from
// fragmenting into ever-smaller unusable spans.
func (r *Region) defrag() {
	var prev *block

	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if prev != nil && prev.addr+prev.size == b.addr {
			prev.size += b.size
			defer r.freeBlocks.Remove(e)
			continue
		}

		prev = b
	}
}

func (r *Region) alloc(size uint, align uint) *block {
	var e *list.Element
	var freeBlock *block
	var pad uint

	if align == 0 {
		align = 4
	}

	for e = r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		pad = -b.addr & (align - 1)

		if b.size >= size+pad {
			freeBlock = b
			break
		}
	}

	if freeBlock == nil {
		panic("dma: out of memory")
	}

	defer r.freeBlocks.Remove(e)

	if rem := freeBlock.size - (size + pad); rem != 0 {
		r.freeBlocks.InsertAfter(&block{addr: freeBlock.addr + size + pad, size: rem}, e)
	}

	if pad != 0 {
		r.freeBlocks.InsertBefore(&block{addr: freeBlock.addr, size: pad}, e)
		freeBlock.addr += pad
	}

	freeBlock.size = size

	return freeBlock
}

func (r *Region) free(usedBlock *block) {
	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if b.addr > usedBlock.addr {
			r.freeBlocks.InsertBefore(usedBlock, e)
			r.defrag()
			return
		}
	}

	r.freeBlocks.PushBack(usedBlock)
	r.defrag()
}

func (r *Region) freeBlock(addr uint, res bool) {
	if addr == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok {
		return
	}

	if b.res != res {
		return
	}

	r.free(b)
	delete(r.usedBlocks, addr)
}

// Reserve allocates within the package-level default Region.
func Reserve(size int, align int) (uint, []byte) { return dma.Reserve(size, align) }

// Reserved reports whether buf was allocated within the package-level
// default Region.
func Reserved(buf []byte) (bool, uint) { return dma.Reserved(buf) }

// Alloc allocates within the package-level default Region.
func Alloc(buf []byte, align int) uint { return dma.Alloc(buf, align) }

// Read reads from the package-level default Region.
func Read(addr uint, off int, buf []byte) { dma.Read(addr, off, buf) }

// Write writes to the package-level default Region.
func Write(addr uint, off int, buf []byte) { dma.Write(addr, off, buf) }

// Free releases within the package-level default Region.
func Free(addr uint) { dma.Free(addr) }

// Release releases within the package-level default Region.
func Release(addr uint) { dma.Release(addr) }
