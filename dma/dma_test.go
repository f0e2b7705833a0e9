// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"bytes"
	"testing"
)

func TestAllocFree(t *testing.T) {
	r := NewRegion(0x1000, 4096)

	buf := []byte("hello, rv6")
	addr := r.Alloc(buf, 0)

	if addr == 0 {
		t.Fatal("expected non-zero address")
	}

	out := make([]byte, len(buf))
	r.Read(addr, 0, out)

	if !bytes.Equal(buf, out) {
		t.Fatalf("read back %q, want %q", out, buf)
	}

	r.Free(addr)

	if _, ok := r.usedBlocks[addr]; ok {
		t.Fatal("block still tracked as used after Free")
	}
}

func TestAllocAlignment(t *testing.T) {
	r := NewRegion(0x2000, 4096)

	addr := r.Alloc([]byte{1, 2, 3, 4}, 64)

	if addr%64 != 0 {
		t.Fatalf("address %#x not aligned to 64", addr)
	}
}

func TestReserveRelease(t *testing.T) {
	r := NewRegion(0x3000, 4096)

	addr, buf := r.Reserve(16, 0)
	if len(buf) != 16 {
		t.Fatalf("got %d byte buffer, want 16", len(buf))
	}

	copy(buf, []byte("payload"))

	out := make([]byte, 16)
	r.Read(addr, 0, out)

	if !bytes.HasPrefix(out, []byte("payload")) {
		t.Fatalf("Read() overwrote a Reserve()'d buffer: %q", out)
	}

	r.Release(addr)

	// An Alloc'd block is freed with Free; a later Release of the same
	// address finds no block and does nothing.
	addr2 := r.Alloc([]byte("x"), 0)
	r.Free(addr2)
	r.Release(addr2)
}

func TestDefragReclaimsContiguousSpace(t *testing.T) {
	r := NewRegion(0x4000, 256)

	a := r.Alloc(make([]byte, 64), 0)
	b := r.Alloc(make([]byte, 64), 0)
	c := r.Alloc(make([]byte, 64), 0)

	r.Free(a)
	r.Free(b)
	r.Free(c)

	// The whole region should have recombined into a single free block,
	// so a single allocation spanning it must succeed.
	addr := r.Alloc(make([]byte, 256), 0)

	if addr != 0x4000 {
		t.Fatalf("got address %#x, want %#x after defrag", addr, 0x4000)
	}
}

func TestMmapRegionAllocFreeAndClose(t *testing.T) {
	r, err := NewMmapRegion(0x6000, 4096)
	if err != nil {
		t.Fatalf("NewMmapRegion() failed: %v", err)
	}

	buf := []byte("mmap-backed")
	addr := r.Alloc(buf, 0)

	out := make([]byte, len(buf))
	r.Read(addr, 0, out)

	if !bytes.Equal(buf, out) {
		t.Fatalf("read back %q, want %q", out, buf)
	}

	r.Free(addr)

	if err := r.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
}

func TestOutOfMemoryPanics(t *testing.T) {
	r := NewRegion(0x5000, 16)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-memory allocation")
		}
	}()

	r.Alloc(make([]byte, 17), 0)
}
