// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

// block is a contiguous span of a Region, identified by its offset from the
// region's start address. A block is either free (tracked on Region's free
// list) or in use (tracked in Region's usedBlocks map).
type block struct {
	// addr is the block's address, start-relative.
	addr uint
	// size is the block length in bytes.
	size uint
	// res distinguishes blocks handed out via Reserve/Release from
	// blocks handed out via Alloc/Free: the two must not be confused
	// when freeing, since a Reserve'd buffer is never memcopied into.
	res bool
}

func (b *block) read(r *Region, off uint, buf []byte) {
	copy(buf, r.mem[b.addr-r.start+off:])
}

func (b *block) write(r *Region, off uint, buf []byte) {
	copy(r.mem[b.addr-r.start+off:], buf)
}
