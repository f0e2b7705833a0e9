// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import (
	"encoding/binary"

	"github.com/usbarmory/rv6/dma"
)

// NumDescriptors is the number of descriptors in the driver's single
// virtqueue, matching the teaching kernel's original fixed-size ring.
const NumDescriptors = 8

// Descriptor flags (legacy split virtqueue format).
const (
	DescFlagNext     = 1 << 0 // descriptor continues via Next
	DescFlagWrite    = 1 << 1 // device writes to Addr (otherwise reads)
	DescFlagIndirect = 1 << 2 // Addr points at a table of descriptors (unused by this driver)
)

const (
	descSize   = 16 // Addr(8) Len(4) Flags(2) Next(2)
	availFixed = 4  // Flags(2) Idx(2)
	usedFixed  = 4  // Flags(2) Idx(2)
	usedElem   = 8  // Id(4) Len(4)
)

// Queue is the memory layout of one legacy split virtqueue: a descriptor
// table, an available ring, and a used ring, allocated as a single
// contiguous, page-aligned DMA region exactly as the legacy transport
// requires.
//
// https://docs.oasis-open.org/virtio/virtio/v1.1/virtio-v1.1.html#x1-240006
type Queue struct {
	region *dma.Region
	addr   uint
	size   uint

	descOff  uint
	availOff uint
	usedOff  uint

	num      uint32
	align    uint32
	pageSize uint32
}

// queueLayout computes the byte offsets of the descriptor table, available
// ring and used ring within a num-descriptor legacy virtqueue whose used
// ring is aligned to align bytes, and the total size of that layout.
func queueLayout(num uint32, align uint32) (descOff, availOff, usedOff, size uint) {
	descOff = 0
	availOff = descOff + uint(num)*descSize
	usedUnaligned := availOff + availFixed + uint(num)*2

	a := uint(align)
	usedOff = (usedUnaligned + a - 1) &^ (a - 1)
	size = usedOff + usedFixed + uint(num)*usedElem

	return
}

// NewQueue allocates and zeroes a Queue of num descriptors within region,
// with the used ring aligned to align bytes (the value later passed to
// Device.SetQueue), addressed in units of pageSize for the PFN the legacy
// transport uses to describe the queue's location.
func NewQueue(region *dma.Region, num uint32, align uint32, pageSize uint32) *Queue {
	descOff, availOff, usedOff, size := queueLayout(num, align)

	addr, buf := region.Reserve(int(size), int(align))
	for i := range buf {
		buf[i] = 0
	}

	return &Queue{
		region:   region,
		addr:     addr,
		size:     size,
		descOff:  descOff,
		availOff: availOff,
		usedOff:  usedOff,
		num:      num,
		align:    align,
		pageSize: pageSize,
	}
}

// OpenQueue attaches a Queue view to existing queue memory at addr within
// region, as a device-side model does to read the same virtqueue its
// driver counterpart set up via NewQueue.
func OpenQueue(region *dma.Region, addr uint, num uint32, align uint32, pageSize uint32) *Queue {
	descOff, availOff, usedOff, size := queueLayout(num, align)

	return &Queue{
		region:   region,
		addr:     addr,
		size:     size,
		descOff:  descOff,
		availOff: availOff,
		usedOff:  usedOff,
		num:      num,
		align:    align,
		pageSize: pageSize,
	}
}

// Close releases the queue's backing memory.
func (q *Queue) Close() {
	q.region.Release(q.addr)
}

// Addr is the queue's base address within its DMA region.
func (q *Queue) Addr() uint {
	return q.addr
}

// PFN returns the guest-physical page number to hand the device via
// Device.SetQueue.
func (q *Queue) PFN() uint32 {
	return uint32(q.addr / uint(q.pageSize))
}

func (q *Queue) readAt(off uint, n int) []byte {
	buf := make([]byte, n)
	q.region.Read(q.addr, int(off), buf)
	return buf
}

func (q *Queue) writeAt(off uint, buf []byte) {
	q.region.Write(q.addr, int(off), buf)
}

// SetDesc writes descriptor i: addr/len describe the buffer, flags carries
// the DescFlag bits, next chains to the following descriptor when
// DescFlagNext is set.
func (q *Queue) SetDesc(i uint32, addr uint64, length uint32, flags uint16, next uint16) {
	buf := make([]byte, descSize)
	binary.LittleEndian.PutUint64(buf[0:8], addr)
	binary.LittleEndian.PutUint32(buf[8:12], length)
	binary.LittleEndian.PutUint16(buf[12:14], flags)
	binary.LittleEndian.PutUint16(buf[14:16], next)
	q.writeAt(q.descOff+uint(i)*descSize, buf)
}

// Desc reads descriptor i back out of the table.
func (q *Queue) Desc(i uint32) (addr uint64, length uint32, flags uint16, next uint16) {
	buf := q.readAt(q.descOff+uint(i)*descSize, descSize)
	return binary.LittleEndian.Uint64(buf[0:8]),
		binary.LittleEndian.Uint32(buf[8:12]),
		binary.LittleEndian.Uint16(buf[12:14]),
		binary.LittleEndian.Uint16(buf[14:16])
}

// AvailFlags returns the available ring's flags word.
func (q *Queue) AvailFlags() uint16 {
	return binary.LittleEndian.Uint16(q.readAt(q.availOff, 2))
}

// AvailIdx returns the available ring's idx counter: the number of
// descriptor chains ever published to the device, mod 2^16.
func (q *Queue) AvailIdx() uint16 {
	return binary.LittleEndian.Uint16(q.readAt(q.availOff+2, 2))
}

// SetAvailIdx sets the available ring's idx counter. The caller is
// responsible for any memory fence needed to order this write after the
// corresponding SetAvailRing call, per the virtio specification.
func (q *Queue) SetAvailIdx(idx uint16) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, idx)
	q.writeAt(q.availOff+2, buf)
}

// SetAvailRing publishes descriptor chain head desc at ring slot i mod num.
func (q *Queue) SetAvailRing(i uint16, desc uint16) {
	slot := uint(i%uint16(q.num)) * 2
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, desc)
	q.writeAt(q.availOff+availFixed+slot, buf)
}

// AvailRing returns the descriptor chain head published at available ring
// slot i mod num.
func (q *Queue) AvailRing(i uint16) uint16 {
	slot := uint(i%uint16(q.num)) * 2
	return binary.LittleEndian.Uint16(q.readAt(q.availOff+availFixed+slot, 2))
}

// UsedIdx returns the used ring's idx counter: the number of descriptor
// chains the device has completed, mod 2^16.
func (q *Queue) UsedIdx() uint16 {
	return binary.LittleEndian.Uint16(q.readAt(q.usedOff+2, 2))
}

// SetUsedIdx sets the used ring's idx counter.
func (q *Queue) SetUsedIdx(idx uint16) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, idx)
	q.writeAt(q.usedOff+2, buf)
}

// UsedRing returns the descriptor chain head and byte length the device
// wrote at used ring slot i mod num.
func (q *Queue) UsedRing(i uint16) (id uint32, length uint32) {
	slot := uint(i%uint16(q.num)) * usedElem
	buf := q.readAt(q.usedOff+usedFixed+slot, usedElem)
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8])
}

// SetUsedRing publishes completion (id, length) at used ring slot i mod num.
func (q *Queue) SetUsedRing(i uint16, id uint32, length uint32) {
	slot := uint(i%uint16(q.num)) * usedElem
	buf := make([]byte, usedElem)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	q.writeAt(q.usedOff+usedFixed+slot, buf)
}
