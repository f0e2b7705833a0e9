// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/usbarmory/rv6/dma"
)

// BlockSize is the sector size this driver reads and writes in.
const BlockSize = 512

// Request is one block read or write.
type Request struct {
	// Sector is the 512-byte sector offset on the device.
	Sector uint64
	// Data is exactly BlockSize bytes. ReadWrite fills it from the
	// device on a read, and sends it to the device on a write.
	Data []byte
	// Write selects a write request; otherwise the request is a read.
	Write bool
}

// pendingRequest tracks one in-flight request between the goroutine that
// issued it and the interrupt handler that completes it. Its done channel
// is the "request completed" wait channel: distinct from descFreed, which
// is the device-wide "a descriptor slot became free" wait channel. The two
// must stay separate, since a goroutine blocked waiting for its own
// request to finish has no reason to wake every time some other request's
// descriptors are freed, and vice versa.
type pendingRequest struct {
	statusBuf []byte
	status    byte
	done      chan struct{}
}

// Disk is a legacy VirtIO block device driver: a single request virtqueue,
// a bitmap of free descriptor slots, and the sleep/wake discipline needed
// to let many goroutines share the one queue the hardware exposes.
type Disk struct {
	dev    *Device
	queue  *Queue
	region *dma.Region

	mu        sync.Mutex
	descFreed *sync.Cond
	free      [NumDescriptors]bool
	tokens    [NumDescriptors]*Descriptor

	headers  uint // DMA address of the NumDescriptors-slot out-header array
	pending  map[uint16]*pendingRequest
	lastUsed uint16
}

// Init brings up a legacy VirtIO block device reachable through bus,
// negotiating the minimal feature set this driver understands (no
// read-only, SCSI command passthrough, writeback config, or multiqueue
// support) and allocating its virtqueue and per-slot header storage out of
// region.
//
// https://docs.oasis-open.org/virtio/virtio/v1.1/virtio-v1.1.html#x1-920001 (device initialization)
func Init(bus Bus, region *dma.Region) (*Disk, error) {
	dev, err := NewDevice(bus)
	if err != nil {
		return nil, err
	}

	dev.Reset()
	dev.AddStatus(StatusAcknowledge)
	dev.AddStatus(StatusDriver)

	if dev.DeviceID() != DeviceIDBlock {
		dev.AddStatus(StatusFailed)
		return nil, fmt.Errorf("virtio: device ID %d is not a block device", dev.DeviceID())
	}

	// This driver speaks only the baseline block command set: refuse
	// every optional feature bit the device may advertise.
	dev.NegotiateFeatures(0)
	dev.AddStatus(StatusFeaturesOK)

	if dev.Status()&StatusFeaturesOK == 0 {
		dev.AddStatus(StatusFailed)
		return nil, fmt.Errorf("virtio: device rejected feature negotiation")
	}

	pageSize := uint32(bus.PageSize())
	queue := NewQueue(region, NumDescriptors, pageSize, pageSize)

	dev.SelectQueue(0)
	if max := dev.MaxQueueSize(); max != 0 && max < NumDescriptors {
		dev.AddStatus(StatusFailed)
		return nil, fmt.Errorf("virtio: queue 0 max size %d too small", max)
	}
	dev.SetQueue(NumDescriptors, pageSize, queue.PFN())
	dev.AddStatus(StatusDriverOK)

	headers, hdrBuf := region.Reserve(NumDescriptors*16, 0)
	for i := range hdrBuf {
		hdrBuf[i] = 0
	}

	d := &Disk{
		dev:     dev,
		queue:   queue,
		region:  region,
		headers: headers,
		pending: make(map[uint16]*pendingRequest),
	}
	d.descFreed = sync.NewCond(&d.mu)

	for i := range d.free {
		d.free[i] = true
	}

	return d, nil
}

// allocThree claims three free descriptor slots, for a request's
// header/data/status chain. Callers must hold d.mu. It returns ok == false,
// having claimed nothing, if fewer than three slots are currently free.
func (d *Disk) allocThree() (head, data, status *Descriptor, ok bool) {
	var idx [3]uint16
	n := 0

	for i := 0; i < NumDescriptors && n < 3; i++ {
		if d.free[i] {
			idx[n] = uint16(i)
			n++
		}
	}

	if n < 3 {
		return nil, nil, nil, false
	}

	for _, i := range idx {
		d.free[i] = false
	}

	head = newDescriptor(idx[0])
	data = newDescriptor(idx[1])
	status = newDescriptor(idx[2])

	d.tokens[idx[0]] = head
	d.tokens[idx[1]] = data
	d.tokens[idx[2]] = status

	return head, data, status, true
}

// free3 returns the given descriptor slots to the pool and wakes any
// goroutine in ReadWrite waiting for allocThree to succeed. Callers must
// hold d.mu.
func (d *Disk) free3(toks ...*Descriptor) {
	for _, t := range toks {
		d.free[t.idx] = true
		d.tokens[t.idx] = nil
		t.release()
	}
	d.descFreed.Broadcast()
}

// ReadWrite issues req and blocks until the device completes it, first
// waiting as long as needed for three free descriptors. It is safe to call
// concurrently from multiple goroutines: each call claims its own three
// descriptor slots and waits on its own completion channel.
func (d *Disk) ReadWrite(req *Request) error {
	if len(req.Data) != BlockSize {
		return fmt.Errorf("virtio: request data must be exactly %d bytes, got %d", BlockSize, len(req.Data))
	}

	d.mu.Lock()

	var head, data, status *Descriptor
	for {
		var ok bool
		head, data, status, ok = d.allocThree()
		if ok {
			break
		}
		d.descFreed.Wait()
	}

	typ := uint32(BlockRequestIn)
	if req.Write {
		typ = BlockRequestOut
	}

	hdrBuf := make([]byte, 16)
	binary.LittleEndian.PutUint32(hdrBuf[0:4], typ)
	binary.LittleEndian.PutUint64(hdrBuf[8:16], req.Sector)
	d.region.Write(d.headers, int(head.idx)*16, hdrBuf)

	var dataAddr uint
	if req.Write {
		dataAddr = d.region.Alloc(req.Data, 0)
	} else {
		dataAddr = d.region.Alloc(make([]byte, BlockSize), 0)
	}

	statusAddr, statusBuf := d.region.Reserve(1, 0)
	statusBuf[0] = 0xff

	dataFlags := uint16(DescFlagNext)
	if !req.Write {
		dataFlags |= DescFlagWrite
	}

	d.queue.SetDesc(uint32(head.idx), uint64(d.headers+uint(head.idx)*16), 16, DescFlagNext, data.idx)
	d.queue.SetDesc(uint32(data.idx), uint64(dataAddr), BlockSize, dataFlags, status.idx)
	d.queue.SetDesc(uint32(status.idx), uint64(statusAddr), 1, DescFlagWrite, 0)

	pr := &pendingRequest{statusBuf: statusBuf, done: make(chan struct{})}
	d.pending[head.idx] = pr

	availIdx := d.queue.AvailIdx()
	d.queue.SetAvailRing(availIdx, head.idx)
	d.queue.SetAvailIdx(availIdx + 1)

	d.mu.Unlock()

	// Notify after releasing the lock: on a real device this only
	// triggers an eventually-delivered interrupt, but a software device
	// model (as used in tests) may run the whole request synchronously
	// from within this call, including invoking Intr, which itself needs
	// d.mu.
	d.dev.Notify(0)

	<-pr.done

	d.mu.Lock()
	if !req.Write {
		d.region.Read(dataAddr, 0, req.Data)
	}
	d.region.Free(dataAddr)
	d.region.Release(statusAddr)
	delete(d.pending, head.idx)
	statusCode := pr.status
	d.free3(head, data, status)
	d.mu.Unlock()

	// The device is trusted: any nonzero status indicates either
	// corruption or a driver bug, not a condition the caller can
	// meaningfully recover from.
	if statusCode != 0 {
		panic(fmt.Sprintf("virtio: device reported I/O failure (status %d)", statusCode))
	}

	return nil
}

// Intr processes completed requests from the used ring. It must be called
// from whatever dispatches this device's interrupt (the software device
// model's synchronous notify callback in tests, a trap handler on bare
// metal).
func (d *Disk) Intr() {
	d.dev.AckInterrupt(d.dev.InterruptStatus())

	d.mu.Lock()
	defer d.mu.Unlock()

	for d.lastUsed != d.queue.UsedIdx() {
		id, _ := d.queue.UsedRing(d.lastUsed)
		head := uint16(id)

		if pr, ok := d.pending[head]; ok {
			pr.status = pr.statusBuf[0]
			close(pr.done)
		}

		d.lastUsed++
	}
}

// Close releases the disk's header storage and virtqueue memory.
func (d *Disk) Close() {
	d.region.Release(d.headers)
	d.queue.Close()
}
