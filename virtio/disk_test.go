// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/usbarmory/rv6/dma"
	"golang.org/x/sync/errgroup"
)

// fakeBlockDevice is a software model of the far end of the wire: a legacy
// VirtIO block device that serves requests synchronously out of an
// in-memory disk image, entirely in terms of the same register and
// virtqueue wire format the real driver speaks. It exists so Disk can be
// exercised without a hypervisor or real hardware underneath it.
type fakeBlockDevice struct {
	mu sync.Mutex

	bus      *MemoryBus
	region   *dma.Region
	pageSize uint32

	queue     *Queue
	lastAvail uint16
	usedIdx   uint16

	sectors []byte

	// intr, if set, is invoked after the device has posted one or more
	// completions to the used ring, standing in for the platform's
	// interrupt dispatch.
	intr func()
}

func newFakeBlockDevice(region *dma.Region, sectorCount int) (*fakeBlockDevice, *MemoryBus) {
	bus := NewMemoryBus(0x200, 4096)

	fd := &fakeBlockDevice{
		bus:      bus,
		region:   region,
		pageSize: 4096,
		sectors:  make([]byte, sectorCount*BlockSize),
	}

	bus.Write32(regMagic, virtioMagic)
	bus.Write32(regVersion, 1)
	bus.Write32(regDeviceID, DeviceIDBlock)
	bus.Write32(regDeviceFeatures, 0)
	bus.Write32(regQueueNumMax, NumDescriptors)
	bus.OnNotify = fd.onNotify

	return fd, bus
}

func (fd *fakeBlockDevice) onNotify(uint32) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.queue == nil {
		pfn := fd.bus.Read32(regQueuePFN)
		addr := uint(pfn) * uint(fd.pageSize)
		fd.queue = OpenQueue(fd.region, addr, NumDescriptors, fd.pageSize, fd.pageSize)
	}

	q := fd.queue
	avail := q.AvailIdx()
	posted := false

	for fd.lastAvail != avail {
		head := q.AvailRing(fd.lastAvail)
		fd.lastAvail++

		hdrAddr, _, _, next1 := q.Desc(uint32(head))
		dataAddr, dataLen, _, next2 := q.Desc(uint32(next1))
		statusAddr, _, _, _ := q.Desc(uint32(next2))

		hdr := make([]byte, 16)
		fd.region.Read(uint(hdrAddr), 0, hdr)

		typ := binary.LittleEndian.Uint32(hdr[0:4])
		sector := binary.LittleEndian.Uint64(hdr[8:16])
		off := int(sector) * BlockSize

		status := byte(0)

		switch {
		case off < 0 || off+int(dataLen) > len(fd.sectors):
			status = 1
		case typ == BlockRequestOut:
			data := make([]byte, dataLen)
			fd.region.Read(uint(dataAddr), 0, data)
			copy(fd.sectors[off:], data)
		default:
			fd.region.Write(uint(dataAddr), 0, fd.sectors[off:off+int(dataLen)])
		}

		fd.region.Write(uint(statusAddr), 0, []byte{status})

		q.SetUsedRing(fd.usedIdx, uint32(head), dataLen)
		fd.usedIdx++
		q.SetUsedIdx(fd.usedIdx)

		fd.bus.Write32(regInterruptStat, fd.bus.Read32(regInterruptStat)|1)
		posted = true
	}

	if posted && fd.intr != nil {
		fd.intr()
	}
}

func newTestDisk(t *testing.T, sectorCount int) (*Disk, *fakeBlockDevice) {
	t.Helper()

	region := dma.NewRegion(0x10000, 1<<20)
	fd, bus := newFakeBlockDevice(region, sectorCount)

	d, err := Init(bus, region)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	fd.intr = d.Intr

	return d, fd
}

func TestInitNegotiatesBaselineFeatures(t *testing.T) {
	d, _ := newTestDisk(t, 16)

	if d.dev.Status()&StatusDriverOK == 0 {
		t.Fatal("expected StatusDriverOK to be set after Init")
	}
}

func TestInitRejectsWrongDeviceID(t *testing.T) {
	region := dma.NewRegion(0x20000, 1<<16)
	bus := NewMemoryBus(0x200, 4096)

	bus.Write32(regMagic, virtioMagic)
	bus.Write32(regVersion, 1)
	bus.Write32(regDeviceID, 9) // not a block device

	if _, err := Init(bus, region); err == nil {
		t.Fatal("expected error initializing a non-block device")
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	d, _ := newTestDisk(t, 16)

	want := bytes.Repeat([]byte{0xaa}, BlockSize)

	if err := d.ReadWrite(&Request{Sector: 3, Data: append([]byte(nil), want...), Write: true}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := make([]byte, BlockSize)
	if err := d.ReadWrite(&Request{Sector: 3, Data: got, Write: false}); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("read back mismatched data")
	}
}

func TestReadOfUnwrittenSectorReadsZero(t *testing.T) {
	d, _ := newTestDisk(t, 16)

	buf := bytes.Repeat([]byte{0xff}, BlockSize)
	if err := d.ReadWrite(&Request{Sector: 1, Data: buf, Write: false}); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if !bytes.Equal(buf, make([]byte, BlockSize)) {
		t.Fatal("expected unwritten sector to read back as zero")
	}
}

// TestOutOfRangeSectorPanics exercises the device's trusted-status contract:
// a nonzero completion status is a structural invariant violation, not a
// recoverable error, so ReadWrite panics rather than returning an error.
func TestOutOfRangeSectorPanics(t *testing.T) {
	d, _ := newTestDisk(t, 4)

	defer func() {
		if recover() == nil {
			t.Fatal("expected ReadWrite to panic on a nonzero device status")
		}
	}()

	d.ReadWrite(&Request{Sector: 999, Data: make([]byte, BlockSize), Write: false})
}

// TestConcurrentRequestsShareTheQueue drives more concurrent requests than
// there are descriptor slots (NumDescriptors/3), so some goroutines must
// wait in ReadWrite, after allocThree finds too few free slots, until
// another's free3 wakes them; every request must still complete correctly.
func TestConcurrentRequestsShareTheQueue(t *testing.T) {
	const sectors = 64

	d, _ := newTestDisk(t, sectors)

	var g errgroup.Group

	for i := 0; i < sectors; i++ {
		i := i
		g.Go(func() error {
			data := bytes.Repeat([]byte{byte(i)}, BlockSize)

			if err := d.ReadWrite(&Request{Sector: uint64(i), Data: data, Write: true}); err != nil {
				return fmt.Errorf("write sector %d: %w", i, err)
			}

			got := make([]byte, BlockSize)
			if err := d.ReadWrite(&Request{Sector: uint64(i), Data: got, Write: false}); err != nil {
				return fmt.Errorf("read sector %d: %w", i, err)
			}

			if !bytes.Equal(got, data) {
				return fmt.Errorf("sector %d round-tripped incorrectly", i)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
