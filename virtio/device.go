// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

// Device drives the legacy VirtIO MMIO transport: status negotiation,
// feature negotiation, and queue setup. Disk embeds a Device and adds the
// block command protocol on top.
type Device struct {
	bus Bus
}

// NewDevice validates the magic value and transport version at bus and
// returns a Device wrapping it.
func NewDevice(bus Bus) (*Device, error) {
	d := &Device{bus: bus}

	if d.bus.Read32(regMagic) != virtioMagic {
		return nil, ErrNoDevice
	}

	if d.bus.Read32(regVersion) != 1 {
		return nil, ErrUnsupported
	}

	return d, nil
}

// DeviceID returns the virtio subsystem device ID (e.g. DeviceIDBlock).
func (d *Device) DeviceID() uint32 {
	return d.bus.Read32(regDeviceID)
}

// Reset clears the device status register, the first step of both initial
// setup and of recovering from a device failure.
func (d *Device) Reset() {
	d.bus.Write32(regStatus, 0)
}

// AddStatus ORs bits into the device status register.
func (d *Device) AddStatus(bits uint32) {
	d.bus.Write32(regStatus, d.bus.Read32(regStatus)|bits)
}

// Status returns the current device status register value.
func (d *Device) Status() uint32 {
	return d.bus.Read32(regStatus)
}

// NegotiateFeatures reads the device's offered feature bits, masks them
// against want (clearing the ring layout bits the legacy transport does not
// support), writes the result back as the accepted driver feature set, and
// returns what was accepted.
func (d *Device) NegotiateFeatures(want uint32) uint32 {
	offered := d.bus.Read32(regDeviceFeatures)
	accepted := negotiate(offered, want)
	d.bus.Write32(regDriverFeatures, accepted)
	return accepted
}

// SelectQueue selects virtual queue index idx for the SetQueueSize/SetQueue
// calls that follow.
func (d *Device) SelectQueue(idx uint32) {
	d.bus.Write32(regQueueSel, idx)
}

// MaxQueueSize returns the maximum size the device supports for the
// currently selected queue, or 0 if the queue does not exist.
func (d *Device) MaxQueueSize() uint32 {
	return d.bus.Read32(regQueueNumMax)
}

// SetQueue tells the device the currently selected queue has num
// descriptors and lives at the guest-physical page number pfn, using
// align as the used-ring alignment within that queue's memory (the legacy
// transport allocates descriptor table, available ring and used ring out
// of one contiguous, page-aligned span).
func (d *Device) SetQueue(num uint32, align uint32, pfn uint32) {
	d.bus.Write32(regQueueNum, num)
	d.bus.Write32(regQueueAlign, align)
	d.bus.Write32(regGuestPageSize, uint32(d.bus.PageSize()))
	d.bus.Write32(regQueuePFN, pfn)
}

// Notify tells the device that new descriptors are available on queue idx.
func (d *Device) Notify(idx uint32) {
	d.bus.Write32(regQueueNotify, idx)
}

// InterruptStatus returns the bitmask of events that raised the device's
// interrupt.
func (d *Device) InterruptStatus() uint32 {
	return d.bus.Read32(regInterruptStat)
}

// AckInterrupt acknowledges the given bits of the interrupt status.
func (d *Device) AckInterrupt(bits uint32) {
	d.bus.Write32(regInterruptACK, bits)
}

// Config returns the device-specific configuration space as raw bytes,
// starting at regConfig, n bytes long.
func (d *Device) Config(n uint) []byte {
	buf := make([]byte, n)
	for i := uint(0); i < n; i += 4 {
		v := d.bus.Read32(regConfig + i)
		buf[i] = byte(v)
		if i+1 < n {
			buf[i+1] = byte(v >> 8)
		}
		if i+2 < n {
			buf[i+2] = byte(v >> 16)
		}
		if i+3 < n {
			buf[i+3] = byte(v >> 24)
		}
	}
	return buf
}
