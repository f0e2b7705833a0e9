// Legacy VirtIO block driver
// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package virtio implements a legacy (pre-1.0, "version 1") VirtIO transport
// and the block device driver built on top of it: MMIO register access,
// feature negotiation, the split virtqueue wire format, and the disk
// read/write/interrupt protocol a teaching kernel uses to talk to a
// virtio-blk device.
//
// https://wiki.osdev.org/Virtio
// https://docs.oasis-open.org/virtio/virtio/v1.1/virtio-v1.1.html (legacy interface, section 4.2.4)
package virtio

import "errors"

// MMIO register offsets, legacy (pre-1.0) interface.
const (
	regMagic          = 0x000 // R  "virt" magic value
	regVersion        = 0x004 // R  device version (1 == legacy)
	regDeviceID       = 0x008 // R  virtio subsystem device ID
	regVendorID       = 0x00c // R  vendor ID
	regDeviceFeatures = 0x010 // R  device feature bits, 32 at a time (select via regDeviceFeatSel)
	regDeviceFeatSel  = 0x014 // W  device feature bits selector
	regDriverFeatures = 0x020 // W  driver (guest) feature bits
	regDriverFeatSel  = 0x024 // W  driver feature bits selector
	regGuestPageSize  = 0x028 // W  legacy only: guest page size in bytes
	regQueueSel       = 0x030 // W  virtual queue index
	regQueueNumMax    = 0x034 // R  max size of the currently selected queue
	regQueueNum       = 0x038 // W  size of the currently selected queue
	regQueueAlign     = 0x03c // W  legacy only: used ring alignment
	regQueuePFN       = 0x040 // RW legacy only: guest physical page number of the queue
	regQueueNotify    = 0x050 // W  queue index to notify the device about
	regInterruptStat  = 0x060 // R  bitmask of events that caused the interrupt
	regInterruptACK   = 0x064 // W  acknowledge bits in regInterruptStat
	regStatus         = 0x070 // RW device status bits
	regConfig         = 0x100 // device-specific configuration space
)

const virtioMagic = 0x74726976 // "virt"

// Device status bits (regStatus).
const (
	StatusAcknowledge = 1 << 0 // guest has noticed the device
	StatusDriver      = 1 << 1 // guest knows how to drive the device
	StatusDriverOK    = 1 << 2 // driver is set up and ready
	StatusFeaturesOK  = 1 << 3 // feature negotiation complete
	StatusFailed      = 1 << 7 // something went irrecoverably wrong
)

// Reserved/transport feature bits common to all device types, within the
// low 32-bit feature selector window the legacy interface negotiates.
const (
	FeatureAnyLayout        = 1 << 27
	FeatureRingIndirectDesc = 1 << 28
	FeatureRingEventIdx     = 1 << 29
)

// Block device (type 2) feature and config bits.
const (
	BlockF_RO        = 1 << 5  // device is read-only
	BlockF_SCSI      = 1 << 7  // supports SCSI packet commands (legacy)
	BlockF_ConfigWCE = 1 << 11 // writeback mode is a config bit
	BlockF_MQ        = 1 << 12 // supports multiple virtqueues
)

// DeviceIDBlock is the virtio subsystem device ID for block devices.
const DeviceIDBlock = 2

// Block request types, placed in the out-header sector descriptor.
const (
	BlockRequestIn  = 0 // read
	BlockRequestOut = 1 // write
)

// ErrNoDevice is returned by Init when no valid VirtIO device responds at
// the configured base address.
var ErrNoDevice = errors.New("virtio: no device present")

// ErrUnsupported is returned by Init when the device does not speak the
// legacy (version 1) interface this package implements.
var ErrUnsupported = errors.New("virtio: unsupported transport version")

// negotiate masks driverFeatures down to the subset also advertised by the
// device, always keeping ring layout bits out of the legacy negotiation
// (the legacy interface predates indirect descriptors and the event index,
// so offering them back confuses some implementations).
func negotiate(deviceFeatures, driverFeatures uint32) uint32 {
	return deviceFeatures & driverFeatures &^ (FeatureAnyLayout | FeatureRingIndirectDesc | FeatureRingEventIdx)
}
