// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import "runtime"

// Descriptor is a linear-use handle on one slot of the free descriptor
// table: once allocated, the slot must be returned through Disk.free3
// exactly once. It must never simply be discarded while still allocated,
// since that would leak the slot for the lifetime of the driver.
//
// The source design enforces this with a Drop implementation that panics
// if a Descriptor is dropped while still allocated to a request. Go has no
// deterministic destructor, so the same policy is approximated with a
// finalizer: it cannot catch the bug at the moment of the mistake, but it
// still turns a silently leaked slot into a loud panic once the garbage
// collector notices, rather than a slow, unexplained exhaustion of the
// queue.
type Descriptor struct {
	idx      uint16
	released bool
}

func newDescriptor(idx uint16) *Descriptor {
	d := &Descriptor{idx: idx}

	runtime.SetFinalizer(d, func(d *Descriptor) {
		if !d.released {
			panic("virtio: descriptor finalized without being freed")
		}
	})

	return d
}

// Idx returns the descriptor table slot this handle owns.
func (d *Descriptor) Idx() uint16 {
	return d.idx
}

func (d *Descriptor) release() {
	if d.released {
		panic("virtio: descriptor freed twice")
	}
	d.released = true
	runtime.SetFinalizer(d, nil)
}
