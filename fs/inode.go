// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

import "sync"

// Inode is an in-core handle on one filesystem object. It embeds
// sync.Locker so a caller can hold an individual inode's lock independently
// of any other inode's, which is what lets sys_rename-style operations and
// directory traversal take locks in a fixed parent-then-child order without
// a single filesystem-wide mutex serializing unrelated operations.
//
// An Inode's in-core reference count (IncRef/DecRef) is distinct from its
// on-disk link count (Nlink): many open file descriptors and cached
// directory entries can reference the same inode while its link count independently
// tracks how many directory entries name it on disk. An inode is only
// eligible for reclamation once both reach zero.
type Inode interface {
	sync.Locker

	// Dev identifies which device the inode belongs to.
	Dev() uint32
	// Ino is the inode number, unique within Dev.
	Ino() uint32
	// Type reports what kind of object this inode denotes.
	Type() FileType
	// Nlink returns the on-disk link count.
	Nlink() int16
	// SetNlink updates the on-disk link count. Callers must hold the
	// inode's lock and must be inside a Log transaction.
	SetNlink(int16)
	// Size returns the current content size in bytes.
	Size() uint64

	// Major returns the device major number. Meaningful only for
	// Type() == TypeDevice.
	Major() int32
	// Minor returns the device minor number. Meaningful only for
	// Type() == TypeDevice.
	Minor() int32
	// SetDevice sets the device major/minor numbers. Callers must hold
	// the inode's lock and must be inside a Log transaction.
	SetDevice(major, minor int32)

	// ReadAt reads len(buf) bytes starting at off, returning the number
	// of bytes read. It returns an error only if off is negative.
	ReadAt(buf []byte, off int64) (int, error)
	// WriteAt writes buf at offset off, growing the inode if necessary,
	// returning the number of bytes written. Callers must hold the
	// inode's lock and must be inside a Log transaction.
	WriteAt(buf []byte, off int64) (int, error)
	// Truncate discards all content. Callers must hold the inode's lock
	// and must be inside a Log transaction.
	Truncate()

	// IncRef increments the in-core reference count.
	IncRef()
	// DecRef decrements the in-core reference count, returning true if
	// it reached zero (the inode is no longer referenced in core, though
	// it may still have on-disk links and so remain allocated).
	DecRef() bool
	// RefCount reports the current in-core reference count.
	RefCount() int32
}
