// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

// Store is everything the syscall layer needs from the inode graph and
// directory representation underneath it: allocating and looking up
// inodes, and reading or mutating directory contents. It is the seam
// between this package and the on-disk representation, the buffer cache,
// and the block device driver - none of which this package implements.
type Store interface {
	// Root returns the filesystem root inode, with its reference count
	// incremented.
	Root() Inode

	// Get returns the in-core inode for (dev, ino), allocating a cache
	// entry and incrementing its reference count. It does not read
	// content from disk until first use. It panics if no such inode
	// exists - callers are expected to have validated ino came from a
	// directory entry or a trusted caller, not from unchecked input.
	Get(dev, ino uint32) Inode

	// Alloc allocates a new inode of the given type on dev, with its
	// reference count set to one. Must be called within a Log
	// transaction.
	Alloc(dev uint32, typ FileType) (Inode, error)

	// Put releases a reference previously obtained from Root, Get, or
	// Alloc. If the in-core reference count and on-disk link count both
	// reach zero, the inode's content is freed. Must be called within a
	// Log transaction if it might free the inode.
	Put(ip Inode)

	// Dirlookup looks up name within directory dir, returning the child
	// inode (with its reference count incremented) and its byte offset
	// within dir's content. ip is nil and ErrNotFound is returned if no
	// such entry exists. dir must be locked by the caller and must be a
	// directory.
	Dirlookup(dir Inode, name string) (ip Inode, offset uint64, err error)

	// Dirlink adds a directory entry named name pointing at ino within
	// dir. It returns ErrExists if name is already present. dir must be
	// locked by the caller, must be a directory, and the call must be
	// within a Log transaction.
	Dirlink(dir Inode, name string, ino uint32) error

	// Dirunlink removes the directory entry named name from dir. dir
	// must be locked by the caller, must be a directory, and the call
	// must be within a Log transaction.
	Dirunlink(dir Inode, name string) error

	// IsDirEmpty reports whether dir contains only "." and "..". dir
	// must be locked by the caller and must be a directory.
	IsDirEmpty(dir Inode) bool
}

// Log brackets a sequence of writes to the Store as a single transaction:
// either all of its effects survive a crash, or none do. Every syscall that
// mutates the filesystem calls BeginOp before taking any inode lock and
// EndOp after releasing all of them, making the log the outermost lock in
// the fixed order this package acquires locks in (log, then parent
// directory inode, then child inode, then any device/buffer locks below
// that).
type Log interface {
	// BeginOp reserves space in the log for one transaction, blocking if
	// necessary until the log has room. It must be paired with exactly
	// one EndOp.
	BeginOp()
	// EndOp commits the transaction started by the matching BeginOp once
	// every concurrently open transaction has also ended, waking any
	// writer blocked in BeginOp.
	EndOp()
}
