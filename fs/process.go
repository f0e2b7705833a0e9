// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

import "sync"

// NOFILE is the maximum number of simultaneously open file descriptors per
// process.
const NOFILE = 16

// fileKind distinguishes what a File descriptor is backed by.
type fileKind int

const (
	kindInode fileKind = iota
	kindDevice
	kindPipeRead
	kindPipeWrite
)

// File is an open file description: the readable/writable state and
// current offset associated with one slot of a process's descriptor table.
// Several descriptors can share one File (Dup installs the same File in a
// second slot), in which case they also share its offset - the semantics
// sys_dup provides.
type File struct {
	mu sync.Mutex

	kind     fileKind
	ip       Inode
	pipe     *pipe
	off      int64
	readable bool
	writable bool
	refs     int32
	// major is the device major number, set only for kindDevice handles.
	// It is cached on the handle itself (rather than re-read from ip on
	// every access) because the handle, not the inode, is what a
	// production device switch dispatches read/write on.
	major int32
}

func newInodeFile(ip Inode, readable, writable bool) *File {
	return &File{kind: kindInode, ip: ip, readable: readable, writable: writable, refs: 1}
}

func newDeviceFile(ip Inode, major int32, readable, writable bool) *File {
	return &File{kind: kindDevice, ip: ip, major: major, readable: readable, writable: writable, refs: 1}
}

// dup increments the File's reference count, used by Dup when a descriptor
// is duplicated.
func (f *File) dup() *File {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
	return f
}

// Process holds the per-process state the syscall layer needs: the working
// directory used to resolve relative paths, and the file descriptor table.
type Process struct {
	mu  sync.Mutex
	Cwd Inode
	ofs [NOFILE]*File
}

// NewProcess creates a process rooted at cwd, which must already hold a
// reference obtained from a Store.
func NewProcess(cwd Inode) *Process {
	return &Process{Cwd: cwd}
}

// fdalloc installs f in the first free descriptor slot and returns its
// number, or ErrTooManyFDs if the table is full.
func (p *Process) fdalloc(f *File) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for fd := 0; fd < NOFILE; fd++ {
		if p.ofs[fd] == nil {
			p.ofs[fd] = f
			return fd, nil
		}
	}

	return -1, ErrTooManyFDs
}

// argfd returns the File installed at descriptor fd.
func (p *Process) argfd(fd int) (*File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fd < 0 || fd >= NOFILE || p.ofs[fd] == nil {
		return nil, ErrBadFD
	}

	return p.ofs[fd], nil
}
