// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

import "io"

// FileSystem ties a Store and a Log together and exposes the Unix-like
// syscalls built on top of them. Every syscall that mutates the filesystem
// brackets its inode operations with Log.BeginOp/EndOp, and acquires inode
// locks in the fixed order: parent directory, then child.
type FileSystem struct {
	store Store
	log   Log
	dev   uint32
}

// NewFileSystem returns a FileSystem over store and log, for device dev.
func NewFileSystem(store Store, log Log, dev uint32) *FileSystem {
	return &FileSystem{store: store, log: log, dev: dev}
}

// Open flags, matching the bit layout open(2) callers already expect.
const (
	O_RDONLY = 0x000
	O_WRONLY = 0x001
	O_RDWR   = 0x002
	O_CREATE = 0x200
	O_TRUNC  = 0x400
)

// Dup duplicates the file descriptor fd within p, returning the new
// descriptor number. The two descriptors share the same underlying File,
// including its current offset.
func (fsys *FileSystem) Dup(p *Process, fd int) (int, error) {
	f, err := p.argfd(fd)
	if err != nil {
		return -1, err
	}

	newFD, err := p.fdalloc(f.dup())
	if err != nil {
		f.mu.Lock()
		f.refs--
		f.mu.Unlock()
		return -1, err
	}

	return newFD, nil
}

// Read reads up to len(buf) bytes from fd into buf, returning the number of
// bytes read.
func (fsys *FileSystem) Read(p *Process, fd int, buf []byte) (int, error) {
	f, err := p.argfd(fd)
	if err != nil {
		return 0, err
	}

	if !f.readable {
		return 0, ErrBadFD
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.kind {
	case kindPipeRead:
		// A pipe reporting io.EOF (all writers closed) is a zero-byte
		// read, not a read() error.
		n, err := f.pipe.read(buf)
		if err == io.EOF {
			err = nil
		}
		return n, err
	default:
		f.ip.Lock()
		n, err := f.ip.ReadAt(buf, f.off)
		f.ip.Unlock()
		f.off += int64(n)
		return n, err
	}
}

// Write writes buf to fd, returning the number of bytes written.
func (fsys *FileSystem) Write(p *Process, fd int, buf []byte) (int, error) {
	f, err := p.argfd(fd)
	if err != nil {
		return 0, err
	}

	if !f.writable {
		return 0, ErrBadFD
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.kind {
	case kindPipeWrite:
		return f.pipe.write(buf)
	default:
		fsys.log.BeginOp()
		f.ip.Lock()
		n, err := f.ip.WriteAt(buf, f.off)
		f.ip.Unlock()
		fsys.log.EndOp()
		f.off += int64(n)
		return n, err
	}
}

// Close releases fd. Once a File's reference count reaches zero, its
// underlying inode reference (or pipe end) is released.
func (fsys *FileSystem) Close(p *Process, fd int) error {
	f, err := p.argfd(fd)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.ofs[fd] = nil
	p.mu.Unlock()

	f.mu.Lock()
	f.refs--
	last := f.refs == 0
	f.mu.Unlock()

	if !last {
		return nil
	}

	switch f.kind {
	case kindPipeRead:
		f.pipe.closeRead()
	case kindPipeWrite:
		f.pipe.closeWrite()
	default:
		fsys.log.BeginOp()
		fsys.store.Put(f.ip)
		fsys.log.EndOp()
	}

	return nil
}

// Fstat returns metadata for the inode behind fd.
func (fsys *FileSystem) Fstat(p *Process, fd int) (Stat, error) {
	f, err := p.argfd(fd)
	if err != nil {
		return Stat{}, err
	}

	if f.kind != kindInode && f.kind != kindDevice {
		return Stat{}, ErrNotEmptyFD
	}

	f.ip.Lock()
	st := Stat{
		Dev:   f.ip.Dev(),
		Ino:   f.ip.Ino(),
		Type:  f.ip.Type(),
		Nlink: f.ip.Nlink(),
		Size:  f.ip.Size(),
		Major: f.ip.Major(),
		Minor: f.ip.Minor(),
	}
	f.ip.Unlock()

	return st, nil
}

// Link creates newpath as a new hard link to the inode named by oldpath.
// Directories cannot be hard-linked.
func (fsys *FileSystem) Link(p *Process, oldpath, newpath string) error {
	fsys.log.BeginOp()
	defer fsys.log.EndOp()

	ip, err := fsys.namei(p.Cwd, oldpath)
	if err != nil {
		return err
	}

	ip.Lock()
	if ip.Type() == TypeDir {
		ip.Unlock()
		fsys.store.Put(ip)
		return ErrIsDir
	}
	ip.SetNlink(ip.Nlink() + 1)
	ip.Unlock()

	dir, name, err := fsys.nameiparent(p.Cwd, newpath)
	if err != nil {
		fsys.undoLink(ip)
		return err
	}

	if dir.Dev() != ip.Dev() {
		fsys.store.Put(dir)
		fsys.undoLink(ip)
		return ErrCrossDevice
	}

	dir.Lock()
	err = fsys.store.Dirlink(dir, name, ip.Ino())
	dir.Unlock()
	fsys.store.Put(dir)

	if err != nil {
		fsys.undoLink(ip)
		return err
	}

	fsys.store.Put(ip)

	return nil
}

func (fsys *FileSystem) undoLink(ip Inode) {
	ip.Lock()
	ip.SetNlink(ip.Nlink() - 1)
	ip.Unlock()
	fsys.store.Put(ip)
}

// Unlink removes the directory entry named by path. If that was the last
// link to its inode and no descriptor holds it open, the inode's content is
// freed.
func (fsys *FileSystem) Unlink(p *Process, path string) error {
	fsys.log.BeginOp()
	defer fsys.log.EndOp()

	dir, name, err := fsys.nameiparent(p.Cwd, path)
	if err != nil {
		return err
	}
	defer fsys.store.Put(dir)

	if name == "." || name == ".." {
		return ErrIsRoot
	}

	dir.Lock()
	ip, _, err := fsys.store.Dirlookup(dir, name)
	if err != nil {
		dir.Unlock()
		return err
	}

	ip.Lock()
	invariant(ip.Nlink() >= 1, "fs: unlinking inode %d with nlink %d", ip.Ino(), ip.Nlink())

	if ip.Type() == TypeDir && !fsys.store.IsDirEmpty(ip) {
		ip.Unlock()
		dir.Unlock()
		fsys.store.Put(ip)
		return ErrNotEmpty
	}

	if err := fsys.store.Dirunlink(dir, name); err != nil {
		ip.Unlock()
		dir.Unlock()
		fsys.store.Put(ip)
		return err
	}

	if ip.Type() == TypeDir {
		// The removed directory's ".." entry no longer names dir.
		dir.SetNlink(dir.Nlink() - 1)
		ip.SetNlink(0)
	} else {
		ip.SetNlink(ip.Nlink() - 1)
	}

	ip.Unlock()
	dir.Unlock()

	fsys.store.Put(ip)

	return nil
}

// create resolves path's parent, creates a new inode of typ (with the given
// device major/minor, meaningful only when typ == TypeDevice) if the final
// component doesn't already exist, and links it in. If the entry already
// exists and mustNotExist is false, the existing inode is returned instead
// (the behavior sys_open needs for O_CREATE without O_EXCL).
func (fsys *FileSystem) create(p *Process, path string, typ FileType, major, minor int32, mustNotExist bool) (Inode, error) {
	dir, name, err := fsys.nameiparent(p.Cwd, path)
	if err != nil {
		return nil, err
	}

	dir.Lock()

	if existing, _, err := fsys.store.Dirlookup(dir, name); err == nil {
		dir.Unlock()
		fsys.store.Put(dir)

		if mustNotExist {
			fsys.store.Put(existing)
			return nil, ErrExists
		}

		existing.Lock()
		ok := existing.Type() == typ || (typ == TypeFile && existing.Type() == TypeDevice)
		existing.Unlock()

		if !ok {
			fsys.store.Put(existing)
			return nil, ErrExists
		}

		return existing, nil
	}

	ip, err := fsys.store.Alloc(dir.Dev(), typ)
	if err != nil {
		dir.Unlock()
		fsys.store.Put(dir)
		return nil, err
	}

	ip.Lock()
	ip.SetNlink(1)
	ip.SetDevice(major, minor)

	if typ == TypeDir {
		// dir is already locked by the caller above; parent-then-child
		// lock order is preserved since ip was only just allocated and
		// is not yet reachable by any other goroutine.
		invariant(fsys.store.Dirlink(ip, ".", ip.Ino()) == nil, "fs: failed to create . in new directory %d", ip.Ino())
		invariant(fsys.store.Dirlink(ip, "..", dir.Ino()) == nil, "fs: failed to create .. in new directory %d", ip.Ino())
		dir.SetNlink(dir.Nlink() + 1)
	}

	if err := fsys.store.Dirlink(dir, name, ip.Ino()); err != nil {
		ip.SetNlink(0)
		ip.Unlock()
		dir.Unlock()
		fsys.store.Put(ip)
		fsys.store.Put(dir)
		return nil, err
	}

	ip.Unlock()
	dir.Unlock()
	fsys.store.Put(dir)

	return ip, nil
}

// Open resolves path according to flags, creating it first if O_CREATE is
// set, and installs a new file descriptor for it in p.
func (fsys *FileSystem) Open(p *Process, path string, flags int) (int, error) {
	fsys.log.BeginOp()

	var ip Inode
	var err error

	if flags&O_CREATE != 0 {
		ip, err = fsys.create(p, path, TypeFile, 0, 0, false)
	} else {
		ip, err = fsys.namei(p.Cwd, path)
	}

	if err != nil {
		fsys.log.EndOp()
		return -1, err
	}

	ip.Lock()

	if ip.Type() == TypeDir && flags != O_RDONLY {
		ip.Unlock()
		fsys.store.Put(ip)
		fsys.log.EndOp()
		return -1, ErrIsDir
	}

	major := ip.Major()
	if ip.Type() == TypeDevice && (major < 0 || major >= NDEV) {
		ip.Unlock()
		fsys.store.Put(ip)
		fsys.log.EndOp()
		return -1, ErrBadDevice
	}

	if flags&O_TRUNC != 0 && ip.Type() == TypeFile {
		ip.Truncate()
	}

	ip.Unlock()
	fsys.log.EndOp()

	readable := flags&O_WRONLY == 0
	writable := flags&(O_WRONLY|O_RDWR) != 0

	var f *File
	if ip.Type() == TypeDevice {
		f = newDeviceFile(ip, major, readable, writable)
	} else {
		f = newInodeFile(ip, readable, writable)
	}

	fd, err := p.fdalloc(f)
	if err != nil {
		fsys.log.BeginOp()
		fsys.store.Put(ip)
		fsys.log.EndOp()
		return -1, err
	}

	return fd, nil
}

// Mkdir creates path as a new, empty directory.
func (fsys *FileSystem) Mkdir(p *Process, path string) error {
	fsys.log.BeginOp()
	defer fsys.log.EndOp()

	ip, err := fsys.create(p, path, TypeDir, 0, 0, true)
	if err != nil {
		return err
	}

	fsys.store.Put(ip)

	return nil
}

// Mknod creates path as a new device special file with the given major and
// minor numbers.
func (fsys *FileSystem) Mknod(p *Process, path string, major, minor int32) error {
	fsys.log.BeginOp()
	defer fsys.log.EndOp()

	ip, err := fsys.create(p, path, TypeDevice, major, minor, true)
	if err != nil {
		return err
	}

	fsys.store.Put(ip)

	return nil
}

// Chdir changes p's working directory to path.
func (fsys *FileSystem) Chdir(p *Process, path string) error {
	fsys.log.BeginOp()
	ip, err := fsys.namei(p.Cwd, path)
	fsys.log.EndOp()

	if err != nil {
		return err
	}

	ip.Lock()
	isDir := ip.Type() == TypeDir
	ip.Unlock()

	if !isDir {
		fsys.store.Put(ip)
		return ErrNotDir
	}

	fsys.log.BeginOp()
	fsys.store.Put(p.Cwd)
	fsys.log.EndOp()

	p.Cwd = ip

	return nil
}

// Pipe creates an anonymous pipe and installs its read and write ends as
// two new file descriptors in p, read end first.
func (fsys *FileSystem) Pipe(p *Process) (readFD, writeFD int, err error) {
	pi := newPipe()

	rf := &File{kind: kindPipeRead, pipe: pi, readable: true, refs: 1}
	wf := &File{kind: kindPipeWrite, pipe: pi, writable: true, refs: 1}

	readFD, err = p.fdalloc(rf)
	if err != nil {
		return -1, -1, err
	}

	writeFD, err = p.fdalloc(wf)
	if err != nil {
		p.mu.Lock()
		p.ofs[readFD] = nil
		p.mu.Unlock()
		return -1, -1, err
	}

	return readFD, writeFD, nil
}
