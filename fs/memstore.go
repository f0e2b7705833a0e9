// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

import (
	"sync"
)

// memInode is an in-memory Inode. Directory content is a name->ino map
// rather than the fixed-size on-disk directory entry array a real
// implementation would use; file content is a plain byte slice rather than
// a block-indirection tree. Both stand in for the on-disk layout this
// package treats as an external collaborator.
type memInode struct {
	mu sync.Mutex

	dev  uint32
	ino  uint32
	typ  FileType
	refs int32

	nlink        int16
	major, minor int32
	data         []byte
	dir          map[string]uint32
	// order records entry names in insertion order; Dirlookup reports an
	// entry's index in it as the entry's offset. Dirunlink removes the
	// name, so the entries after it move down one place.
	order []string
}

func (n *memInode) Lock()   { n.mu.Lock() }
func (n *memInode) Unlock() { n.mu.Unlock() }

func (n *memInode) Dev() uint32    { return n.dev }
func (n *memInode) Ino() uint32    { return n.ino }
func (n *memInode) Type() FileType { return n.typ }
func (n *memInode) Nlink() int16   { return n.nlink }

func (n *memInode) SetNlink(v int16) { n.nlink = v }

func (n *memInode) Major() int32 { return n.major }
func (n *memInode) Minor() int32 { return n.minor }

func (n *memInode) SetDevice(major, minor int32) {
	n.major = major
	n.minor = minor
}

// Size reports the byte length of a file's content. For a directory it
// reports the number of entries, since directory content here is a map
// rather than an array of fixed-size records.
func (n *memInode) Size() uint64 {
	if n.typ == TypeDir {
		return uint64(len(n.dir))
	}
	return uint64(len(n.data))
}

func (n *memInode) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrNotFound
	}
	if off >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[off:]), nil
}

func (n *memInode) WriteAt(buf []byte, off int64) (int, error) {
	invariant(off >= 0, "fs: negative write offset %d", off)

	end := off + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}

	return copy(n.data[off:end], buf), nil
}

func (n *memInode) Truncate() {
	n.data = nil
}

func (n *memInode) IncRef() { n.refs++ }

func (n *memInode) DecRef() bool {
	invariant(n.refs > 0, "fs: DecRef on inode %d with zero refcount", n.ino)
	n.refs--
	return n.refs == 0
}

func (n *memInode) RefCount() int32 { return n.refs }

// MemStore is an in-memory Store, used for testing the syscall layer
// without a real device or on-disk layout underneath it.
type MemStore struct {
	mu     sync.Mutex
	dev    uint32
	nextNo uint32
	nodes  map[uint32]*memInode
}

// NewMemStore creates a MemStore with an empty root directory already
// allocated as RootIno.
func NewMemStore(dev uint32) *MemStore {
	s := &MemStore{
		dev:    dev,
		nextNo: RootIno + 1,
		nodes:  make(map[uint32]*memInode),
	}

	root := &memInode{dev: dev, ino: RootIno, typ: TypeDir, nlink: 1, refs: 1, dir: map[string]uint32{}}
	root.dir["."] = RootIno
	root.dir[".."] = RootIno
	root.order = []string{".", ".."}

	s.nodes[RootIno] = root

	return s
}

// Root implements Store.
func (s *MemStore) Root() Inode {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.nodes[RootIno]
	root.IncRef()
	return root
}

// Get implements Store.
func (s *MemStore) Get(dev, ino uint32) Inode {
	s.mu.Lock()
	defer s.mu.Unlock()

	invariant(dev == s.dev, "fs: MemStore asked for foreign device %d", dev)

	n, ok := s.nodes[ino]
	invariant(ok, "fs: no such in-core inode %d", ino)

	n.IncRef()
	return n
}

// Alloc implements Store.
func (s *MemStore) Alloc(dev uint32, typ FileType) (Inode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invariant(dev == s.dev, "fs: MemStore asked to allocate on foreign device %d", dev)

	ino := s.nextNo
	s.nextNo++

	n := &memInode{dev: dev, ino: ino, typ: typ, refs: 1}
	if typ == TypeDir {
		n.dir = map[string]uint32{}
	}

	s.nodes[ino] = n

	return n, nil
}

// Put implements Store.
func (s *MemStore) Put(ip Inode) {
	n := ip.(*memInode)

	n.Lock()
	destroyed := n.DecRef()
	freed := destroyed && n.Nlink() == 0
	n.Unlock()

	if freed {
		s.mu.Lock()
		delete(s.nodes, n.ino)
		s.mu.Unlock()
	}
}

func asMemInode(ip Inode) *memInode {
	n, ok := ip.(*memInode)
	invariant(ok, "fs: inode %v did not come from MemStore", ip)
	return n
}

// Dirlookup implements Store.
func (s *MemStore) Dirlookup(dir Inode, name string) (Inode, uint64, error) {
	d := asMemInode(dir)
	invariant(d.typ == TypeDir, "fs: Dirlookup on non-directory inode %d", d.ino)

	ino, ok := d.dir[name]
	if !ok {
		return nil, 0, ErrNotFound
	}

	return s.Get(d.dev, ino), uint64(indexOf(d.order, name)), nil
}

// Dirlink implements Store.
func (s *MemStore) Dirlink(dir Inode, name string, ino uint32) error {
	d := asMemInode(dir)
	invariant(d.typ == TypeDir, "fs: Dirlink on non-directory inode %d", d.ino)

	if _, ok := d.dir[name]; ok {
		return ErrExists
	}

	d.dir[name] = ino
	d.order = append(d.order, name)

	return nil
}

// Dirunlink implements Store.
func (s *MemStore) Dirunlink(dir Inode, name string) error {
	d := asMemInode(dir)
	invariant(d.typ == TypeDir, "fs: Dirunlink on non-directory inode %d", d.ino)

	if _, ok := d.dir[name]; !ok {
		return ErrNotFound
	}

	delete(d.dir, name)

	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}

	return nil
}

// IsDirEmpty implements Store.
func (s *MemStore) IsDirEmpty(dir Inode) bool {
	d := asMemInode(dir)
	invariant(d.typ == TypeDir, "fs: IsDirEmpty on non-directory inode %d", d.ino)

	for name := range d.dir {
		if name != "." && name != ".." {
			return false
		}
	}

	return true
}

func indexOf(haystack []string, needle string) int {
	for i, s := range haystack {
		if s == needle {
			return i
		}
	}
	return -1
}

// MemLog is a no-op Log for tests that don't need to observe transaction
// boundaries, while still enforcing that BeginOp/EndOp are paired.
type MemLog struct {
	mu     sync.Mutex
	active int
}

// NewMemLog returns a ready MemLog.
func NewMemLog() *MemLog {
	return &MemLog{}
}

// BeginOp implements Log.
func (l *MemLog) BeginOp() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active++
}

// EndOp implements Log.
func (l *MemLog) EndOp() {
	l.mu.Lock()
	defer l.mu.Unlock()

	invariant(l.active > 0, "fs: EndOp without matching BeginOp")
	l.active--
}
