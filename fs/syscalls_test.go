// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs_test

import (
	"testing"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"

	"github.com/usbarmory/rv6/fs"
)

func TestOgletest(t *testing.T) { RunTests(t) }

const dev = 7

type SyscallTest struct {
	store *fs.MemStore
	log   *fs.MemLog
	fsys  *fs.FileSystem
	proc  *fs.Process
}

func init() { RegisterTestSuite(&SyscallTest{}) }

func (t *SyscallTest) SetUp(ti *TestInfo) {
	t.store = fs.NewMemStore(dev)
	t.log = fs.NewMemLog()
	t.fsys = fs.NewFileSystem(t.store, t.log, dev)
	t.proc = fs.NewProcess(t.store.Root())
}

func (t *SyscallTest) CreateWriteReadRoundTrips() {
	fd, err := t.fsys.Open(t.proc, "/greeting", fs.O_CREATE|fs.O_RDWR)
	AssertEq(nil, err)

	n, err := t.fsys.Write(t.proc, fd, []byte("hello"))
	AssertEq(nil, err)
	ExpectEq(5, n)

	AssertEq(nil, t.fsys.Close(t.proc, fd))

	fd, err = t.fsys.Open(t.proc, "/greeting", fs.O_RDONLY)
	AssertEq(nil, err)

	buf := make([]byte, 5)
	n, err = t.fsys.Read(t.proc, fd, buf)
	AssertEq(nil, err)
	ExpectEq(5, n)
	ExpectEq("hello", string(buf))
}

func (t *SyscallTest) OpenWithoutCreateOnMissingPathFails() {
	_, err := t.fsys.Open(t.proc, "/nope", fs.O_RDONLY)
	ExpectEq(fs.ErrNotFound, err)
}

func (t *SyscallTest) MkdirThenChdirThenRelativeOpen() {
	AssertEq(nil, t.fsys.Mkdir(t.proc, "/sub"))
	AssertEq(nil, t.fsys.Chdir(t.proc, "/sub"))

	fd, err := t.fsys.Open(t.proc, "inner", fs.O_CREATE|fs.O_RDWR)
	AssertEq(nil, err)

	_, err = t.fsys.Write(t.proc, fd, []byte("x"))
	AssertEq(nil, err)
	AssertEq(nil, t.fsys.Close(t.proc, fd))

	fd, err = t.fsys.Open(t.proc, "/sub/inner", fs.O_RDONLY)
	ExpectEq(nil, err)
	AssertEq(nil, t.fsys.Close(t.proc, fd))
}

func (t *SyscallTest) UnlinkNonemptyDirFails() {
	AssertEq(nil, t.fsys.Mkdir(t.proc, "/sub"))
	AssertEq(nil, t.fsys.Mkdir(t.proc, "/sub/child"))

	err := t.fsys.Unlink(t.proc, "/sub")
	ExpectEq(fs.ErrNotEmpty, err)

	AssertEq(nil, t.fsys.Unlink(t.proc, "/sub/child"))
	ExpectEq(nil, t.fsys.Unlink(t.proc, "/sub"))
}

func (t *SyscallTest) LinkAddsASecondNameForTheSameInode() {
	fd, err := t.fsys.Open(t.proc, "/a", fs.O_CREATE|fs.O_RDWR)
	AssertEq(nil, err)
	_, err = t.fsys.Write(t.proc, fd, []byte("shared"))
	AssertEq(nil, err)
	AssertEq(nil, t.fsys.Close(t.proc, fd))

	AssertEq(nil, t.fsys.Link(t.proc, "/a", "/b"))

	fd, err = t.fsys.Open(t.proc, "/b", fs.O_RDONLY)
	AssertEq(nil, err)

	buf := make([]byte, 6)
	n, err := t.fsys.Read(t.proc, fd, buf)
	AssertEq(nil, err)
	ExpectEq(6, n)
	ExpectEq("shared", string(buf))
	AssertEq(nil, t.fsys.Close(t.proc, fd))

	stFd, err := t.fsys.Open(t.proc, "/a", fs.O_RDONLY)
	AssertEq(nil, err)
	st, err := t.fsys.Fstat(t.proc, stFd)
	AssertEq(nil, err)
	ExpectEq(2, st.Nlink)
	AssertEq(nil, t.fsys.Close(t.proc, stFd))
}

func (t *SyscallTest) LinkingADirectoryFails() {
	AssertEq(nil, t.fsys.Mkdir(t.proc, "/sub"))
	err := t.fsys.Link(t.proc, "/sub", "/sub2")
	ExpectEq(fs.ErrIsDir, err)
}

func (t *SyscallTest) DupSharesOffsetAcrossDescriptors() {
	fd, err := t.fsys.Open(t.proc, "/f", fs.O_CREATE|fs.O_RDWR)
	AssertEq(nil, err)
	_, err = t.fsys.Write(t.proc, fd, []byte("0123456789"))
	AssertEq(nil, err)
	AssertEq(nil, t.fsys.Close(t.proc, fd))

	fd, err = t.fsys.Open(t.proc, "/f", fs.O_RDONLY)
	AssertEq(nil, err)

	dupFd, err := t.fsys.Dup(t.proc, fd)
	AssertEq(nil, err)

	buf := make([]byte, 4)
	n, err := t.fsys.Read(t.proc, fd, buf)
	AssertEq(nil, err)
	ExpectEq(4, n)

	// The read through dupFd continues where the read through fd stopped.
	n, err = t.fsys.Read(t.proc, dupFd, buf)
	AssertEq(nil, err)
	ExpectEq(4, n)
	ExpectEq(4, string(buf)[0]-'0')

	AssertEq(nil, t.fsys.Close(t.proc, fd))
	AssertEq(nil, t.fsys.Close(t.proc, dupFd))
}

func (t *SyscallTest) PipeDeliversWrittenBytesToReader() {
	r, w, err := t.fsys.Pipe(t.proc)
	AssertEq(nil, err)

	n, err := t.fsys.Write(t.proc, w, []byte("ping"))
	AssertEq(nil, err)
	ExpectEq(4, n)
	AssertEq(nil, t.fsys.Close(t.proc, w))

	buf := make([]byte, 16)
	n, err = t.fsys.Read(t.proc, r, buf)
	AssertEq(nil, err)
	ExpectThat(string(buf[:n]), Equals("ping"))
}
