// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs_test

import (
	"testing"

	"github.com/usbarmory/rv6/fs"
)

// memUserMemory is a fake VM collaborator: "user addresses" are just indices
// into a Go slice of strings, standing in for a real page-table walk.
type memUserMemory struct {
	argv []string
}

func (m *memUserMemory) FetchArgv(uargv uintptr) ([]uintptr, error) {
	ptrs := make([]uintptr, 0, len(m.argv)+1)
	for i := range m.argv {
		ptrs = append(ptrs, uintptr(i+1))
	}
	ptrs = append(ptrs, 0)
	return ptrs, nil
}

func (m *memUserMemory) CopyInString(uaddr uintptr) (string, error) {
	return m.argv[uaddr-1], nil
}

type memLoader struct {
	gotPath string
	gotArgv []string
}

func (l *memLoader) Load(path string, argv []string) error {
	l.gotPath = path
	l.gotArgv = argv
	return nil
}

func TestExecCopiesArgvThenDelegatesToLoader(t *testing.T) {
	store := fs.NewMemStore(1)
	fsys := fs.NewFileSystem(store, fs.NewMemLog(), 1)
	proc := fs.NewProcess(store.Root())

	um := &memUserMemory{argv: []string{"/bin/sh", "-c", "true"}}
	loader := &memLoader{}

	if err := fsys.Exec(proc, loader, um, "/bin/sh", 0); err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}

	if loader.gotPath != "/bin/sh" {
		t.Fatalf("loader got path %q, want /bin/sh", loader.gotPath)
	}
	want := []string{"/bin/sh", "-c", "true"}
	if len(loader.gotArgv) != len(want) {
		t.Fatalf("loader got argv %v, want %v", loader.gotArgv, want)
	}
	for i := range want {
		if loader.gotArgv[i] != want[i] {
			t.Fatalf("loader got argv %v, want %v", loader.gotArgv, want)
		}
	}
}

type failingUserMemory struct{}

func (failingUserMemory) FetchArgv(uintptr) ([]uintptr, error) {
	ptrs := make([]uintptr, 0, fs.MaxExecArgs+2)
	for i := 0; i < fs.MaxExecArgs+1; i++ {
		ptrs = append(ptrs, uintptr(i+1))
	}
	return ptrs, nil
}

func (failingUserMemory) CopyInString(uintptr) (string, error) {
	return "", nil
}

func TestExecRejectsTooManyArguments(t *testing.T) {
	store := fs.NewMemStore(1)
	fsys := fs.NewFileSystem(store, fs.NewMemLog(), 1)
	proc := fs.NewProcess(store.Root())

	err := fsys.Exec(proc, &memLoader{}, failingUserMemory{}, "/bin/sh", 0)
	if err != fs.ErrTooManyArgs {
		t.Fatalf("Exec() err = %v, want ErrTooManyArgs", err)
	}
}
