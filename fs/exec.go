// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

// MaxExecArgs bounds the number of argv pointers exec will fetch from user
// memory before giving up.
const MaxExecArgs = 32

// execArgPage is the size of one kernel scratch page used to hold a copied
// argument string; argv strings longer than this do not fit.
const execArgPage = 4096

// Loader is the external collaborator that maps a new address space for
// path, installs the copied argument strings as its argv, and arranges for
// the calling process's trap frame to resume in it. It is out of scope:
// relocating ELF segments and setting up the initial stack belong to the
// executable loader, not the syscall layer.
type Loader interface {
	Load(path string, argv []string) error
}

// UserMemory is the external collaborator providing the user<->kernel copy
// primitives exec's argument vector needs. Out of scope: page table walking
// and the actual copy live in the VM subsystem.
type UserMemory interface {
	// FetchArgv reads the NUL-terminated array of user pointers at uargv,
	// stopping at the first null entry or once more than MaxExecArgs
	// pointers have been read; Exec rejects a result longer than
	// MaxExecArgs.
	FetchArgv(uargv uintptr) ([]uintptr, error)
	// CopyInString copies the NUL-terminated string at the user address
	// uaddr into a kernel scratch page, failing if it doesn't fit.
	CopyInString(uaddr uintptr) (string, error)
}

// Exec implements sys_exec's argument handling: fetch the argv pointer
// array, copy each argument string into a kernel scratch page, and hand the
// assembled argv to the loader. Every copy failure aborts without touching
// the scratch pages already released — the caller's UserMemory owns their
// lifetime, exec just stops requesting more.
//
// https://github.com/travis1829/rv6
func (fsys *FileSystem) Exec(proc *Process, loader Loader, um UserMemory, path string, uargv uintptr) error {
	ptrs, err := um.FetchArgv(uargv)
	if err != nil {
		return err
	}
	if len(ptrs) > MaxExecArgs {
		return ErrTooManyArgs
	}

	argv := make([]string, 0, len(ptrs))
	for _, uaddr := range ptrs {
		if uaddr == 0 {
			break
		}
		s, err := um.CopyInString(uaddr)
		if err != nil {
			return err
		}
		argv = append(argv, s)
	}

	return loader.Load(path, argv)
}
