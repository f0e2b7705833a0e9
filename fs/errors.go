// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

import "errors"

// Errors returned by syscalls for conditions a caller can legitimately
// trigger (bad path, bad descriptor, resource limits). Anything else - a
// collaborator asked for an inode that doesn't exist, a DecRef on an inode
// with no references - is a programming error and panics instead, per invariant in
// types.go.
var (
	ErrNotFound    = errors.New("fs: no such file or directory")
	ErrExists      = errors.New("fs: file exists")
	ErrNotDir      = errors.New("fs: not a directory")
	ErrIsDir       = errors.New("fs: is a directory")
	ErrNotEmpty    = errors.New("fs: directory not empty")
	ErrBadFD       = errors.New("fs: bad file descriptor")
	ErrTooManyFDs  = errors.New("fs: too many open files")
	ErrNameTooLong = errors.New("fs: path component too long")
	ErrTooManyLink = errors.New("fs: too many links")
	ErrCrossDevice = errors.New("fs: cross-device link")
	ErrIsRoot      = errors.New("fs: root directory has no parent entry")
	ErrNotEmptyFD  = errors.New("fs: descriptor does not support this operation")
	ErrTooManyArgs = errors.New("fs: too many exec arguments")
	ErrBadDevice   = errors.New("fs: device major number out of range")
)
