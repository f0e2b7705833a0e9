// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

import (
	"io"
	"sync"
)

// pipeSize bounds how much unread data a pipe buffers before a writer
// blocks.
const pipeSize = 512

// pipe is an anonymous, unidirectional byte stream shared between a read
// end and a write end created together by sys_pipe. Unlike an inode, a pipe
// has no on-disk representation or path name; it lives only as long as some
// descriptor table references one of its ends.
type pipe struct {
	mu         sync.Mutex
	notEmpty   *sync.Cond
	notFull    *sync.Cond
	buf        []byte
	readOpen   bool
	writeOpen  bool
}

func newPipe() *pipe {
	p := &pipe{buf: make([]byte, 0, pipeSize), readOpen: true, writeOpen: true}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

func (p *pipe) closeRead() {
	p.mu.Lock()
	p.readOpen = false
	p.mu.Unlock()
	p.notFull.Broadcast()
}

func (p *pipe) closeWrite() {
	p.mu.Lock()
	p.writeOpen = false
	p.mu.Unlock()
	p.notEmpty.Broadcast()
}

func (p *pipe) write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	written := 0

	for written < len(data) {
		if !p.readOpen {
			return written, io.ErrClosedPipe
		}

		for len(p.buf) >= pipeSize && p.readOpen {
			p.notFull.Wait()
		}

		if !p.readOpen {
			return written, io.ErrClosedPipe
		}

		n := pipeSize - len(p.buf)
		if n > len(data)-written {
			n = len(data) - written
		}

		p.buf = append(p.buf, data[written:written+n]...)
		written += n

		p.notEmpty.Broadcast()
	}

	return written, nil
}

func (p *pipe) read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.buf) == 0 && p.writeOpen {
		p.notEmpty.Wait()
	}

	if len(p.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(buf, p.buf)
	p.buf = p.buf[n:]

	p.notFull.Broadcast()

	return n, nil
}
