//go:build linux

package ecio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// File is an opened EC register file.
//
// Transfers use pread/pwrite so the seek and the byte transfer are a single
// syscall. All transfers on one File are serialized, which makes it safe to
// share between the poll loop, the signal watcher and the panic handler.
type File struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

var _ Port = (*File)(nil)

func Open(path string) (*File, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	return &File{f: f, path: path}, nil
}

func (p *File) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

func (p *File) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}

func (p *File) ReadReg(off int64) (byte, error) {
	var b [1]byte
	if err := p.transfer("read", off, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *File) WriteReg(off int64, v byte) error {
	b := [1]byte{v}
	return p.transfer("write", off, b[:])
}

func (p *File) transfer(op string, off int64, b []byte) error {
	if p == nil {
		return &IOError{Op: op, Offset: off, Err: os.ErrInvalid}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return &IOError{Op: op, Path: p.path, Offset: off, Err: os.ErrClosed}
	}

	fd := int(p.f.Fd())
	var (
		n   int
		err error
	)
	for {
		if op == "read" {
			n, err = unix.Pread(fd, b, off)
		} else {
			n, err = unix.Pwrite(fd, b, off)
		}
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return &IOError{Op: op, Path: p.path, Offset: off, Err: err}
	}
	if n != len(b) {
		short := io.ErrShortWrite
		if op == "read" {
			short = io.ErrUnexpectedEOF
		}
		return &IOError{Op: op, Path: p.path, Offset: off, Err: short}
	}
	return nil
}
