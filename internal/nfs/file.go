package nfs

import (
	"io"
	"os"
	"sync"

	billy "github.com/go-git/go-billy/v5"
)

// File is an open facade file held entirely in memory
type File struct {
	adapter *Adapter
	name    string
	flag    int

	mu     sync.Mutex
	buf    []byte
	offset int64
	dirty  bool
	closed bool
}

func writable(flag int) bool {
	return flag&(os.O_WRONLY|os.O_RDWR) != 0
}

func (f *File) Name() string {
	return f.name
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	if !writable(f.flag) {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: os.ErrPermission}
	}
	if f.flag&os.O_APPEND != 0 {
		f.offset = int64(len(f.buf))
	}
	end := f.offset + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[f.offset:], p)
	f.offset = end
	f.dirty = true
	return len(p), nil
}

func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.readAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.readAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (f *File) readAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: os.ErrInvalid}
	}
	if off >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	return copy(p, f.buf[off:]), nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.offset + offset
	case io.SeekEnd:
		next = int64(len(f.buf)) + offset
	default:
		return f.offset, os.ErrInvalid
	}
	if next < 0 {
		return f.offset, &os.PathError{Op: "seek", Path: f.name, Err: os.ErrInvalid}
	}
	f.offset = next
	return next, nil
}

func (f *File) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !writable(f.flag) {
		return &os.PathError{Op: "truncate", Path: f.name, Err: os.ErrPermission}
	}
	if size < 0 {
		return &os.PathError{Op: "truncate", Path: f.name, Err: os.ErrInvalid}
	}
	if size <= int64(len(f.buf)) {
		f.buf = f.buf[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.buf)
		f.buf = grown
	}
	f.dirty = true
	return nil
}

// Close flushes buffered writes through the facade
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	if !f.dirty {
		return nil
	}
	a := f.adapter
	return osError("write", f.name, a.kfs.Write(a.ctx, f.name, f.buf))
}

func (f *File) Lock() error   { return nil }
func (f *File) Unlock() error { return nil }

var _ billy.File = (*File)(nil)
