package sstable

import (
	"io"
	"os"
	"sync"

	"github.com/ganjayant/lsmkv/sys"
)

// memFile is an in-memory sys.File used by sstable tests so they do not
// touch a real filesystem, grounded on the teacher's pattern of faking
// sys.File in its own sstable tests.
type memFile struct {
	mu    sync.Mutex
	files map[string]*memBuf
}

func newMemFile() *memFile {
	return &memFile{files: make(map[string]*memBuf)}
}

type memBuf struct {
	name string
	data []byte
}

type memHandle struct {
	buf *memBuf
	pos int64
}

func (h *memHandle) Write(p []byte) (int, error) {
	if h.pos < int64(len(h.buf.data)) {
		h.buf.data = h.buf.data[:h.pos]
	}
	h.buf.data = append(h.buf.data, p...)
	h.pos += int64(len(p))
	return len(p), nil
}

func (h *memHandle) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(h.buf.data)) {
		grown := make([]byte, end)
		copy(grown, h.buf.data)
		h.buf.data = grown
	}
	copy(h.buf.data[off:end], p)
	return len(p), nil
}

func (h *memHandle) Read(p []byte) (int, error) {
	if h.pos >= int64(len(h.buf.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.buf.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *memHandle) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(h.buf.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.buf.data[off:])
	return n, nil
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		h.pos = offset
	case io.SeekCurrent:
		h.pos += offset
	case io.SeekEnd:
		h.pos = int64(len(h.buf.data)) + offset
	}
	return h.pos, nil
}

func (h *memHandle) Sync() error  { return nil }
func (h *memHandle) Close() error { return nil }
func (h *memHandle) Name() string { return h.buf.name }

func (f *memFile) Create(name string) (sys.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := &memBuf{name: name}
	f.files[name] = buf
	return &memHandle{buf: buf}, nil
}

func (f *memFile) Open(name string) (sys.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &memHandle{buf: buf}, nil
}

func (f *memFile) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[name]; !ok {
		return os.ErrNotExist
	}
	delete(f.files, name)
	return nil
}

func (f *memFile) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.files[oldpath]
	if !ok {
		return os.ErrNotExist
	}
	buf.name = newpath
	f.files[newpath] = buf
	delete(f.files, oldpath)
	return nil
}

func (f *memFile) MkdirAll(path string, perm os.FileMode) error { return nil }

func (f *memFile) ReadDir(dirname string) ([]os.DirEntry, error) { return nil, nil }

func (f *memFile) corrupt(name string, at int, b byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name].data[at] = b
}
