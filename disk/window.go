package disk

import (
	"io"

	"github.com/waveform80/nobodd/checkpoint"
)

// Window is a random-access, zero-copy view over a region of an Image. The
// zero Window is an empty, zero-length window. Windows are cheap to copy and
// to take sub-windows of: all of them share the same backing mapping, so
// slicing one never copies bytes.
type Window struct {
	data []byte
}

// NewWindow wraps an existing byte slice as a Window, with no backing
// Image or mmap. Useful for serving small or synthetic images straight out
// of memory, and in tests.
func NewWindow(data []byte) Window {
	return Window{data: data}
}

// Len returns the length of the window in bytes.
func (w Window) Len() int64 {
	return int64(len(w.data))
}

// ReadAt implements io.ReaderAt over the window. Reads that would run past
// the end of the window return as many bytes as are available along with
// io.EOF, as io.ReaderAt requires.
func (w Window) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(w.data)) {
		return 0, ErrOutOfRange
	}
	n := copy(p, w.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Read copies exactly n bytes starting at offset out of the window. Unlike
// ReadAt, a short read (offset+n beyond the window) is always an error: this
// is the method FAT structures use to pull a fixed-size record and expect
// every byte of it.
func (w Window) Read(offset, n int64) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > int64(len(w.data)) {
		return nil, checkpoint.Wrapf(ErrOutOfRange, "read(%d, %d) in window of length %d", offset, n, len(w.data))
	}
	return w.data[offset : offset+n], nil
}

// Sub returns a new Window over the sub-region [offset, offset+n) of w. It
// shares the same backing array; no bytes are copied.
func (w Window) Sub(offset, n int64) (Window, error) {
	if offset < 0 || n < 0 || offset+n > int64(len(w.data)) {
		return Window{}, checkpoint.Wrapf(ErrOutOfRange, "subwindow(%d, %d) in window of length %d", offset, n, len(w.data))
	}
	return Window{data: w.data[offset : offset+n]}, nil
}

// Bytes returns the raw backing slice of the window. Callers must not
// mutate it; the FAT reader is read-only and relies on this.
func (w Window) Bytes() []byte {
	return w.data
}
