// Package disk provides random-access byte windows over raw disk images, and
// the interface a partition-table decoder plugs into to turn a partition
// index into one of those windows.
package disk

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/waveform80/nobodd/checkpoint"
)

// ErrOutOfRange is returned by Window.Sub and Window.ReadAt when the
// requested region falls outside the window.
var ErrOutOfRange = errors.New("disk: region out of range")

// Image is a handle onto a raw disk image, memory-mapped for random-access
// reading. It is immutable and safe for concurrent readers once Open
// returns; it owns the underlying file descriptor and mapping until Close is
// called.
type Image struct {
	file *os.File
	data []byte
}

// Open memory-maps the file at path read-only and returns an Image over its
// entire contents.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, checkpoint.Wrapf(err, "opening disk image %q", path)
	}

	img, err := OpenFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return img, nil
}

// OpenFile memory-maps an already-open file read-only and returns an Image
// over its entire contents. The Image takes ownership of f; Close closes it.
func OpenFile(f *os.File) (*Image, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, checkpoint.Wrapf(err, "statting disk image %q", f.Name())
	}

	size := info.Size()
	if size == 0 {
		return &Image{file: f, data: nil}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, checkpoint.Wrapf(err, "mapping disk image %q", f.Name())
	}

	return &Image{file: f, data: data}, nil
}

// Close unmaps the image and closes the underlying file. It is idempotent.
func (img *Image) Close() error {
	var err error
	if img.data != nil {
		err = unix.Munmap(img.data)
		img.data = nil
	}
	if img.file != nil {
		if cerr := img.file.Close(); err == nil {
			err = cerr
		}
		img.file = nil
	}
	if err != nil {
		return checkpoint.Wrap(err, errors.New("closing disk image"))
	}
	return nil
}

// Window returns a Window over the whole image.
func (img *Image) Window() Window {
	return Window{data: img.data}
}

// Size returns the total length of the image in bytes.
func (img *Image) Size() int64 {
	return int64(len(img.data))
}
