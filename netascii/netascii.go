// Package netascii implements the RFC 764 netascii transform TFTP's
// "netascii" transfer mode requires: CR is escaped to CR NUL, and every LF
// is expanded to CR LF. The transform is applied lazily, one source read at
// a time, so a multi-gigabyte file is never buffered in full.
package netascii

import (
	"bufio"
	"io"
)

const (
	cr = '\r'
	lf = '\n'
	nul = 0x00
)

// Reader wraps an io.Reader, yielding its content transcoded to netascii.
// It is not safe for concurrent use.
type Reader struct {
	src     *bufio.Reader
	pending byte
	havePending bool
}

// NewReader returns a Reader transcoding r to netascii.
func NewReader(r io.Reader) *Reader {
	return &Reader{src: bufio.NewReader(r)}
}

// Read implements io.Reader. Because CR and LF each expand to two output
// bytes, a call may return more transcoded bytes than source bytes it
// consumed; when only the first byte of such a pair fits in p, the second
// is held back and returned first by the next call. The source is read
// through a bufio.Reader, so it may be read ahead of what Read returns.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) {
		if r.havePending {
			p[n] = r.pending
			r.havePending = false
			n++
			continue
		}
		b, err := r.src.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		switch b {
		case cr:
			p[n] = cr
			n++
			r.pending = nul
			r.havePending = true
		case lf:
			p[n] = cr
			n++
			r.pending = lf
			r.havePending = true
		default:
			p[n] = b
			n++
		}
	}
	return n, nil
}

// TranscodedSize returns the length, in bytes, that transcoding r to
// netascii would produce, by running the full transform over a discard
// sink. Used to answer a `tsize` option request without buffering the
// transcoded stream.
func TranscodedSize(r io.Reader) (int64, error) {
	n, err := io.Copy(io.Discard, NewReader(r))
	if err != nil {
		return 0, err
	}
	return n, nil
}
