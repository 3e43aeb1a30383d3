package fat

import (
	"io"

	"github.com/waveform80/nobodd/checkpoint"
)

// File is a read-only byte stream over a file's cluster chain. It
// implements io.Reader, io.Seeker, and io.ReaderAt; a File is not safe for
// concurrent use by multiple goroutines, but independent Files opened from
// the same FileSystem are.
type File struct {
	fs   *FileSystem
	size int64

	firstCluster uint32
	clusters     []uint32
	iter         *ClusterChain

	pos int64
}

func (fs *FileSystem) openEntry(entry Entry) *File {
	first := entry.Raw.FirstCluster()
	return &File{
		fs:           fs,
		size:         int64(entry.Raw.Size),
		firstCluster: first,
		iter:         fs.Chain(first),
	}
}

// clusterAt returns the index'th cluster of the file's chain, extending the
// cached prefix as needed.
func (f *File) clusterAt(index int) (uint32, error) {
	for len(f.clusters) <= index {
		c, ok, err := f.iter.Next()
		if err != nil {
			return 0, checkpoint.Wrapf(err, "walking cluster chain at index %d", len(f.clusters))
		}
		if !ok {
			return 0, io.EOF
		}
		f.clusters = append(f.clusters, c)
	}
	return f.clusters[index], nil
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if f.pos >= f.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	clusterBytes := int64(f.fs.ClusterBytes())
	index := int(f.pos / clusterBytes)
	offsetInCluster := f.pos % clusterBytes

	cluster, err := f.clusterAt(index)
	if err != nil {
		return 0, err
	}
	data, err := f.fs.readCluster(cluster)
	if err != nil {
		return 0, checkpoint.Wrapf(err, "reading cluster %d", cluster)
	}

	n := int64(len(p))
	if max := clusterBytes - offsetInCluster; n > max {
		n = max
	}
	if max := f.size - f.pos; n > max {
		n = max
	}

	copy(p, data[offsetInCluster:offsetInCluster+n])
	f.pos += n
	return int(n), nil
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		newPos = f.size + offset
	default:
		return 0, checkpoint.Wrap(ErrDamaged, ErrDamaged)
	}
	if newPos < 0 {
		return 0, checkpoint.Wrapf(ErrDamaged, "negative seek position %d", newPos)
	}
	f.pos = newPos
	return f.pos, nil
}

// ReadAt implements io.ReaderAt without disturbing the File's current
// position.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	save := f.pos
	defer func() { f.pos = save }()
	f.pos = off
	n := 0
	for n < len(p) {
		m, err := f.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Size returns the file's length in bytes, as recorded in its directory
// entry.
func (f *File) Size() int64 { return f.size }

// Close is a no-op; File holds no resources beyond its FileSystem's
// memory-mapped window.
func (f *File) Close() error { return nil }
