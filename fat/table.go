package fat

import (
	"encoding/binary"

	"github.com/waveform80/nobodd/checkpoint"
)

// fatEntry reads the value of cluster c's entry in the (first copy of the)
// FAT: 12 bits for FAT12, 16 bits for FAT16, and the low 28 bits for FAT32.
// End-of-chain/bad-cluster comparisons are left to the caller.
func (fs *FileSystem) fatEntry(c uint32) (uint32, error) {
	switch fs.fatType {
	case FAT12:
		offset := fs.fatOffset + int64(c+c/2)
		raw, err := fs.win.Read(offset, 2)
		if err != nil {
			return 0, checkpoint.Wrapf(err, "reading FAT12 entry for cluster %d", c)
		}
		v := binary.LittleEndian.Uint16(raw)
		if c%2 == 0 {
			return uint32(v & 0x0FFF), nil
		}
		return uint32(v >> 4), nil
	case FAT16:
		offset := fs.fatOffset + int64(c)*2
		raw, err := fs.win.Read(offset, 2)
		if err != nil {
			return 0, checkpoint.Wrapf(err, "reading FAT16 entry for cluster %d", c)
		}
		return uint32(binary.LittleEndian.Uint16(raw)), nil
	case FAT32:
		offset := fs.fatOffset + int64(c)*4
		raw, err := fs.win.Read(offset, 4)
		if err != nil {
			return 0, checkpoint.Wrapf(err, "reading FAT32 entry for cluster %d", c)
		}
		return binary.LittleEndian.Uint32(raw) & 0x0FFFFFFF, nil
	default:
		panic("fat: unreachable fat type")
	}
}

// endMarker and badMarker report the type-specific threshold and exact
// value that indicate end-of-chain and a bad cluster respectively.
func (fs *FileSystem) endMarker() uint32 {
	switch fs.fatType {
	case FAT12:
		return 0x0FF8
	case FAT16:
		return 0xFFF8
	default:
		return 0x0FFFFFF8
	}
}

func (fs *FileSystem) badMarker() uint32 {
	switch fs.fatType {
	case FAT12:
		return 0x0FF7
	case FAT16:
		return 0xFFF7
	default:
		return 0x0FFFFFF7
	}
}

// ClusterChain lazily walks the FAT from a starting cluster, yielding every
// cluster index in the chain, in order, until an end-of-chain marker is
// found.
type ClusterChain struct {
	fs      *FileSystem
	next    uint32
	done    bool
	visited map[uint32]struct{}
}

// Chain returns a ClusterChain starting at cluster start.
func (fs *FileSystem) Chain(start uint32) *ClusterChain {
	return &ClusterChain{fs: fs, next: start}
}

// Next returns the next cluster in the chain, or (0, false, nil) once the
// chain is exhausted. An error is returned, wrapping ErrBadCluster or
// ErrCycle, if the FAT is corrupt.
func (c *ClusterChain) Next() (uint32, bool, error) {
	if c.done {
		return 0, false, nil
	}
	cur := c.next
	if cur >= c.fs.badMarker() && cur < c.fs.endMarker() {
		c.done = true
		return 0, false, checkpoint.Wrapf(ErrBadCluster, "cluster %d is marked bad", cur)
	}
	if cur >= c.fs.endMarker() {
		c.done = true
		return 0, false, nil
	}
	if c.visited == nil {
		c.visited = make(map[uint32]struct{}, 16)
	}
	if _, seen := c.visited[cur]; seen {
		c.done = true
		return 0, false, checkpoint.Wrapf(ErrCycle, "cluster %d revisited", cur)
	}
	if uint32(len(c.visited)) > c.fs.TotalClusters() {
		c.done = true
		return 0, false, checkpoint.Wrap(ErrCycle, ErrCycle)
	}
	c.visited[cur] = struct{}{}

	next, err := c.fs.fatEntry(cur)
	if err != nil {
		c.done = true
		return 0, false, err
	}
	c.next = next
	return cur, true, nil
}

// All drains the chain into a slice. Useful for tests and for small
// directories; file reads use Next directly to avoid buffering the whole
// chain up front.
func (c *ClusterChain) All() ([]uint32, error) {
	var out []uint32
	for {
		cl, ok, err := c.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, cl)
	}
}
