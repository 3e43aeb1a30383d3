package disk

import (
	"fmt"

	"github.com/waveform80/nobodd/checkpoint"
)

// ErrNoSuchPartition is returned by a PartitionSource when index does not
// name a partition present on the image.
var ErrNoSuchPartition = fmt.Errorf("disk: no such partition")

// PartitionSource locates a partition within a disk image and produces a
// Window over its bytes. Decoding the partition table itself (MBR, GPT, or
// otherwise) is outside this module's scope; implementations of this
// interface are the collaborator that supplies that decoding.
//
// index is 1-based, following the conventional numbering of MBR/GPT
// partitions (partition "1" is the first entry in the table).
type PartitionSource interface {
	Partition(img *Image, index uint32) (Window, error)
}

// WholeImage is the trivial PartitionSource used when a board's image file
// already contains a bare FAT volume rather than a partitioned disk image.
// It accepts only index 1, for which it returns a Window over the entire
// image.
type WholeImage struct{}

// Partition implements PartitionSource.
func (WholeImage) Partition(img *Image, index uint32) (Window, error) {
	if index != 1 {
		return Window{}, checkpoint.Wrapf(ErrNoSuchPartition, "partition %d (WholeImage only has partition 1)", index)
	}
	return img.Window(), nil
}
