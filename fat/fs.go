package fat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"github.com/waveform80/nobodd/checkpoint"
	"github.com/waveform80/nobodd/disk"
)

// Sentinel errors returned (wrapped with call-site information via
// checkpoint) while constructing or reading a FileSystem.
var (
	ErrDamaged    = errors.New("fat: file system is damaged")
	ErrBadCluster = errors.New("fat: bad cluster marker encountered")
	ErrCycle      = errors.New("fat: cluster chain contains a cycle")
	ErrNotFound   = errors.New("fat: path not found")
	ErrNotADir    = errors.New("fat: not a directory")
	ErrIsADir     = errors.New("fat: is a directory")
	ErrReadOnly   = errors.New("fat: file system is read-only")
)

// FileSystem represents a FAT12, FAT16, or FAT32 file system bound to one
// partition window. It is constructed once and is immutable (and therefore
// safe for concurrent readers) for its entire lifetime; there is no write
// support.
type FileSystem struct {
	win disk.Window

	fatType Type

	bytesPerSector    uint16
	sectorsPerCluster uint8
	clusterBytes      uint32
	reservedSectors   uint16
	numFATs           uint8

	fatOffset       int64
	fatSize         uint32 // in bytes, per copy
	dataOffset      int64
	totalClusters   uint32

	// FAT12/16 only: fixed region of 32-byte directory entries.
	rootOffset int64
	rootLength int64

	// FAT32 only: the root directory is an ordinary cluster chain.
	rootCluster uint32

	label   string
	dirty   bool
	damaged bool

	loc time.Location
}

// New parses the BPB at the start of win and returns a FileSystem bound to
// it. It fails with an error wrapping ErrDamaged if the volume does not
// look like a valid FAT file system.
func New(win disk.Window) (*FileSystem, error) {
	sector0, err := win.Read(0, 512)
	if err != nil {
		return nil, checkpoint.Wrap(err, errors.New("fat: reading boot sector"))
	}

	if sector0[510] != 0x55 || sector0[511] != 0xAA {
		return nil, checkpoint.Wrap(ErrDamaged, errors.New("fat: missing 0x55AA boot signature"))
	}

	var bpb BPB
	if err := binary.Read(bytes.NewReader(sector0[:36]), binary.LittleEndian, &bpb); err != nil {
		return nil, checkpoint.Wrap(err, errors.New("fat: decoding BPB"))
	}

	switch bpb.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, checkpoint.Wrapf(ErrDamaged, "invalid bytes-per-sector %d", bpb.BytesPerSector)
	}
	if bpb.SectorsPerCluster == 0 || bpb.SectorsPerCluster&(bpb.SectorsPerCluster-1) != 0 {
		return nil, checkpoint.Wrapf(ErrDamaged, "invalid sectors-per-cluster %d", bpb.SectorsPerCluster)
	}
	if bpb.ReservedSectors < 1 {
		return nil, checkpoint.Wrap(ErrDamaged, errors.New("fat: reserved sector count must be >= 1"))
	}
	if bpb.NumFATs != 1 && bpb.NumFATs != 2 {
		return nil, checkpoint.Wrapf(ErrDamaged, "invalid number of FATs %d", bpb.NumFATs)
	}

	// fat_size: the 16-bit field, or the FAT32 extended field if that's 0.
	var bpb32 BPB32
	haveBPB32 := false
	if bpb.FATSize16 == 0 {
		if err := binary.Read(bytes.NewReader(sector0[36:90]), binary.LittleEndian, &bpb32); err != nil {
			return nil, checkpoint.Wrap(err, errors.New("fat: decoding FAT32 BPB"))
		}
		haveBPB32 = true
	}
	fatSizeSectors := uint32(bpb.FATSize16)
	if fatSizeSectors == 0 {
		fatSizeSectors = bpb32.FATSize32
	}
	if fatSizeSectors == 0 {
		return nil, checkpoint.Wrap(ErrDamaged, errors.New("fat: FAT size is 0"))
	}

	totalSectors := uint32(bpb.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = bpb.TotalSectors32
	}
	if totalSectors == 0 {
		return nil, checkpoint.Wrap(ErrDamaged, errors.New("fat: total sector count is 0"))
	}

	rootDirSectors := (uint32(bpb.RootEntryCount)*32 + uint32(bpb.BytesPerSector) - 1) / uint32(bpb.BytesPerSector)
	dataSectors := totalSectors - uint32(bpb.ReservedSectors) - uint32(bpb.NumFATs)*fatSizeSectors - rootDirSectors
	clusterCount := dataSectors / uint32(bpb.SectorsPerCluster)

	var fatType Type
	switch {
	case clusterCount < 4085:
		fatType = FAT12
	case clusterCount < 65525:
		fatType = FAT16
	default:
		fatType = FAT32
	}

	if fatType == FAT32 && bpb.RootEntryCount != 0 {
		return nil, checkpoint.Wrap(ErrDamaged, errors.New("fat: FAT32 volume has non-zero root entry count"))
	}
	if fatType != FAT32 && bpb.RootEntryCount == 0 {
		return nil, checkpoint.Wrap(ErrDamaged, errors.New("fat: FAT12/16 volume has zero root entry count"))
	}
	if fatType == FAT32 && !haveBPB32 {
		return nil, checkpoint.Wrap(ErrDamaged, errors.New("fat: volume looks like FAT32 but carries no FAT32 BPB"))
	}

	fs := &FileSystem{
		win:               win,
		fatType:           fatType,
		bytesPerSector:    bpb.BytesPerSector,
		sectorsPerCluster: bpb.SectorsPerCluster,
		clusterBytes:      uint32(bpb.BytesPerSector) * uint32(bpb.SectorsPerCluster),
		reservedSectors:   bpb.ReservedSectors,
		numFATs:           bpb.NumFATs,
		fatOffset:         int64(bpb.ReservedSectors) * int64(bpb.BytesPerSector),
		fatSize:           fatSizeSectors * uint32(bpb.BytesPerSector),
		totalClusters:     clusterCount,
		loc:               *time.UTC,
	}

	rootOffset := fs.fatOffset + int64(fs.numFATs)*int64(fs.fatSize)
	rootLength := int64(rootDirSectors) * int64(bpb.BytesPerSector)
	fs.dataOffset = rootOffset + rootLength

	if fatType == FAT32 {
		fs.rootCluster = bpb32.RootCluster
		fs.label = decodeLabel(bpb32.VolumeLabel)
		fs.damaged = !validInfoSector(win, bpb32.FSInfoSector, bpb.BytesPerSector)
		fs.dirty = false // FAT32 dirty bit is checked via the FAT itself, see fatEntry(1)
	} else {
		fs.rootOffset = rootOffset
		fs.rootLength = rootLength
		var bpb16 BPB16
		if err := binary.Read(bytes.NewReader(sector0[36:62]), binary.LittleEndian, &bpb16); err != nil {
			return nil, checkpoint.Wrap(err, errors.New("fat: decoding FAT16 BPB"))
		}
		fs.label = decodeLabel(bpb16.VolumeLabel)
	}

	if fatType != FAT12 {
		entry1, err := fs.fatEntry(1)
		if err == nil {
			switch fatType {
			case FAT16:
				fs.dirty = entry1&0x8000 == 0
				fs.damaged = fs.damaged || entry1&0x4000 == 0
			case FAT32:
				fs.dirty = entry1&0x8000000 == 0
				fs.damaged = fs.damaged || entry1&0x4000000 == 0
			}
		}
	}

	return fs, nil
}

func decodeLabel(raw [11]byte) string {
	s := string(raw[:])
	i := len(s)
	for i > 0 && s[i-1] == ' ' {
		i--
	}
	return s[:i]
}

func validInfoSector(win disk.Window, infoSector uint16, bytesPerSector uint16) bool {
	if infoSector == 0 || infoSector == 0xFFFF {
		// No info sector to check; not itself a sign of damage.
		return true
	}
	raw, err := win.Read(int64(infoSector)*int64(bytesPerSector), 512)
	if err != nil {
		return false
	}
	var info InfoSector
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &info); err != nil {
		return false
	}
	return info.LeadSignature == 0x41615252 &&
		info.StructSignature == 0x61417272 &&
		info.TrailSignature == 0xAA550000
}

// Type returns which of FAT12, FAT16, or FAT32 this file system uses.
func (fs *FileSystem) Type() Type { return fs.fatType }

// Label returns the volume label, trimmed of trailing spaces.
func (fs *FileSystem) Label() string { return fs.label }

// Dirty returns true if the file system's dirty bit was set at open time
// (an unclean unmount, e.g. power loss during a write).
func (fs *FileSystem) Dirty() bool { return fs.dirty }

// Damaged returns true if a defect was found that doesn't prevent reading
// the volume, but indicates it may be unreliable (e.g. an invalid FAT32
// info sector signature).
func (fs *FileSystem) Damaged() bool { return fs.damaged }

// ClusterBytes returns the size, in bytes, of one cluster.
func (fs *FileSystem) ClusterBytes() uint32 { return fs.clusterBytes }

// TotalClusters returns the number of data clusters on the volume.
func (fs *FileSystem) TotalClusters() uint32 { return fs.totalClusters }

// clusterOffset returns the byte offset, within the file system's window,
// of the start of data cluster c. Clusters are numbered from 2.
func (fs *FileSystem) clusterOffset(c uint32) int64 {
	return fs.dataOffset + int64(c-2)*int64(fs.clusterBytes)
}

// readCluster returns the raw bytes of data cluster c.
func (fs *FileSystem) readCluster(c uint32) ([]byte, error) {
	return fs.win.Read(fs.clusterOffset(c), int64(fs.clusterBytes))
}
