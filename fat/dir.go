package fat

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"github.com/waveform80/nobodd/checkpoint"
)

// Entry is a single resolved directory entry: the on-disk DirEntry plus its
// name, with any VFAT long filename already reassembled (and checksum
// validated) against it.
type Entry struct {
	LongName  string
	ShortName string
	Raw       DirEntry
}

// Name returns the entry's long name if it has one, otherwise its 8.3 short
// name.
func (e Entry) Name() string {
	if e.LongName != "" {
		return e.LongName
	}
	return e.ShortName
}

func (e Entry) IsDir() bool { return e.Raw.Attr&AttrDir != 0 }

// lfnChecksum computes the VFAT checksum of an 8.3 name used to bind
// LongNameEntry slots to the DirEntry they precede.
func lfnChecksum(name [8]byte, ext [3]byte) byte {
	var sum byte
	for _, b := range append(append([]byte{}, name[:]...), ext[:]...) {
		sum = ((sum & 1) << 7) | (sum >> 1)
		sum += b
	}
	return sum
}

func shortName(name [8]byte, ext [3]byte) string {
	n := strings.TrimRight(string(name[:]), " ")
	e := strings.TrimRight(string(ext[:]), " ")
	if e == "" {
		return n
	}
	return n + "." + e
}

// decodeLongName assembles the UTF-16LE characters from slots (ordered from
// logical index 1 upward) into a string, trimmed at the first 0x0000 or
// 0xFFFF padding code unit.
func decodeLongName(slots map[int]LongNameEntry, count int) string {
	units := make([]uint16, 0, count*13)
	for i := 1; i <= count; i++ {
		slot, ok := slots[i]
		if !ok {
			return ""
		}
		for _, u := range slot.Chars() {
			if u == 0x0000 || u == 0xFFFF {
				return string(utf16.Decode(units))
			}
			units = append(units, u)
		}
	}
	return string(utf16.Decode(units))
}

// readDir decodes a directory region (32-byte records, as produced by
// rootRegion or a sub-directory's cluster chain) into an ordered slice of
// Entry, reassembling VFAT long-filename slots into the short-name entry
// they precede.
func readDir(raw []byte) ([]Entry, error) {
	var (
		entries  []Entry
		lfnSlots map[int]LongNameEntry
		lfnCount int
	)
	reset := func() {
		lfnSlots = nil
		lfnCount = 0
	}

	for off := 0; off+32 <= len(raw); off += 32 {
		rec := raw[off : off+32]
		if rec[0] == 0x00 {
			break
		}
		if rec[0] == 0xE5 {
			reset()
			continue
		}

		attr := rec[11]
		if attr&AttrLongName == AttrLongName {
			var lfn LongNameEntry
			if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &lfn); err != nil {
				return nil, checkpoint.Wrap(err, ErrDamaged)
			}
			idx := lfn.SequenceIndex()
			if lfn.IsLast() {
				lfnSlots = map[int]LongNameEntry{idx: lfn}
				lfnCount = idx
			} else if lfnSlots != nil {
				lfnSlots[idx] = lfn
			}
			continue
		}

		var de DirEntry
		if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &de); err != nil {
			return nil, checkpoint.Wrap(err, ErrDamaged)
		}

		sfn := shortName(de.Name, de.Ext)
		var longName string
		if lfnSlots != nil {
			want := lfnChecksum(de.Name, de.Ext)
			haveAll := true
			for i := 1; i <= lfnCount; i++ {
				if s, ok := lfnSlots[i]; !ok || s.Checksum != want {
					haveAll = false
					break
				}
			}
			if haveAll {
				longName = decodeLongName(lfnSlots, lfnCount)
			}
		}
		reset()

		// Volume-label entries in the root directory are not files.
		if de.Attr&AttrVolumeID != 0 {
			continue
		}

		entries = append(entries, Entry{
			LongName:  longName,
			ShortName: sfn,
			Raw:       de,
		})
	}
	return entries, nil
}

// rootRegion returns the raw directory bytes of the file system's root
// directory: a fixed region for FAT12/16, or the cluster chain starting at
// the FAT32 root cluster.
func (fs *FileSystem) rootRegion() ([]byte, error) {
	if fs.fatType == FAT32 {
		return fs.readChainBytes(fs.rootCluster)
	}
	return fs.win.Read(fs.rootOffset, fs.rootLength)
}

// readChainBytes concatenates the contents of every cluster in the chain
// starting at first, in order.
func (fs *FileSystem) readChainBytes(first uint32) ([]byte, error) {
	chain := fs.Chain(first)
	var buf []byte
	for {
		c, ok, err := chain.Next()
		if err != nil {
			return buf, err
		}
		if !ok {
			break
		}
		data, err := fs.readCluster(c)
		if err != nil {
			return buf, checkpoint.Wrapf(err, "reading cluster %d", c)
		}
		buf = append(buf, data...)
	}
	return buf, nil
}

// ReadDir lists the entries of the directory whose first cluster is
// cluster. Pass cluster 0 to list the root directory.
func (fs *FileSystem) ReadDir(cluster uint32) ([]Entry, error) {
	var raw []byte
	var err error
	if cluster == 0 {
		raw, err = fs.rootRegion()
	} else {
		raw, err = fs.readChainBytes(cluster)
	}
	if err != nil {
		return nil, err
	}
	return readDir(raw)
}
