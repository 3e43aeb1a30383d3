package fat

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

func lfnSlot(seq byte, name string) LongNameEntry {
	units := utf16.Encode([]rune(name))
	if len(units) < 13 {
		units = append(units, 0x0000)
	}
	for len(units) < 13 {
		units = append(units, 0xFFFF)
	}
	var e LongNameEntry
	e.Sequence = seq
	copy(e.Name1[:], units[0:5])
	copy(e.Name2[:], units[5:11])
	copy(e.Name3[:], units[11:13])
	e.Attr = AttrLongName
	return e
}

func encodeRecord(t *testing.T, v interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		t.Fatalf("encoding record: %v", err)
	}
	out := make([]byte, 32)
	copy(out, buf.Bytes())
	return out
}

func TestReadDir_LongFileName(t *testing.T) {
	short := DirEntry{
		Name: [8]byte{'R', 'A', 'S', 'P', 'B', 'E', '~', '1'},
		Ext:  [3]byte{'I', 'M', 'G'},
		Attr: AttrArchive,
		Size: 100,
	}
	sum := lfnChecksum(short.Name, short.Ext)

	long2 := lfnSlot(2|0x40, "img")
	long2.Checksum = sum
	long1 := lfnSlot(1, "raspberry-pi.")
	long1.Checksum = sum

	var raw []byte
	raw = append(raw, encodeRecord(t, &long2)...)
	raw = append(raw, encodeRecord(t, &long1)...)
	raw = append(raw, encodeRecord(t, &short)...)

	entries, err := readDir(raw)
	if err != nil {
		t.Fatalf("readDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if got, want := entries[0].Name(), "raspberry-pi.img"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
	if entries[0].ShortName != "RASPBE~1.IMG" {
		t.Errorf("ShortName = %q, want %q", entries[0].ShortName, "RASPBE~1.IMG")
	}
}

func TestReadDir_ChecksumMismatchFallsBackToShortName(t *testing.T) {
	short := DirEntry{
		Name: [8]byte{'R', 'A', 'S', 'P', 'B', '~', '1', ' '},
		Ext:  [3]byte{'I', 'M', 'G'},
		Attr: AttrArchive,
	}
	long1 := lfnSlot(1|0x40, "raspberry-pi.img")
	long1.Checksum = lfnChecksum(short.Name, short.Ext) + 1 // deliberately wrong

	var raw []byte
	raw = append(raw, encodeRecord(t, &long1)...)
	raw = append(raw, encodeRecord(t, &short)...)

	entries, err := readDir(raw)
	if err != nil {
		t.Fatalf("readDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].LongName != "" {
		t.Fatalf("entries = %+v, want short-name-only fallback", entries)
	}
}

func TestReadDir_SkipsDeletedAndStopsAtEnd(t *testing.T) {
	deleted := DirEntry{Name: [8]byte{0xE5, 'O', 'L', 'D', ' ', ' ', ' ', ' '}, Ext: [3]byte{'T', 'X', 'T'}}
	live := DirEntry{Name: [8]byte{'A', ' ', ' ', ' ', ' ', ' ', ' ', ' '}, Ext: [3]byte{'T', 'X', 'T'}, Attr: AttrArchive}
	end := DirEntry{}

	var raw []byte
	raw = append(raw, encodeRecord(t, &deleted)...)
	raw = append(raw, encodeRecord(t, &live)...)
	raw = append(raw, encodeRecord(t, &end)...)
	raw = append(raw, encodeRecord(t, &live)...) // past the end marker, must be ignored

	entries, err := readDir(raw)
	if err != nil {
		t.Fatalf("readDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ShortName != "A.TXT" {
		t.Fatalf("entries = %+v, want single A.TXT", entries)
	}
}
