package fat

import (
	"errors"
	"testing"

	"github.com/waveform80/nobodd/disk"
)

// minimalFAT16 builds a FileSystem with a hand-written FAT16 table of n
// entries, for exercising fatEntry/ClusterChain without going through New.
func minimalFAT16(t *testing.T, entries []uint16) *FileSystem {
	t.Helper()
	raw := make([]byte, len(entries)*2)
	for i, v := range entries {
		raw[i*2] = byte(v)
		raw[i*2+1] = byte(v >> 8)
	}
	return &FileSystem{
		win:           disk.NewWindow(raw),
		fatType:       FAT16,
		fatOffset:     0,
		totalClusters: uint32(len(entries)),
	}
}

func TestFATEntry_FAT16(t *testing.T) {
	fs := minimalFAT16(t, []uint16{0xFFF8, 0xFFF8, 5, 0xFFF7, 0xFFF8})

	v, err := fs.fatEntry(2)
	if err != nil {
		t.Fatalf("fatEntry(2) error = %v", err)
	}
	if v != 5 {
		t.Errorf("fatEntry(2) = %d, want 5", v)
	}
}

func TestClusterChain_EndOfChain(t *testing.T) {
	// cluster 2 -> 3 -> end
	fs := minimalFAT16(t, []uint16{0, 0, 3, 0xFFFF, 0, 0})
	got, err := fs.Chain(2).All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	want := []uint32{2, 3}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("All() = %v, want %v", got, want)
	}
}

func TestClusterChain_BadCluster(t *testing.T) {
	fs := minimalFAT16(t, []uint16{0, 0, 0xFFF7, 0, 0})
	_, err := fs.Chain(2).All()
	if !errors.Is(err, ErrBadCluster) {
		t.Errorf("All() error = %v, want ErrBadCluster", err)
	}
}

func TestClusterChain_Cycle(t *testing.T) {
	// cluster 2 -> 3 -> 2 -> ...
	fs := minimalFAT16(t, []uint16{0, 0, 3, 2, 0, 0})
	_, err := fs.Chain(2).All()
	if !errors.Is(err, ErrCycle) {
		t.Errorf("All() error = %v, want ErrCycle", err)
	}
}
