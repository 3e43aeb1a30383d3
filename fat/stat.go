package fat

import (
	"os"
	"time"
)

// FileInfo returns an os.FileInfo view of a resolved directory Entry.
func (e Entry) FileInfo() os.FileInfo {
	return entryFileInfo{e}
}

type entryFileInfo struct {
	entry Entry
}

func (i entryFileInfo) Name() string { return i.entry.Name() }

func (i entryFileInfo) Size() int64 {
	if i.IsDir() {
		return 0
	}
	return int64(i.entry.Raw.Size)
}

func (i entryFileInfo) Mode() os.FileMode {
	if i.IsDir() {
		return os.ModeDir | 0o555
	}
	if i.entry.Raw.Attr&AttrReadOnly != 0 {
		return 0o444
	}
	return 0o644
}

func (i entryFileInfo) ModTime() time.Time {
	return modTime(i.entry.Raw.WriteDate, i.entry.Raw.WriteTime)
}

func (i entryFileInfo) IsDir() bool {
	return i.entry.Raw.Attr&AttrDir != 0
}

func (i entryFileInfo) Sys() interface{} { return i.entry.Raw }
