package fat

import (
	"strings"

	"github.com/waveform80/nobodd/checkpoint"
)

// split breaks a slash-separated path into its non-empty components.
func split(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// lookup finds the entry named name (case-insensitive, matched against
// either the long or the short name) within the directory at cluster (0 for
// root), returning ErrNotFound if there is no such entry.
func (fs *FileSystem) lookup(cluster uint32, name string) (Entry, error) {
	entries, err := fs.ReadDir(cluster)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.LongName, name) || strings.EqualFold(e.ShortName, name) {
			return e, nil
		}
	}
	return Entry{}, checkpoint.Wrapf(ErrNotFound, "no such entry %q", name)
}

// Resolve walks path, a slash-separated name relative to the root
// directory, and returns the Entry it names.
func (fs *FileSystem) Resolve(path string) (Entry, error) {
	parts := split(path)
	if len(parts) == 0 {
		return Entry{
			LongName: "/",
			Raw:      DirEntry{Attr: AttrDir},
		}, nil
	}

	var cluster uint32
	for i, part := range parts {
		entry, err := fs.lookup(cluster, part)
		if err != nil {
			return Entry{}, checkpoint.Wrapf(err, "resolving %q", path)
		}
		if i < len(parts)-1 {
			if !entry.IsDir() {
				return Entry{}, checkpoint.Wrapf(ErrNotADir, "%q is not a directory", part)
			}
			cluster = entry.Raw.FirstCluster()
			continue
		}
		return entry, nil
	}
	panic("fat: unreachable")
}

// Open resolves path and returns a File reading its contents. It fails with
// an error wrapping ErrIsADir if path names a directory.
func (fs *FileSystem) Open(path string) (*File, error) {
	entry, err := fs.Resolve(path)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, checkpoint.Wrapf(ErrIsADir, "%q is a directory", path)
	}
	return fs.openEntry(entry), nil
}

// Stat resolves path and returns the Entry describing it; Entry.FileInfo
// gives an os.FileInfo view of it.
func (fs *FileSystem) Stat(path string) (Entry, error) {
	return fs.Resolve(path)
}

// ReadDirPath resolves path and lists its contents. It fails with an error
// wrapping ErrNotADir if path names a file.
func (fs *FileSystem) ReadDirPath(path string) ([]Entry, error) {
	if len(split(path)) == 0 {
		return fs.ReadDir(0)
	}
	entry, err := fs.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !entry.IsDir() {
		return nil, checkpoint.Wrapf(ErrNotADir, "%q is not a directory", path)
	}
	return fs.ReadDir(entry.Raw.FirstCluster())
}
