package fat

import (
	"os"
	"path"
	"time"

	"github.com/spf13/afero"

	"github.com/waveform80/nobodd/checkpoint"
)

// AferoFS adapts a read-only FileSystem to the afero.Fs interface, the way
// github.com/aligator/gofat's Fs does for its own FAT implementation. Every
// mutating method fails with ErrReadOnly; there is no write support.
type AferoFS struct {
	fs *FileSystem
}

// Afero returns fs wrapped as an afero.Fs, for callers (e.g. afero.Walk) that
// want the generic afero.Fs/afero.File interfaces rather than fs's own
// Resolve/Open/ReadDirPath methods.
func (fs *FileSystem) Afero() afero.Fs {
	return AferoFS{fs: fs}
}

func clean(name string) string {
	return path.Clean("/" + name)
}

// Open implements afero.Fs. It opens both regular files and directories;
// only the latter support Readdir/Readdirnames.
func (a AferoFS) Open(name string) (afero.File, error) {
	entry, err := a.fs.Resolve(clean(name))
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return &aferoFile{fs: a.fs, path: clean(name), entry: entry}, nil
	}
	f, err := a.fs.Open(clean(name))
	if err != nil {
		return nil, err
	}
	return &aferoFile{fs: a.fs, path: clean(name), entry: entry, file: f}, nil
}

// OpenFile implements afero.Fs. Any flag other than os.O_RDONLY is
// rejected with ErrReadOnly.
func (a AferoFS) OpenFile(name string, flag int, _ os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_TRUNC) != 0 {
		return nil, checkpoint.Wrapf(ErrReadOnly, "opening %q", name)
	}
	return a.Open(name)
}

// Stat implements afero.Fs.
func (a AferoFS) Stat(name string) (os.FileInfo, error) {
	entry, err := a.fs.Resolve(clean(name))
	if err != nil {
		return nil, err
	}
	return entry.FileInfo(), nil
}

// Name implements afero.Fs.
func (a AferoFS) Name() string { return "fat.AferoFS(" + a.fs.Label() + ")" }

func (a AferoFS) Create(name string) (afero.File, error) {
	return nil, checkpoint.Wrapf(ErrReadOnly, "creating %q", name)
}
func (a AferoFS) Mkdir(name string, _ os.FileMode) error {
	return checkpoint.Wrapf(ErrReadOnly, "creating directory %q", name)
}
func (a AferoFS) MkdirAll(path string, _ os.FileMode) error {
	return checkpoint.Wrapf(ErrReadOnly, "creating directory %q", path)
}
func (a AferoFS) Remove(name string) error {
	return checkpoint.Wrapf(ErrReadOnly, "removing %q", name)
}
func (a AferoFS) RemoveAll(path string) error {
	return checkpoint.Wrapf(ErrReadOnly, "removing %q", path)
}
func (a AferoFS) Rename(oldname, newname string) error {
	return checkpoint.Wrapf(ErrReadOnly, "renaming %q to %q", oldname, newname)
}
func (a AferoFS) Chmod(name string, _ os.FileMode) error {
	return checkpoint.Wrapf(ErrReadOnly, "chmod %q", name)
}
func (a AferoFS) Chown(name string, _, _ int) error {
	return checkpoint.Wrapf(ErrReadOnly, "chown %q", name)
}
func (a AferoFS) Chtimes(name string, _, _ time.Time) error {
	return checkpoint.Wrapf(ErrReadOnly, "chtimes %q", name)
}

// aferoFile adapts a resolved Entry (and, for regular files, a *File) to
// afero.File. Directories carry no *File, only their Entry; Readdir lists
// the directory lazily on first call.
type aferoFile struct {
	fs    *FileSystem
	path  string
	entry Entry
	file  *File

	dirEntries []Entry
	dirRead    bool
}

func (a *aferoFile) Read(p []byte) (int, error) {
	if a.file == nil {
		return 0, checkpoint.Wrap(ErrIsADir, ErrIsADir)
	}
	return a.file.Read(p)
}

func (a *aferoFile) ReadAt(p []byte, off int64) (int, error) {
	if a.file == nil {
		return 0, checkpoint.Wrap(ErrIsADir, ErrIsADir)
	}
	return a.file.ReadAt(p, off)
}

func (a *aferoFile) Seek(offset int64, whence int) (int64, error) {
	if a.file == nil {
		return 0, checkpoint.Wrap(ErrIsADir, ErrIsADir)
	}
	return a.file.Seek(offset, whence)
}

func (a *aferoFile) Write([]byte) (int, error) {
	return 0, checkpoint.Wrapf(ErrReadOnly, "writing %q", a.path)
}
func (a *aferoFile) WriteAt([]byte, int64) (int, error) {
	return 0, checkpoint.Wrapf(ErrReadOnly, "writing %q", a.path)
}
func (a *aferoFile) WriteString(string) (int, error) {
	return 0, checkpoint.Wrapf(ErrReadOnly, "writing %q", a.path)
}
func (a *aferoFile) Truncate(int64) error {
	return checkpoint.Wrapf(ErrReadOnly, "truncating %q", a.path)
}
func (a *aferoFile) Sync() error { return nil }
func (a *aferoFile) Close() error {
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

func (a *aferoFile) Name() string { return a.path }

func (a *aferoFile) Stat() (os.FileInfo, error) {
	return a.entry.FileInfo(), nil
}

func (a *aferoFile) readdir() ([]Entry, error) {
	if !a.dirRead {
		entries, err := a.fs.ReadDirPath(a.path)
		if err != nil {
			return nil, err
		}
		a.dirEntries = entries
		a.dirRead = true
	}
	return a.dirEntries, nil
}

func (a *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	entries, err := a.readdir()
	if err != nil {
		return nil, err
	}
	if count > 0 && count < len(entries) {
		entries = entries[:count]
	}
	infos := make([]os.FileInfo, len(entries))
	for i, e := range entries {
		infos[i] = e.FileInfo()
	}
	return infos, nil
}

func (a *aferoFile) Readdirnames(count int) ([]string, error) {
	entries, err := a.readdir()
	if err != nil {
		return nil, err
	}
	if count > 0 && count < len(entries) {
		entries = entries[:count]
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}
