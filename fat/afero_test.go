package fat

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/waveform80/nobodd/disk"
)

func newTestAferoFS(t *testing.T) *FileSystem {
	t.Helper()
	img := buildFAT12Image(t)
	fs, err := New(disk.NewWindow(img))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return fs
}

func TestAferoFS_Name(t *testing.T) {
	fs := newTestAferoFS(t)
	afs := fs.Afero()
	if got, want := afs.Name(), "fat.AferoFS("+fs.Label()+")"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}

func TestAferoFS_OpenFile(t *testing.T) {
	afs := newTestAferoFS(t).Afero()

	f, err := afs.Open("HELLO.TXT")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("contents = %q, want %q", data, "hello")
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Name() != "HELLO.TXT" || info.IsDir() {
		t.Errorf("Stat() = %+v, want file named HELLO.TXT", info)
	}
}

func TestAferoFS_OpenMissing(t *testing.T) {
	afs := newTestAferoFS(t).Afero()
	if _, err := afs.Open("nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
}

func TestAferoFS_OpenDirectory(t *testing.T) {
	afs := newTestAferoFS(t).Afero()

	d, err := afs.Open("/")
	if err != nil {
		t.Fatalf("Open(\"/\") error = %v", err)
	}
	defer d.Close()

	if _, err := d.Read(make([]byte, 1)); !errors.Is(err, ErrIsADir) {
		t.Errorf("Read(dir) error = %v, want ErrIsADir", err)
	}

	names, err := d.Readdirnames(0)
	if err != nil {
		t.Fatalf("Readdirnames() error = %v", err)
	}
	if len(names) != 1 || names[0] != "HELLO.TXT" {
		t.Errorf("Readdirnames() = %v, want [HELLO.TXT]", names)
	}
}

func TestAferoFS_Readdir(t *testing.T) {
	afs := newTestAferoFS(t).Afero()

	d, err := afs.Open("/")
	if err != nil {
		t.Fatalf("Open(\"/\") error = %v", err)
	}
	defer d.Close()

	infos, err := d.Readdir(0)
	if err != nil {
		t.Fatalf("Readdir() error = %v", err)
	}
	if len(infos) != 1 || infos[0].Name() != "HELLO.TXT" {
		t.Fatalf("Readdir() = %+v, want single HELLO.TXT entry", infos)
	}

	limited, err := d.Readdir(1)
	if err != nil {
		t.Fatalf("Readdir(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Readdir(1) returned %d entries, want 1", len(limited))
	}
}

func TestAferoFS_Stat(t *testing.T) {
	afs := newTestAferoFS(t).Afero()

	info, err := afs.Stat("HELLO.TXT")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("Size() = %d, want 5", info.Size())
	}
}

func TestAferoFS_OpenFileRejectsWrite(t *testing.T) {
	afs := newTestAferoFS(t).Afero()

	if _, err := afs.OpenFile("HELLO.TXT", os.O_RDWR, 0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("OpenFile(O_RDWR) error = %v, want ErrReadOnly", err)
	}
	if _, err := afs.OpenFile("NEW.TXT", os.O_CREATE|os.O_WRONLY, 0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("OpenFile(O_CREATE|O_WRONLY) error = %v, want ErrReadOnly", err)
	}
	if _, err := afs.OpenFile("HELLO.TXT", os.O_RDONLY, 0); err != nil {
		t.Errorf("OpenFile(O_RDONLY) error = %v, want nil", err)
	}
}

func TestAferoFS_MutatingMethodsRejected(t *testing.T) {
	afs := newTestAferoFS(t).Afero()

	cases := []struct {
		name string
		call func() error
	}{
		{"Mkdir", func() error { return afs.Mkdir("d", 0) }},
		{"MkdirAll", func() error { return afs.MkdirAll("d/e", 0) }},
		{"Remove", func() error { return afs.Remove("HELLO.TXT") }},
		{"RemoveAll", func() error { return afs.RemoveAll("d") }},
		{"Rename", func() error { return afs.Rename("HELLO.TXT", "BYE.TXT") }},
		{"Chmod", func() error { return afs.Chmod("HELLO.TXT", 0) }},
		{"Chown", func() error { return afs.Chown("HELLO.TXT", 0, 0) }},
		{"Chtimes", func() error { return afs.Chtimes("HELLO.TXT", time.Time{}, time.Time{}) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.call(); !errors.Is(err, ErrReadOnly) {
				t.Errorf("%s() error = %v, want ErrReadOnly", c.name, err)
			}
		})
	}

	if _, err := afs.Create("NEW.TXT"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Create() error = %v, want ErrReadOnly", err)
	}
}

func TestAferoFile_MutatingMethodsRejected(t *testing.T) {
	afs := newTestAferoFS(t).Afero()
	f, err := afs.Open("HELLO.TXT")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write() error = %v, want ErrReadOnly", err)
	}
	if _, err := f.WriteAt([]byte("x"), 0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("WriteAt() error = %v, want ErrReadOnly", err)
	}
	if _, err := f.WriteString("x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("WriteString() error = %v, want ErrReadOnly", err)
	}
	if err := f.Truncate(0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Truncate() error = %v, want ErrReadOnly", err)
	}
	if err := f.Sync(); err != nil {
		t.Errorf("Sync() error = %v, want nil", err)
	}
}
