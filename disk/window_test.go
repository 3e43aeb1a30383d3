package disk

import (
	"bytes"
	"errors"
	"testing"
)

func testWindow(data []byte) Window {
	return Window{data: data}
}

func TestWindow_Len(t *testing.T) {
	w := testWindow(make([]byte, 42))
	if got := w.Len(); got != 42 {
		t.Errorf("Len() = %d, want 42", got)
	}
}

func TestWindow_Read(t *testing.T) {
	data := []byte("0123456789")
	w := testWindow(data)

	tests := []struct {
		name    string
		offset  int64
		n       int64
		want    []byte
		wantErr bool
	}{
		{"whole", 0, 10, data, false},
		{"middle", 2, 3, []byte("234"), false},
		{"empty", 5, 0, []byte{}, false},
		{"past end", 5, 10, nil, true},
		{"negative offset", -1, 1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Read(tt.offset, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Read() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrOutOfRange) {
					t.Errorf("Read() error = %v, want ErrOutOfRange", err)
				}
				return
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Read() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWindow_Sub(t *testing.T) {
	data := []byte("0123456789")
	w := testWindow(data)

	sub, err := w.Sub(3, 4)
	if err != nil {
		t.Fatalf("Sub() error = %v", err)
	}
	if !bytes.Equal(sub.Bytes(), []byte("3456")) {
		t.Errorf("Sub() = %q, want %q", sub.Bytes(), "3456")
	}

	// subwindows of a subwindow compose
	subsub, err := sub.Sub(1, 2)
	if err != nil {
		t.Fatalf("Sub(Sub()) error = %v", err)
	}
	if !bytes.Equal(subsub.Bytes(), []byte("45")) {
		t.Errorf("Sub(Sub()) = %q, want %q", subsub.Bytes(), "45")
	}

	if _, err := w.Sub(8, 10); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Sub() past end error = %v, want ErrOutOfRange", err)
	}
}

func TestWindow_ReadAt(t *testing.T) {
	data := []byte("0123456789")
	w := testWindow(data)

	buf := make([]byte, 4)
	n, err := w.ReadAt(buf, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != 4 || !bytes.Equal(buf, []byte("6789")) {
		t.Errorf("ReadAt() = %d, %q, want 4, %q", n, buf, "6789")
	}

	// a read that runs past the end returns a short count and io.EOF
	buf = make([]byte, 8)
	n, err = w.ReadAt(buf, 6)
	if n != 4 {
		t.Errorf("ReadAt() past end n = %d, want 4", n)
	}
	if err == nil {
		t.Error("ReadAt() past end expected an error")
	}
}
