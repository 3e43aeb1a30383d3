package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoad_BasicBoard(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "nobodd.conf")
	writeFile(t, main, `
[tftp]
listen = 192.0.2.1
port = 6969

[board:00000000abcd1234]
image = boot.img
partition = 2
ip = 192.0.2.5
`)

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != "192.0.2.1" || cfg.Port != "6969" {
		t.Errorf("listen/port = %q/%q", cfg.Listen, cfg.Port)
	}
	board, ok := cfg.Registry.Lookup(0xabcd1234)
	if !ok {
		t.Fatalf("board 0xabcd1234 not found")
	}
	if board.ImagePath != "boot.img" || board.Partition != 2 {
		t.Errorf("board = %+v", board)
	}
	if board.IP == nil || board.IP.String() != "192.0.2.5" {
		t.Errorf("board.IP = %v, want 192.0.2.5", board.IP)
	}
}

func TestLoad_IncludedirOverridesLexicographically(t *testing.T) {
	dir := t.TempDir()
	incDir := filepath.Join(dir, "conf.d")
	if err := os.Mkdir(incDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	main := filepath.Join(dir, "nobodd.conf")
	writeFile(t, main, `
[tftp]
includedir = conf.d

[board:11111111]
image = a.img
`)
	writeFile(t, filepath.Join(incDir, "10-first.conf"), `
[board:11111111]
image = b.img
`)
	writeFile(t, filepath.Join(incDir, "20-second.conf"), `
[board:11111111]
image = c.img
`)

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	board, ok := cfg.Registry.Lookup(0x11111111)
	if !ok {
		t.Fatalf("board not found")
	}
	if board.ImagePath != "c.img" {
		t.Errorf("ImagePath = %q, want %q (last included file should win)", board.ImagePath, "c.img")
	}
}

func TestLoad_IncludedirMergesKeysNotWholeSections(t *testing.T) {
	dir := t.TempDir()
	incDir := filepath.Join(dir, "conf.d")
	if err := os.Mkdir(incDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	main := filepath.Join(dir, "nobodd.conf")
	writeFile(t, main, `
[tftp]
includedir = conf.d

[board:11111111]
image = a.img
partition = 1
`)
	// This file only repeats partition; image must be inherited from
	// main, not reset to empty.
	writeFile(t, filepath.Join(incDir, "10-partition.conf"), `
[board:11111111]
partition = 2
`)

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	board, ok := cfg.Registry.Lookup(0x11111111)
	if !ok {
		t.Fatalf("board not found")
	}
	if board.ImagePath != "a.img" {
		t.Errorf("ImagePath = %q, want %q (key not repeated in include file should be inherited)", board.ImagePath, "a.img")
	}
	if board.Partition != 2 {
		t.Errorf("Partition = %d, want 2", board.Partition)
	}
}

func TestLoad_InvalidIP(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "nobodd.conf")
	writeFile(t, main, `
[board:11111111]
image = a.img
ip = not-an-ip
`)
	if _, err := Load(main); err == nil {
		t.Fatalf("Load() error = nil, want error for invalid ip")
	}
}
