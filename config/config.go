// Package config loads the server's INI-format configuration: the [tftp]
// section and one [board:SERIAL] section per configured board, including
// the includedir override mechanism.
package config

import (
	"errors"
	"net"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/waveform80/nobodd/boot"
	"github.com/waveform80/nobodd/checkpoint"
)

// ErrInvalidIP is returned when a board section's ip key doesn't parse as
// an IPv4 or IPv6 address.
var ErrInvalidIP = errors.New("config: invalid ip address")

// Config is the fully parsed, validated configuration: the TFTP listener
// settings plus the board registry built from it.
type Config struct {
	Listen   string
	Port     string
	Registry *boot.Registry
}

// Load reads the configuration rooted at path, including any files its
// [tftp] includedir glob pulls in, and returns the combined Config.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, checkpoint.Wrapf(err, "loading config %s", path)
	}

	if dir := f.Section("tftp").Key("includedir").String(); dir != "" {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		matches, err := filepath.Glob(filepath.Join(dir, "*.conf"))
		if err != nil {
			return nil, checkpoint.Wrapf(err, "globbing includedir %s", dir)
		}
		sort.Strings(matches)
		for _, m := range matches {
			// Append merges m's sections into f key-by-key: a key the
			// later file doesn't repeat keeps whatever value an earlier
			// file (or this file) gave it, rather than reverting to the
			// ini library's zero value for that key.
			if err := f.Append(m); err != nil {
				return nil, checkpoint.Wrapf(err, "loading included config %s", m)
			}
		}
	}

	tftpSec := f.Section("tftp")
	cfg := &Config{
		Listen: tftpSec.Key("listen").MustString("0.0.0.0"),
		Port:   tftpSec.Key("port").MustString("69"),
	}

	boards, err := loadBoards(f)
	if err != nil {
		return nil, err
	}

	list := make([]boot.Board, 0, len(boards))
	for _, b := range boards {
		list = append(list, b)
	}
	cfg.Registry = boot.NewRegistry(list)
	return cfg, nil
}

func loadBoards(f *ini.File) (map[uint32]boot.Board, error) {
	boards := make(map[uint32]boot.Board)
	for _, sec := range f.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, "board:") {
			continue
		}
		serial, err := boot.NormalizeSerial(strings.TrimPrefix(name, "board:"))
		if err != nil {
			return nil, checkpoint.Wrapf(err, "section %q", name)
		}
		b := boot.Board{
			Serial:    serial,
			ImagePath: sec.Key("image").String(),
			Partition: uint32(sec.Key("partition").MustUint(1)),
		}
		if ipStr := sec.Key("ip").String(); ipStr != "" {
			ip := net.ParseIP(ipStr)
			if ip == nil {
				return nil, checkpoint.Wrapf(ErrInvalidIP, "section %q: %q", name, ipStr)
			}
			b.IP = ip
		}
		boards[serial] = b
	}
	return boards, nil
}
