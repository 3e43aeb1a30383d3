// Package boot implements the boot-server policy: mapping a client's
// serial-prefixed TFTP path to a board configuration, its disk image's FAT
// file system, and finally the requested file within it.
package boot

import (
	"net"
	"strconv"
	"strings"

	"github.com/waveform80/nobodd/checkpoint"
)

// Board binds a Raspberry Pi's serial number to the disk image it boots
// from, which partition within that image holds its boot FAT, and an
// optional source-IP restriction.
type Board struct {
	Serial    uint32
	ImagePath string
	Partition uint32
	IP        net.IP
}

// NormalizeSerial parses a hex serial number string as the Pi bootloader
// presents it, stripping the "10000000" or "00000000" prefix a 16-hex-digit
// serial carries per the Raspberry Pi convention; the short, 8-hex-digit
// form is also accepted directly.
func NormalizeSerial(s string) (uint32, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) >= 16 && (strings.HasPrefix(s, "10000000") || strings.HasPrefix(s, "00000000")) {
		s = s[8:]
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, checkpoint.Wrapf(err, "invalid serial number %q", s)
	}
	return uint32(v), nil
}
