// Package tftp implements the TFTP (RFC 1350) wire protocol, its RFC 2347
// option extension, and a per-transfer state machine driving DATA/ACK
// exchange with retransmission and duplicate-ACK handling.
package tftp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"github.com/waveform80/nobodd/checkpoint"
)

// Opcode identifies a TFTP packet type.
type Opcode uint16

const (
	OpRRQ   Opcode = 1
	OpWRQ   Opcode = 2
	OpDATA  Opcode = 3
	OpACK   Opcode = 4
	OpERROR Opcode = 5
	OpOACK  Opcode = 6
)

// Error codes, per RFC 1350 and this server's usage of them.
const (
	ErrUndefined        uint16 = 0
	ErrFileNotFound     uint16 = 1
	ErrAccessViolation  uint16 = 2
	ErrDiskFull         uint16 = 3
	ErrIllegalOperation uint16 = 4
	ErrUnknownTID       uint16 = 5
	ErrFileExists       uint16 = 6
	ErrNoSuchUser       uint16 = 7
	ErrTerminateOption  uint16 = 8
)

var (
	ErrShortPacket = errors.New("tftp: packet too short")
	ErrBadOpcode   = errors.New("tftp: unexpected opcode")
	ErrMalformed   = errors.New("tftp: malformed packet")
)

// Option is a single RFC 2347 option name/value pair. Order is preserved on
// both encode and decode since some clients are sensitive to it.
type Option struct {
	Name  string
	Value string
}

// Options is an ordered list of Option, with case-insensitive lookup.
type Options []Option

// Get returns the value of the named option (case-insensitive) and whether
// it was present.
func (o Options) Get(name string) (string, bool) {
	for _, opt := range o {
		if equalFold(opt.Name, name) {
			return opt.Value, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Request is a decoded RRQ or WRQ packet.
type Request struct {
	Opcode   Opcode
	Filename string
	Mode     string
	Options  Options
}

func decodeString(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, checkpoint.Wrap(ErrMalformed, errors.New("tftp: unterminated string field"))
	}
	return string(b[:i]), b[i+1:], nil
}

// decodeFilename decodes a filename field as UTF-8 if it's valid UTF-8,
// otherwise as latin-1 (each byte is its own codepoint).
func decodeFilename(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// DecodeRequest decodes an RRQ/WRQ packet body (including the 2-byte
// opcode).
func DecodeRequest(data []byte) (Request, error) {
	if len(data) < 2 {
		return Request{}, ErrShortPacket
	}
	op := Opcode(binary.BigEndian.Uint16(data[:2]))
	if op != OpRRQ && op != OpWRQ {
		return Request{}, checkpoint.Wrap(ErrBadOpcode, errors.New("tftp: not a RRQ/WRQ"))
	}
	rest := data[2:]

	filenameRaw, rest, err := decodeRaw(rest)
	if err != nil {
		return Request{}, err
	}
	mode, rest, err := decodeString(rest)
	if err != nil {
		return Request{}, err
	}

	var opts Options
	for len(rest) > 0 {
		name, next, err := decodeString(rest)
		if err != nil {
			return Request{}, err
		}
		value, next, err := decodeString(next)
		if err != nil {
			return Request{}, err
		}
		opts = append(opts, Option{Name: name, Value: value})
		rest = next
	}

	return Request{
		Opcode:   op,
		Filename: decodeFilename(filenameRaw),
		Mode:     mode,
		Options:  opts,
	}, nil
}

// decodeRaw is decodeString without the string conversion, so filename
// bytes can be decoded separately as UTF-8 or latin-1.
func decodeRaw(b []byte) ([]byte, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return nil, nil, checkpoint.Wrap(ErrMalformed, errors.New("tftp: unterminated string field"))
	}
	return b[:i], b[i+1:], nil
}

// EncodeRequest encodes an RRQ/WRQ packet.
func EncodeRequest(op Opcode, filename, mode string, opts Options) []byte {
	var buf bytes.Buffer
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(op))
	buf.Write(header[:])
	buf.WriteString(filename)
	buf.WriteByte(0)
	buf.WriteString(mode)
	buf.WriteByte(0)
	for _, o := range opts {
		buf.WriteString(o.Name)
		buf.WriteByte(0)
		buf.WriteString(o.Value)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// EncodeData encodes a DATA packet carrying block number block and payload.
func EncodeData(block uint16, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(OpDATA))
	binary.BigEndian.PutUint16(out[2:4], block)
	copy(out[4:], payload)
	return out
}

// DecodedData is a decoded DATA packet. Payload aliases the input slice.
type DecodedData struct {
	Block   uint16
	Payload []byte
}

// DecodeData decodes a DATA packet.
func DecodeData(data []byte) (DecodedData, error) {
	if len(data) < 4 {
		return DecodedData{}, ErrShortPacket
	}
	op := Opcode(binary.BigEndian.Uint16(data[:2]))
	if op != OpDATA {
		return DecodedData{}, checkpoint.Wrap(ErrBadOpcode, errors.New("tftp: not a DATA packet"))
	}
	return DecodedData{
		Block:   binary.BigEndian.Uint16(data[2:4]),
		Payload: data[4:],
	}, nil
}

// EncodeAck encodes an ACK packet for block.
func EncodeAck(block uint16) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], uint16(OpACK))
	binary.BigEndian.PutUint16(out[2:4], block)
	return out
}

// DecodeAck decodes an ACK packet, returning its block number.
func DecodeAck(data []byte) (uint16, error) {
	if len(data) < 4 {
		return 0, ErrShortPacket
	}
	op := Opcode(binary.BigEndian.Uint16(data[:2]))
	if op != OpACK {
		return 0, checkpoint.Wrap(ErrBadOpcode, errors.New("tftp: not an ACK packet"))
	}
	return binary.BigEndian.Uint16(data[2:4]), nil
}

// EncodeError encodes an ERROR packet.
func EncodeError(code uint16, message string) []byte {
	out := make([]byte, 4+len(message)+1)
	binary.BigEndian.PutUint16(out[0:2], uint16(OpERROR))
	binary.BigEndian.PutUint16(out[2:4], code)
	copy(out[4:], message)
	return out
}

// DecodedError is a decoded ERROR packet.
type DecodedError struct {
	Code    uint16
	Message string
}

// DecodeError decodes an ERROR packet.
func DecodeError(data []byte) (DecodedError, error) {
	if len(data) < 4 {
		return DecodedError{}, ErrShortPacket
	}
	op := Opcode(binary.BigEndian.Uint16(data[:2]))
	if op != OpERROR {
		return DecodedError{}, checkpoint.Wrap(ErrBadOpcode, errors.New("tftp: not an ERROR packet"))
	}
	msg, _, err := decodeString(data[4:])
	if err != nil {
		msg = string(data[4:])
	}
	return DecodedError{
		Code:    binary.BigEndian.Uint16(data[2:4]),
		Message: msg,
	}, nil
}

// EncodeOACK encodes an OACK packet.
func EncodeOACK(opts Options) []byte {
	var buf bytes.Buffer
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(OpOACK))
	buf.Write(header[:])
	for _, o := range opts {
		buf.WriteString(o.Name)
		buf.WriteByte(0)
		buf.WriteString(o.Value)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// DecodeOACK decodes an OACK packet.
func DecodeOACK(data []byte) (Options, error) {
	if len(data) < 2 {
		return nil, ErrShortPacket
	}
	op := Opcode(binary.BigEndian.Uint16(data[:2]))
	if op != OpOACK {
		return nil, checkpoint.Wrap(ErrBadOpcode, errors.New("tftp: not an OACK packet"))
	}
	rest := data[2:]
	var opts Options
	for len(rest) > 0 {
		name, next, err := decodeString(rest)
		if err != nil {
			return nil, err
		}
		value, next, err := decodeString(next)
		if err != nil {
			return nil, err
		}
		opts = append(opts, Option{Name: name, Value: value})
		rest = next
	}
	return opts, nil
}

// PeekOpcode returns the opcode of a raw packet without fully decoding it.
func PeekOpcode(data []byte) (Opcode, error) {
	if len(data) < 2 {
		return 0, ErrShortPacket
	}
	return Opcode(binary.BigEndian.Uint16(data[:2])), nil
}
