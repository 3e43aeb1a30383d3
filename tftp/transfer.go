package tftp

import (
	"io"
	"time"
)

// State is a transfer's position in the NEW -> NEGOTIATE -> SENDING -> DONE
// state machine.
type State int

const (
	StateNegotiate State = iota
	StateSending
	StateDone
)

// Outcome describes what a Transfer step produced, for the driving loop to
// act on.
type Outcome int

const (
	// OutcomeSent means pkt holds a new packet the caller must write to
	// the peer, and the deadline should be reset.
	OutcomeSent Outcome = iota
	// OutcomeDuplicate means the input was a no-op; nothing to send.
	OutcomeDuplicate
	// OutcomeDone means the transfer completed successfully; pkt is nil.
	OutcomeDone
	// OutcomeFatal means the transfer must be torn down. pkt, when non-nil,
	// is a terminal ERROR packet to send first; it is nil when the step
	// also returns an error.
	OutcomeFatal
)

// FileReader is what a Transfer needs from the resolved file: sequential
// reads of its content.
type FileReader interface {
	io.Reader
}

// Transfer drives one RRQ from option negotiation through completion. It is
// not safe for concurrent use; each transfer owns one goroutine and one
// ephemeral socket.
type Transfer struct {
	file FileReader
	size int64

	blksize int
	echo    Options

	state      State
	blockIndex uint64 // monotonic; wire block number is uint16(blockIndex)
	terminal   bool
	lastPacket []byte

	baseTimeout    time.Duration
	currentTimeout time.Duration
	retries        int
}

// Retry limits for the NEGOTIATE and SENDING states: OACK is retransmitted
// up to 5 times before giving up; DATA up to 8.
const (
	MaxNegotiateRetries = 5
	MaxSendRetries      = 8
)

// NewTransfer constructs a Transfer for file, using opts as already
// negotiated by Negotiate. size is the length the resolver reported for
// file, negative if unknown; blocks are read from file until it is
// exhausted, whatever size says.
func NewTransfer(file FileReader, size int64, opts NegotiatedOptions) *Transfer {
	return &Transfer{
		file:           file,
		size:           size,
		blksize:        opts.Blksize,
		echo:           opts.Echo,
		baseTimeout:    opts.Timeout,
		currentTimeout: opts.Timeout,
	}
}

func (t *Transfer) maxRetries() int {
	if t.state == StateNegotiate {
		return MaxNegotiateRetries
	}
	return MaxSendRetries
}

// Timeout returns the duration to wait for the next packet before calling
// HandleTimeout.
func (t *Transfer) Timeout() time.Duration { return t.currentTimeout }

// State returns the transfer's current state.
func (t *Transfer) State() State { return t.state }

func (t *Transfer) resetRetry() {
	t.retries = 0
	t.currentTimeout = t.baseTimeout
}

func (t *Transfer) backoff() {
	t.retries++
	t.currentTimeout *= 2
	if cap := t.baseTimeout * 256; t.currentTimeout > cap {
		t.currentTimeout = cap
	}
}

// readBlock reads the next blksize-sized chunk of the file, reporting
// whether it is the transfer's terminal (short or empty) block.
func (t *Transfer) readBlock() ([]byte, error) {
	buf := make([]byte, t.blksize)
	n, err := io.ReadFull(t.file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	t.terminal = n < t.blksize
	return buf[:n], nil
}

func (t *Transfer) sendData() ([]byte, error) {
	payload, err := t.readBlock()
	if err != nil {
		return nil, err
	}
	wire := uint16(t.blockIndex)
	pkt := EncodeData(wire, payload)
	t.lastPacket = pkt
	return pkt, nil
}

// Start returns the first packet the server sends for this transfer: an
// OACK if any options were negotiated, otherwise DATA block 1.
func (t *Transfer) Start() ([]byte, error) {
	if len(t.echo) > 0 {
		t.state = StateNegotiate
		pkt := EncodeOACK(t.echo)
		t.lastPacket = pkt
		return pkt, nil
	}
	t.state = StateSending
	t.blockIndex = 1
	return t.sendData()
}

// HandleACK processes an ACK(block) from the peer.
func (t *Transfer) HandleACK(block uint16) ([]byte, Outcome, error) {
	switch t.state {
	case StateNegotiate:
		if block != 0 {
			return nil, OutcomeDuplicate, nil
		}
		t.resetRetry()
		t.state = StateSending
		t.blockIndex = 1
		pkt, err := t.sendData()
		if err != nil {
			return nil, OutcomeFatal, err
		}
		return pkt, OutcomeSent, nil

	case StateSending:
		last := uint16(t.blockIndex)
		if block == last {
			t.resetRetry()
			if t.terminal {
				t.state = StateDone
				return nil, OutcomeDone, nil
			}
			t.blockIndex++
			pkt, err := t.sendData()
			if err != nil {
				return nil, OutcomeFatal, err
			}
			return pkt, OutcomeSent, nil
		}
		prev := uint16(t.blockIndex - 1)
		if t.blockIndex > 0 && block == prev {
			return nil, OutcomeDuplicate, nil
		}
		return nil, OutcomeDuplicate, nil

	default:
		return nil, OutcomeDuplicate, nil
	}
}

// HandleTimeout retransmits the last packet, doubling the timeout up to 8
// times (capped at 256x the negotiated base), or abandons the transfer with
// ERROR(0, "timeout") once the retry budget is exhausted.
func (t *Transfer) HandleTimeout() ([]byte, Outcome, error) {
	if t.retries >= t.maxRetries() {
		pkt := EncodeError(ErrUndefined, "timeout")
		t.state = StateDone
		return pkt, OutcomeFatal, nil
	}
	t.backoff()
	return t.lastPacket, OutcomeSent, nil
}

// HandlePeerError unconditionally terminates the transfer: an ERROR packet
// from the peer aborts with no reply, in any state.
func (t *Transfer) HandlePeerError() {
	t.state = StateDone
}
