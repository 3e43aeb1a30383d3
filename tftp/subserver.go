package tftp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/waveform80/nobodd/checkpoint"
)

var errBindEphemeral = errors.New("tftp: binding ephemeral socket")

func deadlineFrom(d time.Duration) time.Time { return time.Now().Add(d) }

// subServer owns one ephemeral socket and drives one Transfer to
// completion, realized as its own goroutine rather than a hand-rolled
// event loop entry, since that is how concurrent I/O is idiomatically
// expressed in Go.
type subServer struct {
	peer *net.UDPAddr
	conn *net.UDPConn
	tr   *Transfer
	log  *slog.Logger
}

func newSubServer(peer *net.UDPAddr, file FileReader, size int64, reqOpts Options, log *slog.Logger) (*subServer, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, checkpoint.Wrap(err, errBindEphemeral)
	}
	negotiated := Negotiate(reqOpts, size)
	return &subServer{
		peer: peer,
		conn: conn,
		tr:   NewTransfer(file, size, negotiated),
		log:  log,
	}, nil
}

// run drives the transfer until it reaches StateDone or is abandoned,
// then closes the ephemeral socket.
func (s *subServer) run(ctx context.Context) {
	defer s.conn.Close()

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	pkt, err := s.tr.Start()
	if err != nil {
		s.log.Error("starting transfer", "peer", s.peer, "error", err)
		return
	}
	if _, err := s.conn.WriteToUDP(pkt, s.peer); err != nil {
		return
	}

	buf := make([]byte, 65536)
	for {
		if err := s.conn.SetReadDeadline(deadlineFrom(s.tr.Timeout())); err != nil {
			return
		}
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				pkt, outcome, terr := s.tr.HandleTimeout()
				if terr != nil {
					s.log.Error("transfer timeout handling", "peer", s.peer, "error", terr)
					return
				}
				if pkt != nil {
					s.conn.WriteToUDP(pkt, s.peer)
				}
				if outcome == OutcomeFatal {
					return
				}
				continue
			}
			return
		}

		if !addr.IP.Equal(s.peer.IP) || addr.Port != s.peer.Port {
			s.conn.WriteToUDP(EncodeError(ErrUnknownTID, "unknown transfer"), addr)
			continue
		}

		if s.handlePacket(buf[:n]) {
			return
		}
	}
}

// handlePacket processes one datagram from the transfer's peer, returning
// true once the transfer is finished (successfully or not) and the
// goroutine should exit.
func (s *subServer) handlePacket(data []byte) bool {
	op, err := PeekOpcode(data)
	if err != nil {
		return false
	}
	switch op {
	case OpACK:
		block, err := DecodeAck(data)
		if err != nil {
			return false
		}
		pkt, outcome, err := s.tr.HandleACK(block)
		if err != nil {
			s.log.Error("handling ACK", "peer", s.peer, "error", err)
			return true
		}
		if pkt != nil {
			s.conn.WriteToUDP(pkt, s.peer)
		}
		return outcome == OutcomeDone || outcome == OutcomeFatal
	case OpERROR:
		s.tr.HandlePeerError()
		return true
	default:
		s.conn.WriteToUDP(EncodeError(ErrIllegalOperation, "unexpected opcode"), s.peer)
		return false
	}
}
