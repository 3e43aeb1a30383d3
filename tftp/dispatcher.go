package tftp

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/waveform80/nobodd/checkpoint"
)

var errReadMain = errors.New("tftp: reading main socket")

// Resolver is the single capability a Dispatcher needs from the rest of the
// server: turn a requested path and the requesting peer's address into a
// byte stream and its length. Everything above the wire protocol — board
// lookup, IP ACLs, FAT path resolution — lives behind this interface.
//
//go:generate mockgen -source=dispatcher.go -destination=resolver_mock.go -package tftp
type Resolver interface {
	Resolve(path string, mode string, peer *net.UDPAddr) (FileReader, int64, error)
}

// ResolveError lets a Resolver attach a specific TFTP error code (e.g.
// ErrFileNotFound, ErrAccessViolation) to a failure; a plain error is
// reported as ErrUndefined.
type ResolveError struct {
	Code    uint16
	Message string
}

func (e *ResolveError) Error() string { return e.Message }

// Dispatcher owns the main listening socket and spawns one goroutine per
// accepted RRQ, each driving its own ephemeral socket and Transfer. This is
// the goroutine-based reading of the single-threaded-event-loop model the
// protocol calls for: every transfer suspends only on its own socket or its
// own retransmit timer, never on another transfer's state.
type Dispatcher struct {
	conn     net.PacketConn
	resolver Resolver
	log      *slog.Logger
}

// NewDispatcher returns a Dispatcher listening on conn, resolving requests
// via resolver.
func NewDispatcher(conn net.PacketConn, resolver Resolver, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{conn: conn, resolver: resolver, log: log}
}

// Serve reads RRQs off the main socket until ctx is canceled. It never
// returns an error for a single malformed or rejected request: those are
// answered with a TFTP ERROR and otherwise ignored.
func (d *Dispatcher) Serve(ctx context.Context) error {
	return d.serve(ctx, ctx)
}

// ServeGraceful is like Serve, but separates "stop accepting new requests"
// from "force-close in-flight transfers": the main socket closes as soon as
// acceptCtx is done, while sub-servers spawned for requests already
// accepted keep running until forceCtx is done. Callers cancel acceptCtx
// immediately on shutdown and forceCtx only after a grace period has
// elapsed, so in-flight transfers get a chance to finish first.
func (d *Dispatcher) ServeGraceful(acceptCtx, forceCtx context.Context) error {
	return d.serve(acceptCtx, forceCtx)
}

func (d *Dispatcher) serve(acceptCtx, forceCtx context.Context) error {
	go func() {
		<-acceptCtx.Done()
		d.conn.Close()
	}()

	buf := make([]byte, 65536)
	for {
		n, addr, err := d.conn.ReadFrom(buf)
		if err != nil {
			if acceptCtx.Err() != nil {
				return nil
			}
			return checkpoint.Wrap(err, errReadMain)
		}
		peer, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		pkt := append([]byte(nil), buf[:n]...)
		go d.handleNew(forceCtx, pkt, peer)
	}
}

func (d *Dispatcher) handleNew(ctx context.Context, pkt []byte, peer *net.UDPAddr) {
	op, err := PeekOpcode(pkt)
	if err != nil {
		return
	}
	if op == OpWRQ {
		d.conn.WriteTo(EncodeError(ErrIllegalOperation, "write not supported"), peer)
		return
	}
	if op != OpRRQ {
		d.conn.WriteTo(EncodeError(ErrIllegalOperation, "unexpected opcode"), peer)
		return
	}

	req, err := DecodeRequest(pkt)
	if err != nil {
		d.conn.WriteTo(EncodeError(ErrIllegalOperation, "malformed request"), peer)
		return
	}
	mode := req.Mode
	if !equalFold(mode, "octet") && !equalFold(mode, "netascii") {
		d.conn.WriteTo(EncodeError(ErrIllegalOperation, "unsupported mode"), peer)
		return
	}

	file, size, err := d.resolver.Resolve(req.Filename, mode, peer)
	if err != nil {
		code := ErrUndefined
		if re, ok := err.(*ResolveError); ok {
			code = re.Code
		}
		d.conn.WriteTo(EncodeError(code, err.Error()), peer)
		return
	}

	sub, err := newSubServer(peer, file, size, req.Options, d.log)
	if err != nil {
		d.log.Error("starting transfer", "peer", peer, "error", err)
		d.conn.WriteTo(EncodeError(ErrUndefined, "internal error"), peer)
		return
	}
	go sub.run(ctx)
}
