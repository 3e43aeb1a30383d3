package tftp

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	return conn
}

func TestDispatcher_RRQResolvesAndSendsData(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := NewMockResolver(ctrl)
	resolver.EXPECT().
		Resolve("boot/config.txt", "octet", gomock.Any()).
		Return(bytes.NewReader([]byte("hello")), int64(5), nil)

	serverConn := listenLoopback(t)
	d := NewDispatcher(serverConn, resolver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	client := listenLoopback(t)
	defer client.Close()

	req := EncodeRequest(OpRRQ, "boot/config.txt", "octet", nil)
	if _, err := client.WriteToUDP(req, serverConn.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("WriteToUDP() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}

	data, err := DecodeData(buf[:n])
	if err != nil {
		t.Fatalf("DecodeData() error = %v", err)
	}
	if data.Block != 1 || string(data.Payload) != "hello" {
		t.Errorf("DATA = block %d %q, want block 1 %q", data.Block, data.Payload, "hello")
	}
}

func TestDispatcher_WRQRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := NewMockResolver(ctrl)

	serverConn := listenLoopback(t)
	d := NewDispatcher(serverConn, resolver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	client := listenLoopback(t)
	defer client.Close()

	req := EncodeRequest(OpWRQ, "boot/config.txt", "octet", nil)
	if _, err := client.WriteToUDP(req, serverConn.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("WriteToUDP() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}

	errPkt, err := DecodeError(buf[:n])
	if err != nil {
		t.Fatalf("DecodeError() error = %v", err)
	}
	if errPkt.Code != ErrIllegalOperation {
		t.Errorf("ERROR code = %d, want ErrIllegalOperation", errPkt.Code)
	}
}

func TestDispatcher_UnknownBoardRespondsFileNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := NewMockResolver(ctrl)
	resolver.EXPECT().
		Resolve(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, int64(0), &ResolveError{Code: ErrFileNotFound, Message: "unknown board"})

	serverConn := listenLoopback(t)
	d := NewDispatcher(serverConn, resolver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	client := listenLoopback(t)
	defer client.Close()

	req := EncodeRequest(OpRRQ, "nosuchboard/x", "octet", nil)
	if _, err := client.WriteToUDP(req, serverConn.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("WriteToUDP() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}

	errPkt, err := DecodeError(buf[:n])
	if err != nil {
		t.Fatalf("DecodeError() error = %v", err)
	}
	if errPkt.Code != ErrFileNotFound {
		t.Errorf("ERROR code = %d, want ErrFileNotFound", errPkt.Code)
	}
}
