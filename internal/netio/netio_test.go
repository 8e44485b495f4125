package netio

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestUDPGatewaySendRecvRoundTrip(t *testing.T) {
	a, err := NewUDPGateway("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDPGateway a: %v", err)
	}
	defer a.Close()
	b, err := NewUDPGateway("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDPGateway b: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.SendUDP(ctx, b.LocalAddr().(*net.UDPAddr), []byte("hello")); err != nil {
		t.Fatalf("SendUDP: %v", err)
	}

	select {
	case dg := <-b.Recv():
		if string(dg.Data) != "hello" {
			t.Errorf("received %q, want hello", dg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

// TestUDPGatewayCloseClosesOutbox guards against a regression where Close
// left the reader goroutine blocked trying to send on outbox forever,
// leaving Recv()'s channel open with no further deliveries and no signal
// to a select-based caller that the gateway is gone.
func TestUDPGatewayCloseClosesOutbox(t *testing.T) {
	g, err := NewUDPGateway("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDPGateway: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-g.Recv():
		if ok {
			t.Fatal("expected outbox to be closed, got a datagram instead")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbox to close after Close()")
	}
}

func TestUDPGatewayLocalAddr(t *testing.T) {
	g, err := NewUDPGateway("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDPGateway: %v", err)
	}
	defer g.Close()
	addr, ok := g.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("LocalAddr() = %v, want *net.UDPAddr", g.LocalAddr())
	}
	if addr.Port == 0 {
		t.Error("expected an ephemeral port to have been assigned")
	}
}

func TestMulticastGatewayCloseClosesOutbox(t *testing.T) {
	g, err := NewMulticastGateway("239.255.255.250:0")
	if err != nil {
		t.Fatalf("NewMulticastGateway: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-g.Recv():
		if ok {
			t.Fatal("expected outbox to be closed, got a datagram instead")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbox to close after Close()")
	}
}

func TestTCPRequestRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		if string(buf[:n]) == "ping" {
			conn.Write([]byte("pong"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := TCPRequest(ctx, ln.Addr().String(), []byte("ping"), time.Second)
	if err != nil {
		t.Fatalf("TCPRequest: %v", err)
	}
	if string(got) != "pong" {
		t.Errorf("TCPRequest returned %q, want pong", got)
	}
}

func TestTCPRequestNoResponseErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close() // close without writing anything back
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := TCPRequest(ctx, ln.Addr().String(), []byte("ping"), time.Second); err == nil {
		t.Error("TCPRequest should fail when the peer closes without responding")
	}
}

func TestTCPRequestDialFailureErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listening here anymore

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := TCPRequest(ctx, addr, []byte("ping"), time.Second); err == nil {
		t.Error("TCPRequest should fail to dial a closed listener")
	}
}
