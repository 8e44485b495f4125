// Package netio implements the network gateway interface of spec.md §6:
// unicast and multicast UDP send/receive and a TCP request/response
// helper for SOAP, each as a small channel-based actor. Grounded on
// syncthing's internal/beacon multicast actor (inbox/outbox channels plus
// a reader goroutine), generalized from a single multicast group to
// arbitrary unicast/multicast UDP endpoints using golang.org/x/net's
// ipv4/ipv6 packet-conn helpers for interface-scoped multicast joins.
package netio

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/HD-CIPL/portmapper/internal/logging"
)

var logger = logging.New("portmapper/netio")

// Datagram is one received UDP packet and its source.
type Datagram struct {
	Data []byte
	Src  net.Addr
}

// UDPGateway is a single UDP socket run as an actor: writes are
// serialized through SendUDP, reads are fanned out on the channel returned
// by Recv.
type UDPGateway struct {
	conn   *net.UDPConn
	outbox chan Datagram
	done   chan struct{}
}

// NewUDPGateway opens a UDP socket bound to laddr (use "" or ":0" for an
// ephemeral port on all interfaces) and starts its reader goroutine.
func NewUDPGateway(laddr string) (*UDPGateway, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("netio: resolve %q: %w", laddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("netio: listen %q: %w", laddr, err)
	}
	g := &UDPGateway{
		conn:   conn,
		outbox: make(chan Datagram, 32),
		done:   make(chan struct{}),
	}
	go g.reader()
	return g, nil
}

// LocalAddr returns the socket's bound local address.
func (g *UDPGateway) LocalAddr() net.Addr {
	return g.conn.LocalAddr()
}

// SendUDP writes payload to dst. The deadline set by ctx, if any, bounds
// the write.
func (g *UDPGateway) SendUDP(ctx context.Context, dst *net.UDPAddr, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = g.conn.SetWriteDeadline(deadline)
	}
	_, err := g.conn.WriteToUDP(payload, dst)
	if err != nil {
		return fmt.Errorf("netio: write to %s: %w", dst, err)
	}
	logger.Debugf("sent %d bytes to %s", len(payload), dst)
	return nil
}

// Recv returns the channel carrying every datagram this gateway receives,
// multiplexed across every caller racing a retry controller against it.
func (g *UDPGateway) Recv() <-chan Datagram {
	return g.outbox
}

// Close shuts the socket down and stops the reader goroutine.
func (g *UDPGateway) Close() error {
	close(g.done)
	return g.conn.Close()
}

func (g *UDPGateway) reader() {
	defer close(g.outbox)
	buf := make([]byte, 65536)
	for {
		n, src, err := g.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-g.done:
			default:
				logger.Debugf("read error, stopping reader: %v", err)
			}
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case g.outbox <- Datagram{Data: cp, Src: src}:
		case <-g.done:
			return
		default:
			logger.Debugf("dropping datagram from %s, outbox full", src)
		}
	}
}

// MulticastGateway joins a multicast group on every up, multicast-capable
// interface and fans in datagrams the same way UDPGateway does.
type MulticastGateway struct {
	pc4    *ipv4.PacketConn
	pc6    *ipv6.PacketConn
	conn   *net.UDPConn
	group  *net.UDPAddr
	outbox chan Datagram
	done   chan struct{}
}

// NewMulticastGateway joins groupAddr (e.g. "239.255.255.250:1900" or
// "[ff02::1]:5351") on every currently up, multicast-capable interface.
func NewMulticastGateway(groupAddr string) (*MulticastGateway, error) {
	gaddr, err := net.ResolveUDPAddr("udp", groupAddr)
	if err != nil {
		return nil, fmt.Errorf("netio: resolve group %q: %w", groupAddr, err)
	}

	var conn *net.UDPConn
	if gaddr.IP.To4() != nil {
		conn, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	} else {
		conn, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv6unspecified, Port: 0})
	}
	if err != nil {
		return nil, fmt.Errorf("netio: listen for multicast: %w", err)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netio: enumerate interfaces: %w", err)
	}

	g := &MulticastGateway{
		conn:   conn,
		group:  gaddr,
		outbox: make(chan Datagram, 32),
		done:   make(chan struct{}),
	}

	if gaddr.IP.To4() != nil {
		pc := ipv4.NewPacketConn(conn)
		for _, ifc := range ifaces {
			if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagMulticast == 0 {
				continue
			}
			if err := pc.JoinGroup(&ifc, gaddr); err != nil {
				logger.Debugf("join group %s on %s: %v", gaddr, ifc.Name, err)
			}
		}
		g.pc4 = pc
	} else {
		pc := ipv6.NewPacketConn(conn)
		for _, ifc := range ifaces {
			if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagMulticast == 0 {
				continue
			}
			if err := pc.JoinGroup(&ifc, gaddr); err != nil {
				logger.Debugf("join group %s on %s: %v", gaddr, ifc.Name, err)
			}
		}
		g.pc6 = pc
	}

	go g.reader()
	return g, nil
}

// Send writes payload to the joined multicast group.
func (g *MulticastGateway) Send(ctx context.Context, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = g.conn.SetWriteDeadline(deadline)
	}
	_, err := g.conn.WriteToUDP(payload, g.group)
	if err != nil {
		return fmt.Errorf("netio: multicast write to %s: %w", g.group, err)
	}
	return nil
}

// Recv returns the channel carrying every datagram received from the
// group.
func (g *MulticastGateway) Recv() <-chan Datagram {
	return g.outbox
}

// Close leaves the multicast group and closes the socket.
func (g *MulticastGateway) Close() error {
	close(g.done)
	return g.conn.Close()
}

func (g *MulticastGateway) reader() {
	defer close(g.outbox)
	buf := make([]byte, 65536)
	for {
		var n int
		var src net.Addr
		var err error
		if g.pc4 != nil {
			n, _, src, err = g.pc4.ReadFrom(buf)
		} else {
			n, _, src, err = g.pc6.ReadFrom(buf)
		}
		if err != nil {
			select {
			case <-g.done:
			default:
				logger.Debugf("multicast read error, stopping reader: %v", err)
			}
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case g.outbox <- Datagram{Data: cp, Src: src}:
		case <-g.done:
			return
		default:
			logger.Debugf("dropping multicast datagram from %s, outbox full", src)
		}
	}
}

// TCPRequest opens a TCP connection to dst, writes request, reads the
// full response until EOF or deadline, and closes the connection. This is
// the transport primitive pkg/upnpsoap's ActionRequest.Dump output is sent
// over.
func TCPRequest(ctx context.Context, dst string, request []byte, timeout time.Duration) ([]byte, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", dst)
	if err != nil {
		return nil, fmt.Errorf("netio: dial %s: %w", dst, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(request); err != nil {
		return nil, fmt.Errorf("netio: write to %s: %w", dst, err)
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("netio: no response from %s", dst)
	}
	return buf, nil
}
