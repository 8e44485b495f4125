package discovery

import (
	"context"
	"crypto/rand"
	"net"
	"time"

	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
	"github.com/HD-CIPL/portmapper/internal/netio"
	"github.com/HD-CIPL/portmapper/internal/retry"
	"github.com/HD-CIPL/portmapper/mapper"
	"github.com/HD-CIPL/portmapper/pkg/addr"
	"github.com/HD-CIPL/portmapper/pkg/pcp"
)

// pcpPort is the well-known PCP server port, RFC 6887 §7.
const pcpPort = 5351

// pcpMapper drives PCP MAP requests against a single gateway. It opens a
// fresh ephemeral UDP socket per exchange rather than holding one open,
// matching the stateless-per-exchange model of spec §5: sockets belong to
// the network gateway, not to any persistent per-mapper state.
type pcpMapper struct {
	gw       net.IP
	clientIP net.IP
	cfg      mapperconfig.Config
}

func (m *pcpMapper) Kind() string { return "pcp" }

func (m *pcpMapper) Create(ctx context.Context, internalPort, preferredExternalPort uint16, protocol addr.PortType, lifetime time.Duration) (mapper.Mapping, error) {
	nonce, err := randomNonce()
	if err != nil {
		return mapper.Mapping{}, mapper.NetworkFail(err, "pcp: generate nonce")
	}
	req, err := pcp.NewMapRequest(
		uint32(lifetime.Seconds()),
		addr.ToWire(m.clientIP),
		nonce,
		protocol,
		internalPort,
		preferredExternalPort,
		addr.ToWire(addr.IPv6Wildcard),
		nil,
	)
	if err != nil {
		return mapper.Mapping{}, mapper.Invalid("pcp: %v", err)
	}

	resp, err := m.exchange(ctx, req.Dump(), matchPCPNonce(nonce), lifetime)
	if err != nil {
		return mapper.Mapping{}, err
	}
	mapResp, err := pcp.ParseMapResponse(resp)
	if err != nil {
		return mapper.Mapping{}, mapper.Malformed(err, "pcp: parse MAP response")
	}
	if mapResp.ResultCode != pcp.ResultSuccess {
		return mapper.Mapping{}, mapper.Protocol(int(mapResp.ResultCode), "pcp: MAP failed: %s", mapResp.ResultCode)
	}
	extIP, err := addr.FromWire(mapResp.ExternalIP)
	if err != nil {
		return mapper.Mapping{}, mapper.Malformed(err, "pcp: parse external IP")
	}
	grantedLifetime := time.Duration(mapResp.Lifetime) * time.Second
	return mapper.Mapping{
		Gateway:      m.gw,
		Protocol:     protocol,
		InternalPort: mapResp.InternalPort,
		ExternalPort: mapResp.ExternalPort,
		ExternalIP:   extIP,
		ExpiresAt:    time.Now().Add(grantedLifetime),
		Lifetime:     grantedLifetime,
	}, nil
}

func (m *pcpMapper) Refresh(ctx context.Context, existing mapper.Mapping, lifetime time.Duration) (mapper.Mapping, error) {
	return m.Create(ctx, existing.InternalPort, existing.ExternalPort, existing.Protocol, lifetime)
}

func (m *pcpMapper) Release(ctx context.Context, existing mapper.Mapping) error {
	_, err := m.Create(ctx, existing.InternalPort, existing.ExternalPort, existing.Protocol, 0)
	return err
}

func (m *pcpMapper) exchange(ctx context.Context, payload []byte, match retry.MatchFunc, lifetime time.Duration) ([]byte, error) {
	gw, err := netio.NewUDPGateway(":0")
	if err != nil {
		return nil, mapper.NetworkFail(err, "pcp: open socket")
	}
	defer gw.Close()

	dst := &net.UDPAddr{IP: m.gw, Port: pcpPort}
	ctrl := &retry.Controller{
		Send: func(ctx context.Context, payload []byte) error {
			return gw.SendUDP(ctx, dst, payload)
		},
		Recv:    datagramsFrom(gw, dst.IP),
		Match:   match,
		Backoff: retry.NewPCPBackoff(m.cfg, effectiveLifetime(lifetime)),
	}
	return ctrl.Run(ctx, payload)
}

// effectiveLifetime bounds the retry schedule's MaxElapsedTime: a release
// (lifetime 0) still needs a bounded retry window.
func effectiveLifetime(lifetime time.Duration) time.Duration {
	if lifetime <= 0 {
		return 30 * time.Second
	}
	return lifetime
}

// datagramsFrom adapts a netio.UDPGateway's Datagram channel, which
// carries packets from every source, into a raw []byte channel containing
// only datagrams from the expected source, for retry.Controller.
func datagramsFrom(gw *netio.UDPGateway, from net.IP) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for d := range gw.Recv() {
			udpAddr, ok := d.Src.(*net.UDPAddr)
			if ok && !udpAddr.IP.Equal(from) {
				continue
			}
			out <- d.Data
		}
	}()
	return out
}

func matchPCPNonce(nonce pcp.Nonce) retry.MatchFunc {
	return func(datagram []byte) bool {
		resp, err := pcp.ParseMapResponse(datagram)
		if err != nil {
			return false
		}
		return resp.Nonce == nonce
	}
}

func randomNonce() (pcp.Nonce, error) {
	var b [pcp.NonceLength]byte
	if _, err := rand.Read(b[:]); err != nil {
		return pcp.Nonce{}, err
	}
	return pcp.NewNonce(b[:])
}
