package discovery

import (
	"context"
	"net"
	"time"

	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
	"github.com/HD-CIPL/portmapper/internal/netio"
	"github.com/HD-CIPL/portmapper/internal/retry"
	"github.com/HD-CIPL/portmapper/mapper"
	"github.com/HD-CIPL/portmapper/pkg/addr"
	"github.com/HD-CIPL/portmapper/pkg/natpmp"
)

// natpmpPort is the well-known NAT-PMP server port, RFC 6886 §3.
const natpmpPort = 5351

// natpmpMapper drives NAT-PMP requests against a single gateway, used
// only as a fallback when the gateway does not answer PCP (spec §4.6: PCP
// supersedes NAT-PMP, the same daemon answers both).
type natpmpMapper struct {
	gw  net.IP
	cfg mapperconfig.Config
}

func (m *natpmpMapper) Kind() string { return "natpmp" }

func (m *natpmpMapper) Create(ctx context.Context, internalPort, preferredExternalPort uint16, protocol addr.PortType, lifetime time.Duration) (mapper.Mapping, error) {
	req, err := natpmp.NewMapRequest(protocol, internalPort, preferredExternalPort, uint32(lifetime.Seconds()))
	if err != nil {
		return mapper.Mapping{}, mapper.Invalid("natpmp: %v", err)
	}

	resp, err := m.exchange(ctx, req.Dump(), matchNATPMPOpcode(req))
	if err != nil {
		return mapper.Mapping{}, err
	}
	mapResp, err := natpmp.ParseMapResponse(resp)
	if err != nil {
		return mapper.Mapping{}, mapper.Malformed(err, "natpmp: parse MAP response")
	}
	if mapResp.ResultCode != natpmp.ResultSuccess {
		return mapper.Mapping{}, mapper.Protocol(int(mapResp.ResultCode), "natpmp: MAP failed, result code %d", mapResp.ResultCode)
	}

	extAddr, err := m.externalAddress(ctx)
	if err != nil {
		return mapper.Mapping{}, err
	}
	grantedLifetime := time.Duration(mapResp.Lifetime) * time.Second
	return mapper.Mapping{
		Gateway:      m.gw,
		Protocol:     protocol,
		InternalPort: mapResp.InternalPort,
		ExternalPort: mapResp.ExternalPort,
		ExternalIP:   extAddr,
		ExpiresAt:    time.Now().Add(grantedLifetime),
		Lifetime:     grantedLifetime,
	}, nil
}

func (m *natpmpMapper) Refresh(ctx context.Context, existing mapper.Mapping, lifetime time.Duration) (mapper.Mapping, error) {
	return m.Create(ctx, existing.InternalPort, existing.ExternalPort, existing.Protocol, lifetime)
}

func (m *natpmpMapper) Release(ctx context.Context, existing mapper.Mapping) error {
	_, err := m.Create(ctx, existing.InternalPort, existing.ExternalPort, existing.Protocol, 0)
	return err
}

func (m *natpmpMapper) externalAddress(ctx context.Context) (net.IP, error) {
	req := natpmp.ExternalAddressRequest{}
	resp, err := m.exchange(ctx, req.Dump(), matchNATPMPOpcodeRaw(natpmp.OpExternalAddress))
	if err != nil {
		return nil, err
	}
	extResp, err := natpmp.ParseExternalAddressResponse(resp)
	if err != nil {
		return nil, mapper.Malformed(err, "natpmp: parse external address response")
	}
	if extResp.ResultCode != natpmp.ResultSuccess {
		return nil, mapper.Protocol(int(extResp.ResultCode), "natpmp: external address request failed")
	}
	return extResp.ExternalIP, nil
}

func (m *natpmpMapper) exchange(ctx context.Context, payload []byte, match retry.MatchFunc) ([]byte, error) {
	gw, err := netio.NewUDPGateway(":0")
	if err != nil {
		return nil, mapper.NetworkFail(err, "natpmp: open socket")
	}
	defer gw.Close()

	dst := &net.UDPAddr{IP: m.gw, Port: natpmpPort}
	ctrl := &retry.Controller{
		Send: func(ctx context.Context, payload []byte) error {
			return gw.SendUDP(ctx, dst, payload)
		},
		Recv:    datagramsFrom(gw, dst.IP),
		Match:   match,
		Backoff: retry.NewNATPMPBackoff(m.cfg),
	}
	return ctrl.Run(ctx, payload)
}

func matchNATPMPOpcode(req natpmp.MapRequest) retry.MatchFunc {
	wantOp, _ := natpmp.RequestOpcode(req.Dump())
	return matchNATPMPOpcodeRaw(wantOp)
}

func matchNATPMPOpcodeRaw(wantOp natpmp.Opcode) retry.MatchFunc {
	return func(datagram []byte) bool {
		if len(datagram) < 2 {
			return false
		}
		op, err := natpmp.RequestOpcode(datagram)
		if err != nil {
			return false
		}
		return op == wantOp
	}
}
