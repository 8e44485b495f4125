package discovery

import (
	"net"
	"net/url"
	"time"

	"context"

	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
	"github.com/HD-CIPL/portmapper/internal/netio"
	"github.com/HD-CIPL/portmapper/mapper"
	"github.com/HD-CIPL/portmapper/pkg/addr"
	"github.com/HD-CIPL/portmapper/pkg/upnpsoap"
)

// igdPinholeMapper drives the WANIPv6FirewallControl:1 service's pinhole
// lifecycle (AddPinhole/UpdatePinhole/DeletePinhole/
// GetOutboundPinholeTimeout/GetFirewallStatus), spec.md §4's supplemented
// IPv6 firewall pinhole feature. Unlike IPv4 NAT mappings, a pinhole does
// not translate addresses: InternalPort is also the port observed by the
// remote peer, and preferredExternalPort is interpreted as the allowed
// remote port (0 = any).
type igdPinholeMapper struct {
	svc  upnpsoap.Service
	host string
	path string
	cfg  mapperconfig.Config
}

func newIGDPinholeMapper(svc upnpsoap.Service, cfg mapperconfig.Config) (*igdPinholeMapper, error) {
	u, err := url.Parse(svc.ControlURL)
	if err != nil {
		return nil, mapper.Invalid("igd pinhole: invalid control URL %q: %v", svc.ControlURL, err)
	}
	return &igdPinholeMapper{svc: svc, host: u.Host, path: u.RequestURI(), cfg: cfg}, nil
}

func (m *igdPinholeMapper) Kind() string { return "igd2-pinhole" }

func (m *igdPinholeMapper) Create(ctx context.Context, internalPort, preferredExternalPort uint16, protocol addr.PortType, lifetime time.Duration) (mapper.Mapping, error) {
	internalIP, err := localIPv6For(m.host)
	if err != nil {
		return mapper.Mapping{}, mapper.NetworkFail(err, "igd pinhole: determine local IPv6")
	}

	req := upnpsoap.NewAddPinholeRequest(m.host, m.path, m.svc.ServiceType, nil, preferredExternalPort, internalIP, internalPort, protocol, uint32(lifetime.Seconds()))
	resp, err := m.call(ctx, req)
	if err != nil {
		return mapper.Mapping{}, translateSoapErr(err)
	}
	uniqueID, _ := resp.Get("UniqueID")

	return mapper.Mapping{
		Gateway:      net.ParseIP(hostOnly(m.host)),
		Protocol:     protocol,
		InternalPort: internalPort,
		ExternalPort: preferredExternalPort,
		ExternalIP:   internalIP,
		ExpiresAt:    time.Now().Add(lifetime),
		Lifetime:     lifetime,
		Extra:        uniqueID,
	}, nil
}

func (m *igdPinholeMapper) Refresh(ctx context.Context, existing mapper.Mapping, lifetime time.Duration) (mapper.Mapping, error) {
	if existing.Extra == "" {
		return m.Create(ctx, existing.InternalPort, existing.ExternalPort, existing.Protocol, lifetime)
	}
	req := upnpsoap.NewUpdatePinholeRequest(m.host, m.path, m.svc.ServiceType, existing.Extra, uint32(lifetime.Seconds()))
	_, err := m.call(ctx, req)
	if err != nil {
		return mapper.Mapping{}, translateSoapErr(err)
	}
	updated := existing
	updated.ExpiresAt = time.Now().Add(lifetime)
	updated.Lifetime = lifetime
	return updated, nil
}

func (m *igdPinholeMapper) Release(ctx context.Context, existing mapper.Mapping) error {
	if existing.Extra == "" {
		return nil
	}
	req := upnpsoap.NewDeletePinholeRequest(m.host, m.path, m.svc.ServiceType, existing.Extra)
	_, err := m.call(ctx, req)
	if err != nil {
		return translateSoapErr(err)
	}
	return nil
}

func (m *igdPinholeMapper) call(ctx context.Context, req upnpsoap.ActionRequest) (*upnpsoap.ActionResponse, error) {
	raw, err := netio.TCPRequest(ctx, m.host, req.Dump(), m.cfg.UPnPHTTPTimeout)
	if err != nil {
		return nil, mapper.NetworkFail(err, "igd pinhole: %s request", req.Action)
	}
	resp, err := upnpsoap.ParseHTTPResponse(raw)
	if err != nil {
		if soapErr, ok := asSoapError(err); ok {
			return nil, soapErr
		}
		return nil, mapper.Malformed(err, "igd pinhole: parse %s response", req.Action)
	}
	return resp, nil
}

// localIPv6For returns this host's IPv6 address as seen when dialing
// hostPort, used as the pinhole's InternalClient value.
func localIPv6For(hostPort string) (net.IP, error) {
	conn, err := net.Dial("udp6", hostPort)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP, nil
}
