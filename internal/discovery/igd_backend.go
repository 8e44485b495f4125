package discovery

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/HD-CIPL/portmapper/internal/logging"
	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
	"github.com/HD-CIPL/portmapper/internal/netio"
	"github.com/HD-CIPL/portmapper/mapper"
	"github.com/HD-CIPL/portmapper/pkg/addr"
	"github.com/HD-CIPL/portmapper/pkg/upnpsoap"
)

var igdLogger = logging.New("portmapper/discovery/igd")

// igdMapper drives AddPortMapping/DeletePortMapping (and, for IGD:2
// services, the AddAnyPortMapping conflict fallback plus a
// GetSpecificPortMappingEntry confirmation step) against a single
// WANIPConnection or WANPPPConnection service.
type igdMapper struct {
	svc  upnpsoap.Service
	host string // authority (host:port)
	path string // control URL path
	cfg  mapperconfig.Config
	igd2 bool // true if this service's schema supports AddAnyPortMapping
}

func newIGDMapper(svc upnpsoap.Service, cfg mapperconfig.Config) (*igdMapper, error) {
	u, err := url.Parse(svc.ControlURL)
	if err != nil {
		return nil, mapper.Invalid("igd: invalid control URL %q: %v", svc.ControlURL, err)
	}
	return &igdMapper{
		svc:  svc,
		host: u.Host,
		path: u.RequestURI(),
		cfg:  cfg,
		igd2: svc.ServiceType == upnpsoap.ServiceWANIPConnection2,
	}, nil
}

func (m *igdMapper) Kind() string {
	if m.igd2 {
		return "igd2"
	}
	return "igd1"
}

func (m *igdMapper) Create(ctx context.Context, internalPort, preferredExternalPort uint16, protocol addr.PortType, lifetime time.Duration) (mapper.Mapping, error) {
	internalIP, err := localIPFor(m.host)
	if err != nil {
		return mapper.Mapping{}, mapper.NetworkFail(err, "igd: determine local IP")
	}

	externalPort := preferredExternalPort
	req, err := upnpsoap.NewAddPortMappingRequest(m.host, m.path, m.svc.ServiceType, nil, externalPort, protocol, internalPort, internalIP, true, "portmapper", uint32(lifetime.Seconds()))
	if err != nil {
		return mapper.Mapping{}, mapper.Invalid("igd: %v", err)
	}

	_, err = m.call(ctx, req)
	if err != nil {
		if soapErr, ok := err.(*upnpsoap.SoapError); ok && soapErr.IsConflict() && m.igd2 {
			igdLogger.Debugf("AddPortMapping conflicted on port %d, falling back to AddAnyPortMapping", externalPort)
			anyReq, aerr := upnpsoap.NewAddAnyPortMappingRequest(m.host, m.path, m.svc.ServiceType, nil, externalPort, protocol, internalPort, internalIP, true, "portmapper", uint32(lifetime.Seconds()))
			if aerr != nil {
				return mapper.Mapping{}, mapper.Invalid("igd: %v", aerr)
			}
			anyResp, aerr := m.call(ctx, anyReq)
			if aerr != nil {
				return mapper.Mapping{}, translateSoapErr(aerr)
			}
			if port, ok := anyResp.Get("NewReservedPort"); ok {
				if p, perr := strconv.Atoi(port); perr == nil {
					externalPort = uint16(p)
				}
			}
		} else {
			return mapper.Mapping{}, translateSoapErr(err)
		}
	}

	confirmReq := upnpsoap.NewGetSpecificPortMappingEntryRequest(m.host, m.path, m.svc.ServiceType, nil, externalPort, protocol)
	confirmResp, err := m.call(ctx, confirmReq)
	if err != nil {
		return mapper.Mapping{}, translateSoapErr(err)
	}
	leaseDuration := uint32(lifetime.Seconds())
	if ld, ok := confirmResp.Get("NewLeaseDuration"); ok {
		if v, perr := strconv.Atoi(ld); perr == nil {
			leaseDuration = uint32(v)
		}
	}

	extIP, err := m.externalIP(ctx)
	if err != nil {
		igdLogger.Debugf("GetExternalIPAddress failed: %v", err)
	}

	grantedLifetime := lifetime
	if leaseDuration > 0 {
		grantedLifetime = time.Duration(leaseDuration) * time.Second
	}
	return mapper.Mapping{
		Gateway:      net.ParseIP(hostOnly(m.host)),
		Protocol:     protocol,
		InternalPort: internalPort,
		ExternalPort: externalPort,
		ExternalIP:   extIP,
		ExpiresAt:    time.Now().Add(grantedLifetime),
		Lifetime:     grantedLifetime,
	}, nil
}

func (m *igdMapper) Refresh(ctx context.Context, existing mapper.Mapping, lifetime time.Duration) (mapper.Mapping, error) {
	return m.Create(ctx, existing.InternalPort, existing.ExternalPort, existing.Protocol, lifetime)
}

func (m *igdMapper) Release(ctx context.Context, existing mapper.Mapping) error {
	req := upnpsoap.NewDeletePortMappingRequest(m.host, m.path, m.svc.ServiceType, nil, existing.ExternalPort, existing.Protocol)
	_, err := m.call(ctx, req)
	if err != nil {
		return translateSoapErr(err)
	}
	return nil
}

func (m *igdMapper) externalIP(ctx context.Context) (net.IP, error) {
	req := upnpsoap.NewGetExternalIPAddressRequest(m.host, m.path, m.svc.ServiceType)
	resp, err := m.call(ctx, req)
	if err != nil {
		return nil, translateSoapErr(err)
	}
	ipStr, ok := resp.Get("NewExternalIPAddress")
	if !ok {
		return nil, mapper.Protocol(0, "igd: GetExternalIPAddress response missing NewExternalIPAddress")
	}
	return net.ParseIP(ipStr), nil
}

func (m *igdMapper) call(ctx context.Context, req upnpsoap.ActionRequest) (*upnpsoap.ActionResponse, error) {
	raw, err := netio.TCPRequest(ctx, m.host, req.Dump(), m.cfg.UPnPHTTPTimeout)
	if err != nil {
		return nil, mapper.NetworkFail(err, "igd: %s request", req.Action)
	}
	resp, err := upnpsoap.ParseHTTPResponse(raw)
	if err != nil {
		if soapErr, ok := asSoapError(err); ok {
			return nil, soapErr
		}
		return nil, mapper.Malformed(err, "igd: parse %s response", req.Action)
	}
	return resp, nil
}

func asSoapError(err error) (*upnpsoap.SoapError, bool) {
	soapErr, ok := err.(*upnpsoap.SoapError)
	return soapErr, ok
}

func translateSoapErr(err error) error {
	if soapErr, ok := asSoapError(err); ok {
		code := 0
		if soapErr.UPnPErrorCode != nil {
			code = *soapErr.UPnPErrorCode
		}
		return mapper.Protocol(code, "igd: %s", soapErr.Error())
	}
	return mapper.NetworkFail(err, "igd: request failed")
}

// localIPFor returns the local IP this host sees when dialing hostPort,
// used as the InternalClient value in AddPortMapping.
func localIPFor(hostPort string) (net.IP, error) {
	conn, err := net.Dial("udp", hostPort)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP, nil
}

func hostOnly(hostPort string) string {
	host, _, err := net.SplitHostPort(hostPort)
	if err != nil {
		return hostPort
	}
	return host
}
