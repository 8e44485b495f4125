package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/HD-CIPL/portmapper/internal/netio"
	"github.com/HD-CIPL/portmapper/mapper"
	"github.com/HD-CIPL/portmapper/pkg/pcp"
	"github.com/HD-CIPL/portmapper/pkg/upnpsoap"
)

// probeGateway implements spec §4.6 steps 1-3(a): check that ifc has a
// unicast IPv4 address, take the host's default gateway as the candidate
// (the same address for every interface; no gateway is resolved per
// interface), announce over PCP, fall back to a NAT-PMP external
// address request, and classify the gateway accordingly. Classifications
// are cached so a subsequent rediscovery on an unchanged gateway skips
// straight to the known-good protocol.
func (e *Engine) probeGateway(ctx context.Context, ifc net.Interface) (mapper.Mapper, error) {
	if _, err := interfaceUnicastIPv4(ifc); err != nil {
		return nil, err
	}
	gw, err := e.defaultGateway(ctx)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.DiscoveryInterfaceTimeout)
	defer cancel()

	if kind, ok := e.cachedKind(gw); ok {
		switch kind {
		case "pcp":
			return &pcpMapper{gw: gw, clientIP: net.IPv4zero, cfg: e.cfg}, nil
		case "natpmp":
			return &natpmpMapper{gw: gw, cfg: e.cfg}, nil
		}
	}

	pcpCandidate := &pcpMapper{gw: gw, clientIP: net.IPv4zero, cfg: e.cfg}
	announceReq := pcp.AnnounceRequest{}
	if _, aerr := pcpCandidate.exchange(probeCtx, announceReq.Dump(), matchPCPAnnounce(), e.cfg.DiscoveryInterfaceTimeout); aerr == nil {
		e.cacheKind(gw, "pcp")
		return pcpCandidate, nil
	}

	natpmpCandidate := &natpmpMapper{gw: gw, cfg: e.cfg}
	if _, nerr := natpmpCandidate.externalAddress(probeCtx); nerr == nil {
		e.cacheKind(gw, "natpmp")
		return natpmpCandidate, nil
	}

	return nil, fmt.Errorf("discovery: gateway %s answered neither PCP nor NAT-PMP", gw)
}

func matchPCPAnnounce() func(datagram []byte) bool {
	return func(datagram []byte) bool {
		op, err := pcp.PeekOpcode(datagram)
		if err != nil {
			return false
		}
		return op == pcp.OpAnnounce && pcp.PeekIsResponse(datagram)
	}
}

func interfaceUnicastIPv4(ifc net.Interface) (net.IP, error) {
	addrs, err := ifc.Addrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("discovery: interface %s has no unicast IPv4 address", ifc.Name)
}

// probeSSDP implements spec §4.6 step 2(b)/3: search for each WAN
// connection and firewall control service type, fetch the device
// description for every responder, and construct a Mapper for each
// matching service found in the device tree.
func (e *Engine) probeSSDP(ctx context.Context) ([]mapper.Mapper, error) {
	mc, err := netio.NewMulticastGateway(upnpsoap.SSDPMulticastAddr)
	if err != nil {
		return nil, err
	}
	defer mc.Close()

	deadline := time.Now().Add(e.cfg.DiscoveryInterfaceTimeout)
	for _, target := range ssdpSearchTargets {
		if err := mc.Send(ctx, upnpsoap.NewSSDPSearch(target, e.cfg.SSDPSearchMx)); err != nil {
			logger.Debugf("SSDP search for %s: %v", target, err)
		}
	}

	seenLocations := map[string]bool{}
	var mappers []mapper.Mapper

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return mappers, nil
		case <-time.After(remaining):
			return mappers, nil
		case d := <-mc.Recv():
			resp, err := upnpsoap.ParseSSDPResponse(d.Data)
			if err != nil {
				continue
			}
			if seenLocations[resp.Location] {
				continue
			}
			seenLocations[resp.Location] = true

			found, err := e.fetchAndResolveServices(ctx, resp.Location)
			if err != nil {
				logger.Debugf("fetch device description %s: %v", resp.Location, err)
				continue
			}
			mappers = append(mappers, found...)
		}
	}
	return mappers, nil
}

func (e *Engine) fetchAndResolveServices(ctx context.Context, location string) ([]mapper.Mapper, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	client := http.Client{Timeout: e.cfg.UPnPHTTPTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	root, err := upnpsoap.ParseDeviceDescription(body)
	if err != nil {
		return nil, err
	}

	var mappers []mapper.Mapper

	wanSvcs, err := upnpsoap.FindServices(root, location, []string{
		upnpsoap.ServiceWANIPConnection1,
		upnpsoap.ServiceWANIPConnection2,
		upnpsoap.ServiceWANPPPConnection1,
	})
	if err == nil {
		for _, svc := range wanSvcs {
			m, merr := newIGDMapper(svc, e.cfg)
			if merr != nil {
				continue
			}
			mappers = append(mappers, m)
		}
	}

	pinholeSvcs, err := upnpsoap.FindServices(root, location, []string{upnpsoap.ServiceWANIPv6FirewallControl1})
	if err == nil {
		for _, svc := range pinholeSvcs {
			m, merr := newIGDPinholeMapper(svc, e.cfg)
			if merr != nil {
				continue
			}
			mappers = append(mappers, m)
		}
	}

	return mappers, nil
}

