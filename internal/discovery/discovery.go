// Package discovery implements spec.md §4.6's discovery and mapper
// selection: for each local interface, concurrently probe for a PCP/
// NAT-PMP daemon and run an SSDP search for UPnP-IGD services, then
// construct a Mapper for each responder found. Fan-out is via
// golang.org/x/sync/errgroup; default-gateway candidates come from
// github.com/jackpal/gateway, falling back to internal/procgw's
// routing-table parse when that fails. Grounded on syncthing's
// internal/upnp.go discovery goroutine-per-response pattern, recast onto
// errgroup.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jackpal/gateway"
	"golang.org/x/sync/errgroup"

	"github.com/HD-CIPL/portmapper/internal/logging"
	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
	"github.com/HD-CIPL/portmapper/internal/netio"
	"github.com/HD-CIPL/portmapper/internal/procgw"
	"github.com/HD-CIPL/portmapper/mapper"
	"github.com/HD-CIPL/portmapper/pkg/upnpsoap"
)

var logger = logging.New("portmapper/discovery")

// Engine runs discovery across local interfaces and caches, for
// classificationTTL, the last classification (PCP or NAT-PMP) seen for a
// given gateway address, so a rediscovery within that window skips the
// PCP ANNOUNCE / NAT-PMP probe for that gateway. The SSDP sweep is run on
// every Discover call regardless of the cache.
type Engine struct {
	cfg mapperconfig.Config

	mu         sync.Mutex
	classCache map[string]cacheEntry

	gatewayMu sync.Mutex
	gatewayIP net.IP
	gatewayAt time.Time
}

type cacheEntry struct {
	kind         string
	classifiedAt time.Time
}

const classificationTTL = 5 * time.Minute

// gatewayCacheTTL bounds how long a resolved default gateway is reused
// before defaultGateway re-resolves it. Short enough that
// Mapping.ValidGateway notices a network switch (e.g. a laptop roaming
// onto a different Wi-Fi) within one session refresh cycle.
const gatewayCacheTTL = 30 * time.Second

// New returns a discovery Engine using cfg's timeouts.
func New(cfg mapperconfig.Config) *Engine {
	return &Engine{cfg: cfg, classCache: map[string]cacheEntry{}}
}

// Discover runs the full discovery sweep of spec §4.6 and returns the
// union of constructed Mappers across every local interface: the PCP or
// NAT-PMP mappers found by the per-interface probes first, then the IGD
// mappers found by the SSDP sweep. The slice is not sorted by selection
// priority; callers that need that order rank it themselves.
func (e *Engine) Discover(ctx context.Context) ([]mapper.Mapper, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, mapper.NetworkFail(err, "discovery: enumerate interfaces")
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var pcpNatpmp []mapper.Mapper
	var igd []mapper.Mapper

	for _, ifc := range ifaces {
		ifc := ifc
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		g.Go(func() error {
			m, err := e.probeGateway(gctx, ifc)
			if err != nil {
				logger.Debugf("interface %s: gateway probe: %v", ifc.Name, err)
				return nil
			}
			if m != nil {
				mu.Lock()
				pcpNatpmp = append(pcpNatpmp, m)
				mu.Unlock()
			}
			return nil
		})
	}

	g.Go(func() error {
		found, err := e.probeSSDP(gctx)
		if err != nil {
			logger.Debugf("SSDP sweep: %v", err)
			return nil
		}
		mu.Lock()
		igd = append(igd, found...)
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, mapper.NetworkFail(err, "discovery: sweep failed")
	}

	return append(dedupePCPNatPMP(pcpNatpmp), igd...), nil
}

// DefaultGateway resolves the OS default gateway, caching the result for
// gatewayCacheTTL before re-resolving, and falling back to procgw's
// routing-table parse if the platform API (github.com/jackpal/gateway)
// fails. Exposed so a session can check a held Mapping's gateway is still
// current before refreshing it (see mapper.Mapping.ValidGateway): the TTL
// keeps that check from going stale for the life of the Engine after a
// host roams onto a different network.
func (e *Engine) DefaultGateway(ctx context.Context) (net.IP, error) {
	return e.defaultGateway(ctx)
}

func (e *Engine) defaultGateway(ctx context.Context) (net.IP, error) {
	e.gatewayMu.Lock()
	defer e.gatewayMu.Unlock()

	if e.gatewayIP != nil && time.Since(e.gatewayAt) < gatewayCacheTTL {
		return e.gatewayIP, nil
	}

	ip, gerr := gateway.DiscoverGateway()
	if gerr != nil {
		logger.Debugf("jackpal/gateway failed (%v), falling back to routing table parse", gerr)
		var ferr error
		ip, ferr = procgw.DefaultGatewayFallback(ctx)
		if ferr != nil {
			return nil, fmt.Errorf("discovery: resolve default gateway: %w", ferr)
		}
	}

	e.gatewayIP = ip
	e.gatewayAt = time.Now()
	return e.gatewayIP, nil
}

func (e *Engine) cachedKind(gw net.IP) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.classCache[gw.String()]
	if !ok || time.Since(entry.classifiedAt) > classificationTTL {
		return "", false
	}
	return entry.kind, true
}

func (e *Engine) cacheKind(gw net.IP, kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.classCache[gw.String()] = cacheEntry{kind: kind, classifiedAt: time.Now()}
}

func dedupePCPNatPMP(ms []mapper.Mapper) []mapper.Mapper {
	seen := map[string]bool{}
	var out []mapper.Mapper
	for _, m := range ms {
		key := m.Kind()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

// ssdpSearchTargets is the set of service URNs searched in step 2(b) of
// spec §4.6.
var ssdpSearchTargets = []string{
	upnpsoap.ServiceWANIPConnection1,
	upnpsoap.ServiceWANIPConnection2,
	upnpsoap.ServiceWANPPPConnection1,
	upnpsoap.ServiceWANIPv6FirewallControl1,
}
