package mapper

import (
	"net"
	"time"

	"github.com/HD-CIPL/portmapper/pkg/addr"
)

// Mapping is the immutable result of a successful create or refresh (spec
// §3's Lifecycles, §4.7). It is a plain value type: refreshing or
// releasing a Mapping never mutates it in place, it produces (or
// invalidates) a value.
type Mapping struct {
	Gateway      net.IP // the mapper's gateway address, for ValidGateway checks
	Protocol     addr.PortType
	InternalPort uint16
	ExternalPort uint16
	ExternalIP   net.IP
	ExpiresAt    time.Time

	// Lifetime is the lease duration granted when this Mapping was created
	// or last refreshed, i.e. the fixed span ExpiresAt was computed from.
	// RefreshAt derives its margin from this value rather than from
	// time.Until(ExpiresAt), which shrinks on every call and would push
	// the refresh deadline later each time Serve polls it.
	Lifetime time.Duration

	// Extra carries a backend-specific opaque identifier a Mapper needs to
	// refresh or release the mapping but that has no general meaning
	// across backends: for an IGD:2 IPv6 firewall pinhole, the UniqueID
	// returned by AddPinhole.
	Extra string
}

// RefreshAt returns when this mapping should be proactively refreshed: at
// or before expiresAt - max(60s, lifetime/2), per spec §4.7. The margin is
// computed from the granted Lifetime, not the remaining time until
// ExpiresAt, so repeated calls as the lease ages converge on the same
// deadline instead of drifting later each time.
func (m Mapping) RefreshAt() time.Time {
	margin := m.Lifetime / 2
	if margin < 60*time.Second {
		margin = 60 * time.Second
	}
	return m.ExpiresAt.Add(-margin)
}

// ValidGateway reports whether gatewayLocalIP is consistent with the
// gateway address (Gateway) this mapping was created against: nil/unspecified on either
// side is always consistent, and matching concrete IPs are consistent. A
// session uses this to detect that the host's default gateway has changed
// (e.g. a laptop switching networks) before sending a refresh to a
// gateway the mapping was never created against.
// Grounded on syncthing's lib/nat Mapping.validGateway.
func (m Mapping) ValidGateway(gatewayLocalIP net.IP) bool {
	if len(gatewayLocalIP) == 0 || gatewayLocalIP.IsUnspecified() {
		return true
	}
	if len(m.Gateway) == 0 || m.Gateway.IsUnspecified() {
		return true
	}
	return m.Gateway.Equal(gatewayLocalIP)
}

// Expired reports whether the mapping's lease has already run out.
func (m Mapping) Expired() bool {
	return !time.Now().Before(m.ExpiresAt)
}
