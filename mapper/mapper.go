package mapper

import (
	"context"
	"time"

	"github.com/HD-CIPL/portmapper/pkg/addr"
)

// Mapper is the common surface implemented by every backend: PCP,
// NAT-PMP, IGD (IPv4 port mapping) and IGD (IPv6 firewall pinhole). The
// mapping session (spec §4.7) drives one of these per Mapping; the
// discovery/selection layer (spec §4.6) is what decides which
// implementation to hand the session.
type Mapper interface {
	// Kind names the backend, e.g. "pcp", "natpmp", "igd1", "igd2-pinhole".
	Kind() string

	// Create establishes a new mapping. preferredExternalPort is a hint;
	// the gateway may return a different external port. lifetime is the
	// requested lease duration.
	Create(ctx context.Context, internalPort, preferredExternalPort uint16, protocol addr.PortType, lifetime time.Duration) (Mapping, error)

	// Refresh extends an existing mapping's lease, returning the updated
	// Mapping. Implementations must not mutate the Mapping passed in.
	Refresh(ctx context.Context, m Mapping, lifetime time.Duration) (Mapping, error)

	// Release tears down a mapping on the gateway. It is not an error to
	// release an already-expired mapping.
	Release(ctx context.Context, m Mapping) error
}

// Selector tries a set of Mappers in priority order (spec §4.6's
// Selection: PCP -> NAT-PMP -> IGD(v4) -> IGD(v6 pinhole)) and returns the
// Mapping produced by the first one to succeed.
type Selector struct {
	Mappers []Mapper
}

// Create tries each Mapper in order, returning the first successful
// Mapping. If every Mapper fails, it returns an Unsupported error wrapping
// the last error encountered (spec §7).
func (s *Selector) Create(ctx context.Context, internalPort, preferredExternalPort uint16, protocol addr.PortType, lifetime time.Duration) (Mapping, Mapper, error) {
	var lastErr error
	for _, m := range s.Mappers {
		mapping, err := m.Create(ctx, internalPort, preferredExternalPort, protocol, lifetime)
		if err == nil {
			return mapping, m, nil
		}
		if me, ok := err.(*Error); ok && me.Kind == Cancelled {
			return Mapping{}, nil, err
		}
		lastErr = err
	}
	return Mapping{}, nil, NotSupported(lastErr, "no mapper produced a mapping")
}
