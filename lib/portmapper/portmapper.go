// Package portmapper is the top-level orchestration façade: discovery of
// reachable mappers (internal/discovery), priority selection among them
// (mapper.Selector), and keepalive refresh of every live mapping (spec.md
// §4.7). It runs as a suture.Service, grounded on syncthing's
// internal/db/sqlite Service: a single periodic loop driven by a timer set
// to the nearest pending refresh, woken early whenever a new mapping is
// created.
package portmapper

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/HD-CIPL/portmapper/internal/discovery"
	"github.com/HD-CIPL/portmapper/internal/logging"
	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
	"github.com/HD-CIPL/portmapper/mapper"
	"github.com/HD-CIPL/portmapper/pkg/addr"
)

var logger = logging.New("portmapper")

// idleWait bounds how long Serve ever sleeps with no live mappings, so a
// mapping created between loop iterations is not starved indefinitely.
const idleWait = 30 * time.Second

// Handle names one mapping session held by a Manager. It carries no
// exported fields: callers look up the current Mapping via
// Manager.Mapping(h).
type Handle struct {
	id string
}

// Manager discovers mappers, selects among them, and keeps every mapping it
// creates refreshed until Unmap or an unrecoverable refresh failure (spec
// §4.7's MappingLost). The zero value is not usable; construct with New.
type Manager struct {
	cfg        mapperconfig.Config
	discoverer *discovery.Engine

	mu       sync.Mutex
	sessions map[string]*session
	nextID   uint64
	wake     chan struct{}
}

// New returns a Manager using cfg's timeouts and retry schedules.
func New(cfg mapperconfig.Config) *Manager {
	return &Manager{
		cfg:        cfg,
		discoverer: discovery.New(cfg),
		sessions:   map[string]*session{},
		wake:       make(chan struct{}, 1),
	}
}

func (m *Manager) String() string {
	return fmt.Sprintf("portmapper.Manager@%p", m)
}

// Map runs discovery, selects a mapper per spec §4.6's priority order (PCP
// -> NAT-PMP -> IGD v4 -> IGD v6 pinhole), and creates a mapping. The
// returned Handle is kept refreshed by Serve until Unmap is called.
func (m *Manager) Map(ctx context.Context, internalPort, preferredExternalPort uint16, protocol addr.PortType, lifetime time.Duration) (Handle, error) {
	mappers, err := m.discoverer.Discover(ctx)
	if err != nil {
		return Handle{}, err
	}
	sel := &mapper.Selector{Mappers: rankMappers(mappers)}
	mapping, backend, err := sel.Create(ctx, internalPort, preferredExternalPort, protocol, lifetime)
	if err != nil {
		return Handle{}, err
	}

	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("sess-%d", m.nextID)
	m.sessions[id] = &session{
		mapper:   backend,
		mapping:  mapping,
		lifetime: lifetime,
	}
	m.mu.Unlock()

	logger.Debugf("mapped internal:%d -> external:%d via %s", internalPort, mapping.ExternalPort, backend.Kind())
	m.nudge()
	return Handle{id: id}, nil
}

// Refresh forces an immediate refresh of h's mapping, independent of
// Serve's periodic schedule.
func (m *Manager) Refresh(ctx context.Context, h Handle) (mapper.Mapping, error) {
	s, ok := m.session(h)
	if !ok {
		return mapper.Mapping{}, mapper.Invalid("portmapper: unknown handle")
	}
	return s.refresh(ctx, m.cfg, m.currentGateway(ctx))
}

// currentGateway resolves the host's current default gateway for
// session.refresh's staleness check, returning nil (skip the check) if it
// cannot be determined.
func (m *Manager) currentGateway(ctx context.Context) net.IP {
	gw, err := m.discoverer.DefaultGateway(ctx)
	if err != nil {
		logger.Debugf("resolving default gateway for refresh staleness check: %v", err)
		return nil
	}
	return gw
}

// Unmap releases h's mapping on the gateway and stops refreshing it. It is
// not an error to unmap a handle whose mapping already expired or was lost.
func (m *Manager) Unmap(ctx context.Context, h Handle) error {
	m.mu.Lock()
	s, ok := m.sessions[h.id]
	delete(m.sessions, h.id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return nil
	}
	return s.mapper.Release(ctx, s.mapping)
}

// Mapping returns h's current Mapping and whether it is still live (not
// unmapped and not lost).
func (m *Manager) Mapping(h Handle) (mapper.Mapping, bool) {
	s, ok := m.session(h)
	if !ok {
		return mapper.Mapping{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return mapper.Mapping{}, false
	}
	return s.mapping, true
}

func (m *Manager) session(h Handle) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[h.id]
	return s, ok
}

func (m *Manager) nudge() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Serve runs the keepalive loop: whenever the earliest live session's
// RefreshAt is due, refresh it; sessions that go MappingLost are skipped
// and no longer retried. Serve returns only when ctx is cancelled.
func (m *Manager) Serve(ctx context.Context) error {
	for {
		wait := m.nextWait()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
		m.refreshDue(ctx)
	}
}

// nextWait returns how long Serve should sleep until the earliest pending
// refresh, capped at idleWait when there is nothing to do.
func (m *Manager) nextWait() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var earliest time.Time
	for _, s := range m.sessions {
		s.mu.Lock()
		lost := s.lost
		refreshAt := s.mapping.RefreshAt()
		s.mu.Unlock()
		if lost {
			continue
		}
		if earliest.IsZero() || refreshAt.Before(earliest) {
			earliest = refreshAt
		}
	}
	if earliest.IsZero() {
		return idleWait
	}
	wait := time.Until(earliest)
	if wait < 0 {
		wait = 0
	}
	if wait > idleWait {
		wait = idleWait
	}
	return wait
}

func (m *Manager) refreshDue(ctx context.Context) {
	m.mu.Lock()
	due := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.mu.Lock()
		ready := !s.lost && !time.Now().Before(s.mapping.RefreshAt())
		s.mu.Unlock()
		if ready {
			due = append(due, s)
		}
	}
	m.mu.Unlock()

	if len(due) == 0 {
		return
	}
	gw := m.currentGateway(ctx)
	for _, s := range due {
		if _, err := s.refresh(ctx, m.cfg, gw); err != nil {
			logger.Debugf("refresh failed: %v", err)
		}
	}
}

// rankMappers reorders discovery's results into spec §4.6's selection
// priority: PCP, then NAT-PMP, then IGD (IPv4), then IGD (IPv6 pinhole).
// discovery.Engine.Discover's own ordering is not priority-stable (the
// PCP/NAT-PMP probes race across interfaces), so Map must re-sort before
// handing the slice to a Selector.
func rankMappers(mappers []mapper.Mapper) []mapper.Mapper {
	ranked := make([]mapper.Mapper, len(mappers))
	copy(ranked, mappers)
	sort.SliceStable(ranked, func(i, j int) bool {
		return mapperRank(ranked[i]) < mapperRank(ranked[j])
	})
	return ranked
}

func mapperRank(m mapper.Mapper) int {
	switch m.Kind() {
	case "pcp":
		return 0
	case "natpmp":
		return 1
	case "igd1", "igd2":
		return 2
	case "igd2-pinhole":
		return 3
	default:
		return 4
	}
}
