package portmapper

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
	"github.com/HD-CIPL/portmapper/mapper"
)

// session is one held mapping plus the backend that created it. Refresh is
// serialized per session by mu: Serve's periodic sweep and an explicit
// Manager.Refresh call must not race on the same mapping.
type session struct {
	mu       sync.Mutex
	mapper   mapper.Mapper
	mapping  mapper.Mapping
	lifetime time.Duration
	lost     bool
}

// refresh extends the session's lease, retrying a retryable failure with
// exponential backoff bounded by lifetime/4 (spec §4.7's refresh policy).
// A non-retryable failure marks the session lost and returns MappingLost;
// it is not retried again by Serve. gatewayIP, when non-nil, is the host's
// currently-resolved default gateway: if it no longer matches the gateway
// this mapping was created against (the host switched networks), the
// session is marked lost without attempting a refresh against a gateway
// the mapping was never negotiated with.
func (s *session) refresh(ctx context.Context, cfg mapperconfig.Config, gatewayIP net.IP) (mapper.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lost {
		return mapper.Mapping{}, mapper.Lost(nil, "portmapper: mapping already lost")
	}

	if gatewayIP != nil && !s.mapping.ValidGateway(gatewayIP) {
		s.lost = true
		return mapper.Mapping{}, mapper.Lost(nil, "portmapper: default gateway changed since mapping was created")
	}

	bo := newRefreshBackoff(s.lifetime, cfg)
	var lastErr error

	for {
		updated, err := s.mapper.Refresh(ctx, s.mapping, s.lifetime)
		if err == nil {
			s.mapping = updated
			return updated, nil
		}
		lastErr = err

		merr, ok := err.(*mapper.Error)
		if !ok || !merr.Retryable() {
			s.lost = true
			return mapper.Mapping{}, mapper.Lost(err, "portmapper: refresh failed")
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			s.lost = true
			return mapper.Mapping{}, mapper.Lost(lastErr, "portmapper: refresh retry budget exhausted")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return mapper.Mapping{}, mapper.Cancel(ctx.Err())
		case <-timer.C:
		}
	}
}

// newRefreshBackoff builds the session-layer retry schedule of spec §4.7:
// exponential backoff capped at lifetime/4 total elapsed time. Distinct
// from internal/retry's packet-level schedules, which bound a single UDP
// exchange rather than a sequence of whole refresh attempts.
func newRefreshBackoff(lifetime time.Duration, cfg mapperconfig.Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = cfg.RetryRandomizationFactor
	b.MaxInterval = cfg.RefreshSafetyMargin * 4
	b.MaxElapsedTime = lifetime / 4
	b.Reset()
	return b
}
