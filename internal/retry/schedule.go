package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
)

// NewPCPBackoff builds the RFC 6887 §8.1.1 PCP retransmission schedule:
// initial interval IRT randomized by cfg.RetryRandomizationFactor,
// doubling each retry up to MRT, bounded by the request's lifetime (PCP
// gives up "after MRC retransmissions or after the request lifetime
// elapses" - MRC is unbounded unless cfg.PCPMaxRetransmitCount is
// positive, in which case the schedule also stops after that many retries).
func NewPCPBackoff(cfg mapperconfig.Config, lifetime time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.PCPInitialRetransmitTime
	b.RandomizationFactor = cfg.RetryRandomizationFactor
	b.Multiplier = 2
	b.MaxInterval = cfg.PCPMaxRetransmitTime
	b.MaxElapsedTime = lifetime
	b.Reset()
	if cfg.PCPMaxRetransmitCount > 0 {
		return backoff.WithMaxRetries(b, uint64(cfg.PCPMaxRetransmitCount))
	}
	return b
}

// NewNATPMPBackoff builds the RFC 6886 NAT-PMP retransmission schedule:
// fixed initial timeout doubling each retry, for a fixed retry count (no
// jitter; RFC 6886 does not randomize).
func NewNATPMPBackoff(cfg mapperconfig.Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.NATPMPInitialTimeout
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = cfg.NATPMPInitialTimeout << uint(cfg.NATPMPMaxRetries-1)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(cfg.NATPMPMaxRetries))
}
