package retry

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
)

// drainSchedule runs b to exhaustion (backoff.Stop), returning every
// interval it produced in order.
func drainSchedule(b backoff.BackOff) []time.Duration {
	var intervals []time.Duration
	for {
		d := b.NextBackOff()
		if d == backoff.Stop {
			return intervals
		}
		intervals = append(intervals, d)
	}
}

// TestNATPMPBackoffScheduleTiming models spec.md §8's end-to-end scenario 6:
// a gateway that never replies exhausts the NAT-PMP schedule after 9
// transmissions (the initial send plus 8 retransmissions), around 128
// total seconds (RFC 6886's 250ms-initial,
// doubling schedule). This only drains the pure interval calculation; it
// never sleeps for real.
func TestNATPMPBackoffScheduleTiming(t *testing.T) {
	cfg := mapperconfig.New()
	intervals := drainSchedule(NewNATPMPBackoff(cfg))
	if len(intervals) != cfg.NATPMPMaxRetries {
		t.Fatalf("got %d intervals, want %d (NATPMPMaxRetries)", len(intervals), cfg.NATPMPMaxRetries)
	}

	var total time.Duration
	for i, d := range intervals {
		total += d
		wantBase := cfg.NATPMPInitialTimeout << uint(i)
		if wantBase > cfg.NATPMPInitialTimeout<<uint(cfg.NATPMPMaxRetries-1) {
			wantBase = cfg.NATPMPInitialTimeout << uint(cfg.NATPMPMaxRetries-1)
		}
		if d != wantBase {
			t.Errorf("interval %d = %s, want %s (NAT-PMP does not randomize)", i, d, wantBase)
		}
	}

	wantTotal := 128 * time.Second
	tolerance := 4 * time.Second
	if diff := total - wantTotal; diff < -tolerance || diff > tolerance {
		t.Errorf("total schedule duration = %s, want ~%s (+/- %s)", total, wantTotal, tolerance)
	}
}

// TestPCPBackoffScheduleStaysWithinIRTBounds checks RFC 6887 §8.1.1's
// interval law: each retry falls within [IRT*2^k*0.75, IRT*2^k*1.25], up to
// MRT. PCP's own termination condition is wall-clock elapsed time against
// the request lifetime (spec §4.5), not a call count, so this test takes a
// fixed number of samples rather than draining to backoff.Stop — doing that
// in a tight loop with no real sleep between calls would never observe the
// lifetime elapsing.
func TestPCPBackoffScheduleStaysWithinIRTBounds(t *testing.T) {
	cfg := mapperconfig.New()
	lifetime := 30 * time.Second
	b := NewPCPBackoff(cfg, lifetime)

	const samples = 6
	for k := 0; k < samples; k++ {
		d := b.NextBackOff()
		if d == backoff.Stop {
			t.Fatalf("schedule stopped early at sample %d", k)
		}
		base := cfg.PCPInitialRetransmitTime << uint(k)
		if base > cfg.PCPMaxRetransmitTime {
			base = cfg.PCPMaxRetransmitTime
		}
		lower := time.Duration(float64(base) * 0.75)
		upper := time.Duration(float64(base) * 1.25)
		if d < lower || d > upper {
			t.Errorf("interval %d = %s, want within [%s, %s] of base %s", k, d, lower, upper, base)
		}
	}
}

// TestPCPBackoffHonorsMaxRetransmitCount checks that when
// PCPMaxRetransmitCount is set, the schedule stops after that many
// retransmissions regardless of elapsed time.
func TestPCPBackoffHonorsMaxRetransmitCount(t *testing.T) {
	cfg := mapperconfig.New()
	cfg.PCPMaxRetransmitCount = 3
	intervals := drainSchedule(NewPCPBackoff(cfg, time.Hour))
	if len(intervals) != 3 {
		t.Fatalf("got %d intervals, want 3 (PCPMaxRetransmitCount)", len(intervals))
	}
}
