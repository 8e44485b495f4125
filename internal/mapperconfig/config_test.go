package mapperconfig

import (
	"testing"
	"time"
)

func TestNewPopulatesAllDefaults(t *testing.T) {
	c := New()

	cases := []struct {
		name string
		got  any
		want any
	}{
		{"PCPInitialRetransmitTime", c.PCPInitialRetransmitTime, 3 * time.Second},
		{"PCPMaxRetransmitTime", c.PCPMaxRetransmitTime, 1024 * time.Second},
		{"PCPMaxRetransmitCount", c.PCPMaxRetransmitCount, 0},
		{"NATPMPInitialTimeout", c.NATPMPInitialTimeout, 250 * time.Millisecond},
		{"NATPMPMaxRetries", c.NATPMPMaxRetries, 9},
		{"RetryRandomizationFactor", c.RetryRandomizationFactor, 0.25},
		{"DiscoveryInterfaceTimeout", c.DiscoveryInterfaceTimeout, 10 * time.Second},
		{"SSDPSearchMx", c.SSDPSearchMx, 3},
		{"RefreshSafetyMargin", c.RefreshSafetyMargin, 30 * time.Second},
		{"UPnPHTTPTimeout", c.UPnPHTTPTimeout, 10 * time.Second},
		{"RequestedLifetime", c.RequestedLifetime, 3600 * time.Second},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestSetDefaultsPreservesNonZeroFields(t *testing.T) {
	c := Config{
		PCPInitialRetransmitTime: 7 * time.Second,
		NATPMPMaxRetries:         2,
	}
	SetDefaults(&c)

	if c.PCPInitialRetransmitTime != 7*time.Second {
		t.Errorf("PCPInitialRetransmitTime = %v, want preserved 7s", c.PCPInitialRetransmitTime)
	}
	if c.NATPMPMaxRetries != 2 {
		t.Errorf("NATPMPMaxRetries = %d, want preserved 2", c.NATPMPMaxRetries)
	}
	// Untouched fields still get their defaults filled in.
	if c.PCPMaxRetransmitTime != 1024*time.Second {
		t.Errorf("PCPMaxRetransmitTime = %v, want default 1024s", c.PCPMaxRetransmitTime)
	}
	if c.RetryRandomizationFactor != 0.25 {
		t.Errorf("RetryRandomizationFactor = %v, want default 0.25", c.RetryRandomizationFactor)
	}
}

func TestSetDefaultsIsIdempotent(t *testing.T) {
	c := New()
	before := c
	SetDefaults(&c)
	if c != before {
		t.Errorf("SetDefaults mutated an already-populated Config: got %+v, want %+v", c, before)
	}
}
