package main

import (
	"testing"

	"github.com/HD-CIPL/portmapper/pkg/addr"
)

func TestParseProtocol(t *testing.T) {
	cases := []struct {
		in      string
		want    addr.PortType
		wantErr bool
	}{
		{"tcp", addr.TCP, false},
		{"TCP", addr.TCP, false},
		{"udp", addr.UDP, false},
		{"UDP", addr.UDP, false},
		{"sctp", 0, true},
		{"", 0, true},
	}
	for _, c := range cases {
		got, err := parseProtocol(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseProtocol(%q) succeeded, want error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseProtocol(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseProtocol(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
