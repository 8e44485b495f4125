// Command portmap maps a single local port through whatever NAT-PMP, PCP
// or UPnP-IGD gateway discovery finds, holds the mapping open with
// automatic keepalive refresh, and releases it on SIGINT/SIGTERM.
//
// Exercises lib/portmapper end to end: discovery, selection, create,
// periodic refresh, and release.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/thejerf/suture/v4"

	"github.com/HD-CIPL/portmapper/internal/mapperconfig"
	"github.com/HD-CIPL/portmapper/lib/portmapper"
	"github.com/HD-CIPL/portmapper/pkg/addr"
)

type cli struct {
	InternalPort uint16        `help:"Local port to map" required:"" env:"PORTMAP_INTERNAL_PORT"`
	ExternalPort uint16        `help:"Preferred external port (0 lets the gateway choose)" default:"0" env:"PORTMAP_EXTERNAL_PORT"`
	Protocol     string        `help:"tcp or udp" default:"tcp" env:"PORTMAP_PROTOCOL"`
	Lifetime     time.Duration `help:"Requested mapping lifetime" default:"1h" env:"PORTMAP_LIFETIME"`
}

func main() {
	var params cli
	kong.Parse(&params)

	protocol, err := parseProtocol(params.Protocol)
	if err != nil {
		fmt.Fprintln(os.Stderr, "portmap:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := mapperconfig.New()
	if params.Lifetime > 0 {
		cfg.RequestedLifetime = params.Lifetime
	}
	mgr := portmapper.New(cfg)

	main := suture.New("portmap", suture.Spec{PassThroughPanics: true})
	main.Add(mgr)
	main.ServeBackground(ctx)

	h, err := mgr.Map(ctx, params.InternalPort, params.ExternalPort, protocol, cfg.RequestedLifetime)
	if err != nil {
		fmt.Fprintln(os.Stderr, "portmap: map failed:", err)
		os.Exit(1)
	}
	m, _ := mgr.Mapping(h)
	fmt.Printf("mapped %s %d -> external %s:%d (expires %s)\n", protocol, params.InternalPort, m.ExternalIP, m.ExternalPort, m.ExpiresAt.Format(time.RFC3339))

	<-ctx.Done()

	unmapCtx, cancel := context.WithTimeout(context.Background(), cfg.UPnPHTTPTimeout)
	defer cancel()
	if err := mgr.Unmap(unmapCtx, h); err != nil {
		fmt.Fprintln(os.Stderr, "portmap: unmap failed:", err)
	}
}

func parseProtocol(s string) (addr.PortType, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return addr.TCP, nil
	case "udp":
		return addr.UDP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q, want tcp or udp", s)
	}
}
