package procgw

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// DefaultGatewayFallback shells out to the platform's routing table tool
// to find the default gateway, for use when github.com/jackpal/gateway's
// platform APIs fail to resolve one (spec §6's process gateway is
// explicitly scoped to this one fallback case).
func DefaultGatewayFallback(ctx context.Context) (net.IP, error) {
	if ip, err := linuxIPRoute(ctx); err == nil {
		return ip, nil
	}
	if ip, err := netstatRoute(ctx); err == nil {
		return ip, nil
	}
	return nil, fmt.Errorf("procgw: no routing table tool produced a default gateway")
}

func linuxIPRoute(ctx context.Context) (net.IP, error) {
	res, err := Run(ctx, "ip", "route", "show", "default")
	if err != nil || res.ExitCode != 0 {
		return nil, fmt.Errorf("procgw: ip route unavailable")
	}
	return parseIPRouteOutput(res.Stdout)
}

// parseIPRouteOutput extracts the gateway address from `ip route show
// default` output, e.g. "default via 192.168.1.1 dev eth0 proto dhcp".
func parseIPRouteOutput(stdout string) (net.IP, error) {
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "via" && i+1 < len(fields) {
				if ip := net.ParseIP(fields[i+1]); ip != nil {
					return ip, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("procgw: no default route in ip route output")
}

// netstatRoute parses `netstat -rn` output, the common denominator format
// across macOS, BSD and (with -r -n) Windows: a routing table with
// Destination/Gateway columns and a "0.0.0.0" or "default" destination row
// for the default route.
func netstatRoute(ctx context.Context) (net.IP, error) {
	res, err := Run(ctx, "netstat", "-rn")
	if err != nil || res.ExitCode != 0 {
		return nil, fmt.Errorf("procgw: netstat unavailable")
	}
	return parseNetstatOutput(res.Stdout)
}

func parseNetstatOutput(stdout string) (net.IP, error) {
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		dest := fields[0]
		if dest != "0.0.0.0" && dest != "default" {
			continue
		}
		if ip := net.ParseIP(fields[1]); ip != nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("procgw: no default route in netstat output")
}
