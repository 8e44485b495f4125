package upnpsoap

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// Service URNs this client knows how to drive (spec §1, §4.6).
const (
	ServiceWANIPConnection1        = "urn:schemas-upnp-org:service:WANIPConnection:1"
	ServiceWANIPConnection2        = "urn:schemas-upnp-org:service:WANIPConnection:2"
	ServiceWANPPPConnection1       = "urn:schemas-upnp-org:service:WANPPPConnection:1"
	ServiceWANIPv6FirewallControl1 = "urn:schemas-upnp-org:service:WANIPv6FirewallControl:1"
)

type deviceService struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

type deviceNode struct {
	DeviceType   string          `xml:"deviceType"`
	FriendlyName string          `xml:"friendlyName"`
	UDN          string          `xml:"UDN"`
	Devices      []deviceNode    `xml:"deviceList>device"`
	Services     []deviceService `xml:"serviceList>service"`
}

type deviceRoot struct {
	Device deviceNode `xml:"device"`
}

// Service is a located, URL-resolved control point for one service instance
// on a device.
type Service struct {
	ServiceType string
	ServiceURN  string // alias of ServiceType, kept for readability at call sites
	ControlURL  string // absolute URL
	SCPDURL     string // absolute URL, for introspection if ever needed
}

// ParseDeviceDescription parses a UPnP device description document (the
// body fetched from an SSDP response's Location URL).
func ParseDeviceDescription(raw []byte) (*deviceRoot, error) {
	var root deviceRoot
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("upnpsoap: invalid device description: %w", err)
	}
	return &root, nil
}

// FindServices walks the entire device tree rooted at a parsed device
// description looking for every service instance whose serviceType is in
// wantedTypes, in the order they are listed, resolving control/SCPD URLs
// against rootURL. Unlike the IGD:1-only nesting rule (WANDevice ->
// WANConnectionDevice -> service), this walks the whole tree so that IGD:2's
// WANIPv6FirewallControl service, which other IGD:2 implementations attach
// at varying depths, is still found.
func FindServices(root *deviceRoot, rootURL string, wantedTypes []string) ([]Service, error) {
	base, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("upnpsoap: invalid root device description URL: %w", err)
	}

	wanted := make(map[string]bool, len(wantedTypes))
	for _, t := range wantedTypes {
		wanted[t] = true
	}

	var results []Service
	var walk func(d deviceNode)
	walk = func(d deviceNode) {
		for _, svc := range d.Services {
			if !wanted[svc.ServiceType] {
				continue
			}
			if svc.ControlURL == "" {
				continue
			}
			cu := *base
			replaceRawPath(&cu, svc.ControlURL)
			su := *base
			if svc.SCPDURL != "" {
				replaceRawPath(&su, svc.SCPDURL)
			}
			results = append(results, Service{
				ServiceType: svc.ServiceType,
				ServiceURN:  svc.ServiceType,
				ControlURL:  cu.String(),
				SCPDURL:     su.String(),
			})
		}
		for _, child := range d.Devices {
			walk(child)
		}
	}
	walk(root.Device)

	return results, nil
}

// replaceRawPath rewrites u's path and query to rp, which may be an
// absolute URL or a path relative to u's existing path. Grounded on
// internal/upnp.go's replaceRawPath.
func replaceRawPath(u *url.URL, rp string) {
	if strings.HasPrefix(rp, "http://") || strings.HasPrefix(rp, "https://") {
		if parsed, err := url.Parse(rp); err == nil {
			*u = *parsed
			return
		}
	}
	var p, q string
	fs := strings.SplitN(rp, "?", 2)
	p = fs[0]
	if len(fs) > 1 {
		q = fs[1]
	}
	if strings.HasPrefix(p, "/") {
		u.Path = p
	} else {
		u.Path += p
	}
	u.RawQuery = q
}
