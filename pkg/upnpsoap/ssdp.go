package upnpsoap

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// InternetGatewayDevice device type URNs, usable as an SSDP search target.
// Discovery itself searches for the WAN service URNs, not these.
const (
	DeviceTypeIGD1 = "urn:schemas-upnp-org:device:InternetGatewayDevice:1"
	DeviceTypeIGD2 = "urn:schemas-upnp-org:device:InternetGatewayDevice:2"
)

// SSDPMulticastAddr is the IPv4 SSDP multicast group and port.
const SSDPMulticastAddr = "239.255.255.250:1900"

// NewSSDPSearch builds an SSDP M-SEARCH request for deviceType, with an
// Mx-second wait window. Grounded on the HTTPU M-SEARCH template every UPnP
// control point sends.
func NewSSDPSearch(deviceType string, mx int) []byte {
	req := fmt.Sprintf(
		"M-SEARCH * HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"St: %s\r\n"+
			"Man: \"ssdp:discover\"\r\n"+
			"Mx: %d\r\n"+
			"\r\n", SSDPMulticastAddr, deviceType, mx)
	return []byte(req)
}

// SSDPResponse is a parsed SSDP M-SEARCH response (HTTPU is syntactically an
// HTTP response over UDP).
type SSDPResponse struct {
	DeviceType string // from the St header
	Location   string // device description URL
	USN        string
	DeviceUUID string
}

// ParseSSDPResponse parses a raw SSDP response datagram, as delivered by the
// network gateway.
func ParseSSDPResponse(raw []byte) (*SSDPResponse, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return nil, fmt.Errorf("upnpsoap: invalid SSDP response: %w", err)
	}
	defer resp.Body.Close()

	deviceType := resp.Header.Get("St")
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("upnpsoap: SSDP response has no Location header")
	}
	usn := resp.Header.Get("USN")
	if usn == "" {
		return nil, fmt.Errorf("upnpsoap: SSDP response has no USN header")
	}
	uuid := usn
	if i := strings.Index(usn, "::"); i >= 0 {
		uuid = usn[:i]
	}
	uuid = strings.TrimPrefix(uuid, "uuid:")

	return &SSDPResponse{
		DeviceType: deviceType,
		Location:   location,
		USN:        usn,
		DeviceUUID: uuid,
	}, nil
}
