// Package upnpsoap implements the UPnP-IGD SOAP-over-HTTP request and
// response message types: byte-exact HTTP/1.1 requests for the WAN
// connection, WAN PPP connection and WAN IPv6 firewall control actions
// (spec §4.4), SOAP response/fault parsing, and SSDP discovery plus device
// description tree walking (spec §4.6).
package upnpsoap

import (
	"fmt"
	"strings"
)

// Child is one ordered (name, already-encoded-value) pair inside a SOAP
// action element.
type Child struct {
	Name  string
	Value string
}

// ActionRequest holds everything needed to produce a byte-exact UPnP SOAP
// HTTP/1.1 request.
type ActionRequest struct {
	Host        string // authority, e.g. "192.168.1.1:1780"
	ControlPath string // e.g. "/upnp/control/WANIPConn1"
	ServiceType string // e.g. "urn:schemas-upnp-org:service:WANIPConnection:1"
	Action      string // e.g. "AddPortMapping"
	Children    []Child
}

func (r ActionRequest) envelopeBody() string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\r\n")
	b.WriteString("<soap:Envelope xmlns:soap=\"http://www.w3.org/2003/05/soap-envelope/\" soap:encodingStyle=\"http://www.w3.org/2003/05/soap-encoding\">\r\n")
	b.WriteString("<soap:Body>\r\n")
	fmt.Fprintf(&b, "<u:%s xmlns:u=\"%s\">\r\n", r.Action, r.ServiceType)
	for _, c := range r.Children {
		fmt.Fprintf(&b, "<%s>%s</%s>\r\n", c.Name, c.Value, c.Name)
	}
	fmt.Fprintf(&b, "</u:%s>\r\n", r.Action)
	b.WriteString("</soap:Body>\r\n")
	b.WriteString("</soap:Envelope>\r\n")
	return b.String()
}

// Dump returns the exact byte form of the HTTP/1.1 request, with a
// Content-Length header equal to the envelope body's byte length (spec §4.4,
// invariant (iv)).
func (r ActionRequest) Dump() []byte {
	body := r.envelopeBody()

	var h strings.Builder
	fmt.Fprintf(&h, "POST %s HTTP/1.1\r\n", r.ControlPath)
	fmt.Fprintf(&h, "Host: %s\r\n", r.Host)
	h.WriteString("Content-Type: text/xml\r\n")
	fmt.Fprintf(&h, "SOAPAction: %s#%s\r\n", r.ServiceType, r.Action)
	h.WriteString("Connection: Close\r\n")
	h.WriteString("Cache-Control: no-cache\r\n")
	h.WriteString("Pragma: no-cache\r\n")
	fmt.Fprintf(&h, "Content-Length: %d\r\n", len(body))
	h.WriteString("\r\n")
	h.WriteString(body)
	return []byte(h.String())
}

// BodyLength returns the byte length of the SOAP envelope body, i.e. the
// value that Dump's Content-Length header carries.
func (r ActionRequest) BodyLength() int {
	return len(r.envelopeBody())
}
