package upnpsoap

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
)

// ActionResponse is a parsed SOAP action result: the ordered body is
// flattened into a name->text map. Unknown elements are ignored rather than
// rejected (spec §4.4).
type ActionResponse struct {
	StatusCode int
	Action     string // e.g. "GetExternalIPAddressResponse"
	Fields     map[string]string
}

// Get returns a field's text, and whether it was present.
func (r *ActionResponse) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// SoapError represents a SOAP fault or a non-200 HTTP response from a UPnP
// control URL. Per spec §9's open question, both the raw SOAP fault code
// and an optional UPnP-specific numeric error code are preserved; callers
// that care about a specific UPnP error (e.g. 718 vs 725 for "conflict in
// mapping entry") must check UPnPErrorCode themselves rather than relying on
// the mapper to collapse the two.
type SoapError struct {
	StatusCode       int
	FaultCode        string
	FaultDescription string
	UPnPErrorCode    *int
}

func (e *SoapError) Error() string {
	if e.UPnPErrorCode != nil {
		return fmt.Sprintf("upnpsoap: SOAP fault (HTTP %d): %s: %s (UPnP error %d)", e.StatusCode, e.FaultCode, e.FaultDescription, *e.UPnPErrorCode)
	}
	return fmt.Sprintf("upnpsoap: SOAP fault (HTTP %d): %s: %s", e.StatusCode, e.FaultCode, e.FaultDescription)
}

type soapEnvelope struct {
	XMLName xml.Name
	Body    soapBody `xml:"Body"`
}

type soapBody struct {
	XMLName xml.Name
	Fault   *soapFault `xml:"Fault"`
	Inner   []byte     `xml:",innerxml"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
	Detail      struct {
		UPnPError struct {
			ErrorCode        int    `xml:"errorCode"`
			ErrorDescription string `xml:"errorDescription"`
		} `xml:"UPnPError"`
	} `xml:"detail"`
}

type genericField struct {
	XMLName xml.Name
	Content string `xml:",chardata"`
}

type genericAction struct {
	XMLName  xml.Name
	Children []genericField `xml:",any"`
}

// ParseHTTPResponse parses a raw HTTP response, as returned by the network
// gateway's TCP read, into either an ActionResponse (HTTP 200) or a
// *SoapError (any other status, or an HTTP-200-with-Fault body — some
// routers get this wrong and still fault on 200).
func ParseHTTPResponse(raw []byte) (*ActionResponse, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return nil, fmt.Errorf("upnpsoap: invalid HTTP response: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upnpsoap: reading HTTP response body: %w", err)
	}

	var env soapEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("upnpsoap: invalid SOAP response: %w", err)
	}

	if env.Body.Fault != nil || resp.StatusCode != http.StatusOK {
		return nil, faultFromEnvelope(resp.StatusCode, env, body)
	}

	var action genericAction
	if len(env.Body.Inner) > 0 {
		if err := xml.Unmarshal(env.Body.Inner, &action); err != nil {
			return nil, fmt.Errorf("upnpsoap: invalid SOAP action response: %w", err)
		}
	}

	fields := make(map[string]string, len(action.Children))
	for _, f := range action.Children {
		fields[f.XMLName.Local] = f.Content
	}

	return &ActionResponse{
		StatusCode: resp.StatusCode,
		Action:     action.XMLName.Local,
		Fields:     fields,
	}, nil
}

func faultFromEnvelope(status int, env soapEnvelope, body []byte) *SoapError {
	if env.Body.Fault == nil {
		// Non-2xx with no parseable Fault element: surface what we have.
		var f soapFault
		_ = xml.Unmarshal(body, &f)
		return &SoapError{StatusCode: status, FaultCode: f.FaultCode, FaultDescription: f.FaultString}
	}
	fault := env.Body.Fault
	e := &SoapError{
		StatusCode:       status,
		FaultCode:        fault.FaultCode,
		FaultDescription: fault.FaultString,
	}
	if fault.Detail.UPnPError.ErrorCode != 0 {
		code := fault.Detail.UPnPError.ErrorCode
		e.UPnPErrorCode = &code
		if fault.Detail.UPnPError.ErrorDescription != "" {
			e.FaultDescription = fault.Detail.UPnPError.ErrorDescription
		}
	}
	return e
}

// Conflict UPnP error codes for AddPortMapping/AddAnyPortMapping, per
// spec §9's open question: IGD:1 implementations report 718
// ("ConflictInMappingEntry"), IGD:2 implementations report 725
// ("OnlyPermanentLeasesSupported") or 718 depending on the router.
const (
	UPnPErrorConflictInMappingEntryIGD1 = 718
	UPnPErrorOnlyPermanentLeasesIGD2    = 725
)

// IsConflict reports whether e represents a port-already-mapped conflict
// under either the IGD:1 or IGD:2 error code convention.
func (e *SoapError) IsConflict() bool {
	if e == nil || e.UPnPErrorCode == nil {
		return false
	}
	switch *e.UPnPErrorCode {
	case UPnPErrorConflictInMappingEntryIGD1, UPnPErrorOnlyPermanentLeasesIGD2:
		return true
	default:
		return false
	}
}
