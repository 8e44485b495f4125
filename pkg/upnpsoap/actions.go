package upnpsoap

import (
	"fmt"
	"net"

	"github.com/HD-CIPL/portmapper/pkg/addr"
)

// NewAddPortMappingRequest builds an AddPortMapping request for the WAN
// connection services (WANIPConnection:1/2, WANPPPConnection:1). Child
// order is fixed per spec §4.4: NewRemoteHost, NewExternalPort, NewProtocol,
// NewInternalPort, NewInternalClient, NewEnabled,
// NewPortMappingDescription, NewLeaseDuration.
func NewAddPortMappingRequest(host, controlPath, serviceType string, remoteHost net.IP, externalPort uint16, protocol addr.PortType, internalPort uint16, internalClient net.IP, enabled bool, description string, leaseDuration uint32) (ActionRequest, error) {
	if internalPort == 0 {
		return ActionRequest{}, fmt.Errorf("upnpsoap: internal port must be in [1,65535], got 0")
	}
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "AddPortMapping",
		Children: []Child{
			{"NewRemoteHost", formatIPv4(remoteHost)},
			{"NewExternalPort", fmt.Sprintf("%d", externalPort)},
			{"NewProtocol", formatPortMappingProtocol(protocol)},
			{"NewInternalPort", fmt.Sprintf("%d", internalPort)},
			{"NewInternalClient", formatIPv4(internalClient)},
			{"NewEnabled", formatBool(enabled)},
			{"NewPortMappingDescription", escapeXMLText(description)},
			{"NewLeaseDuration", fmt.Sprintf("%d", leaseDuration)},
		},
	}, nil
}

// NewDeletePortMappingRequest builds a DeletePortMapping request. Child
// order: NewRemoteHost, NewExternalPort, NewProtocol.
func NewDeletePortMappingRequest(host, controlPath, serviceType string, remoteHost net.IP, externalPort uint16, protocol addr.PortType) ActionRequest {
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "DeletePortMapping",
		Children: []Child{
			{"NewRemoteHost", formatIPv4(remoteHost)},
			{"NewExternalPort", fmt.Sprintf("%d", externalPort)},
			{"NewProtocol", formatPortMappingProtocol(protocol)},
		},
	}
}

// NewGetExternalIPAddressRequest builds a GetExternalIPAddress request,
// which carries no children.
func NewGetExternalIPAddressRequest(host, controlPath, serviceType string) ActionRequest {
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "GetExternalIPAddress",
	}
}

// NewAddAnyPortMappingRequest builds an IGD:2 AddAnyPortMapping request,
// used as a fallback when AddPortMapping reports a port conflict. Child
// order and names are those of AddPortMapping, with NewExternalPort
// carrying the suggested port; the port the gateway grants comes back in
// the response's NewReservedPort.
func NewAddAnyPortMappingRequest(host, controlPath, serviceType string, remoteHost net.IP, suggestedExternalPort uint16, protocol addr.PortType, internalPort uint16, internalClient net.IP, enabled bool, description string, leaseDuration uint32) (ActionRequest, error) {
	if internalPort == 0 {
		return ActionRequest{}, fmt.Errorf("upnpsoap: internal port must be in [1,65535], got 0")
	}
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "AddAnyPortMapping",
		Children: []Child{
			{"NewRemoteHost", formatIPv4(remoteHost)},
			{"NewExternalPort", fmt.Sprintf("%d", suggestedExternalPort)},
			{"NewProtocol", formatPortMappingProtocol(protocol)},
			{"NewInternalPort", fmt.Sprintf("%d", internalPort)},
			{"NewInternalClient", formatIPv4(internalClient)},
			{"NewEnabled", formatBool(enabled)},
			{"NewPortMappingDescription", escapeXMLText(description)},
			{"NewLeaseDuration", fmt.Sprintf("%d", leaseDuration)},
		},
	}, nil
}

// NewGetSpecificPortMappingEntryRequest builds a
// GetSpecificPortMappingEntry request, used to confirm a mapping actually
// landed after AddPortMapping/AddAnyPortMapping reports success.
func NewGetSpecificPortMappingEntryRequest(host, controlPath, serviceType string, remoteHost net.IP, externalPort uint16, protocol addr.PortType) ActionRequest {
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "GetSpecificPortMappingEntry",
		Children: []Child{
			{"NewRemoteHost", formatIPv4(remoteHost)},
			{"NewExternalPort", fmt.Sprintf("%d", externalPort)},
			{"NewProtocol", formatPortMappingProtocol(protocol)},
		},
	}
}

// NewAddPinholeRequest builds an AddPinhole request for the WAN IPv6
// firewall control service. Child order: RemoteHost, RemotePort,
// InternalClient, InternalPort, Protocol, LeaseTime.
func NewAddPinholeRequest(host, controlPath, serviceType string, remoteHost net.IP, remotePort uint16, internalClient net.IP, internalPort uint16, protocol addr.PortType, leaseTime uint32) ActionRequest {
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "AddPinhole",
		Children: []Child{
			{"RemoteHost", formatPinholeAddress(remoteHost)},
			{"RemotePort", fmt.Sprintf("%d", remotePort)},
			{"InternalClient", formatPinholeAddress(internalClient)},
			{"InternalPort", fmt.Sprintf("%d", internalPort)},
			{"Protocol", formatPinholeProtocol(protocol)},
			{"LeaseTime", fmt.Sprintf("%d", leaseTime)},
		},
	}
}

// NewUpdatePinholeRequest builds an UpdatePinhole request (IGD:2), used to
// refresh a pinhole's lease without a new UniqueID. Child order: UniqueID,
// NewLeaseTime.
func NewUpdatePinholeRequest(host, controlPath, serviceType, uniqueID string, newLeaseTime uint32) ActionRequest {
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "UpdatePinhole",
		Children: []Child{
			{"UniqueID", uniqueID},
			{"NewLeaseTime", fmt.Sprintf("%d", newLeaseTime)},
		},
	}
}

// NewDeletePinholeRequest builds a DeletePinhole request. Child order:
// UniqueID.
func NewDeletePinholeRequest(host, controlPath, serviceType, uniqueID string) ActionRequest {
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "DeletePinhole",
		Children: []Child{
			{"UniqueID", uniqueID},
		},
	}
}

// NewGetOutboundPinholeTimeoutRequest builds a GetOutboundPinholeTimeout
// request. Child order: RemoteHost, RemotePort, InternalClient,
// InternalPort, Protocol.
func NewGetOutboundPinholeTimeoutRequest(host, controlPath, serviceType string, remoteHost net.IP, remotePort uint16, internalClient net.IP, internalPort uint16, protocol addr.PortType) ActionRequest {
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "GetOutboundPinholeTimeout",
		Children: []Child{
			{"RemoteHost", formatPinholeAddress(remoteHost)},
			{"RemotePort", fmt.Sprintf("%d", remotePort)},
			{"InternalClient", formatPinholeAddress(internalClient)},
			{"InternalPort", fmt.Sprintf("%d", internalPort)},
			{"Protocol", formatPinholeProtocol(protocol)},
		},
	}
}

// NewGetFirewallStatusRequest builds a GetFirewallStatus request, which
// carries no children.
func NewGetFirewallStatusRequest(host, controlPath, serviceType string) ActionRequest {
	return ActionRequest{
		Host:        host,
		ControlPath: controlPath,
		ServiceType: serviceType,
		Action:      "GetFirewallStatus",
	}
}
