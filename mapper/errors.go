// Package mapper defines the protocol-agnostic port mapping surface:
// the Mapper interface implemented by the PCP, NAT-PMP and UPnP-IGD
// backends, the Mapping value type, and the error taxonomy of spec §7.
package mapper

import (
	"errors"
	"fmt"
)

// Kind classifies a mapper Error, following spec.md §7's taxonomy.
type Kind int

const (
	// InvalidArgument: caller supplied an out-of-range or null value at
	// message construction time.
	InvalidArgument Kind = iota
	// MalformedPacket: response bytes violate the expected layout.
	MalformedPacket
	// UnexpectedOpcode: response opcode does not match the request.
	UnexpectedOpcode
	// ProtocolError: PCP/NAT-PMP result code != 0, or a SOAP fault.
	ProtocolError
	// Timeout: the retry controller exhausted its budget.
	Timeout
	// NetworkFailure: underlying I/O failure from the network gateway.
	NetworkFailure
	// Unsupported: no mapper succeeded; the last error encountered is
	// wrapped as Cause.
	Unsupported
	// Cancelled: the operation's context was cancelled.
	Cancelled
	// MappingLost: a previously-held mapping can no longer be refreshed.
	MappingLost
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case MalformedPacket:
		return "MalformedPacket"
	case UnexpectedOpcode:
		return "UnexpectedOpcode"
	case ProtocolError:
		return "ProtocolError"
	case Timeout:
		return "Timeout"
	case NetworkFailure:
		return "NetworkFailure"
	case Unsupported:
		return "Unsupported"
	case Cancelled:
		return "Cancelled"
	case MappingLost:
		return "MappingLost"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned by every mapper operation. The
// Kind field lets callers (the retry controller, the mapping session)
// decide how to react without string matching.
type Error struct {
	Kind Kind
	// Code is the PCP/NAT-PMP result code or SOAP fault code, set only
	// when Kind == ProtocolError.
	Code    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Kind == ProtocolError {
		if e.Cause != nil {
			return fmt.Sprintf("mapper: %s (code %d): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
		}
		return fmt.Sprintf("mapper: %s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("mapper: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("mapper: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so errors.Is
// matches two *Error values of the same Kind regardless of message;
// callers can also compare Kind directly after an errors.As.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Invalid constructs an InvalidArgument error.
func Invalid(format string, args ...any) *Error {
	return newErr(InvalidArgument, nil, format, args...)
}

// Malformed constructs a MalformedPacket error.
func Malformed(cause error, format string, args ...any) *Error {
	return newErr(MalformedPacket, cause, format, args...)
}

// UnexpectedOp constructs an UnexpectedOpcode error.
func UnexpectedOp(format string, args ...any) *Error {
	return newErr(UnexpectedOpcode, nil, format, args...)
}

// Protocol constructs a ProtocolError carrying the PCP/NAT-PMP result code
// or SOAP fault code.
func Protocol(code int, format string, args ...any) *Error {
	e := newErr(ProtocolError, nil, format, args...)
	e.Code = code
	return e
}

// TimedOut constructs a Timeout error.
func TimedOut(format string, args ...any) *Error {
	return newErr(Timeout, nil, format, args...)
}

// NetworkFail constructs a NetworkFailure error.
func NetworkFail(cause error, format string, args ...any) *Error {
	return newErr(NetworkFailure, cause, format, args...)
}

// NotSupported constructs an Unsupported error, wrapping the last mapper
// error encountered across every attempted backend.
func NotSupported(cause error, format string, args ...any) *Error {
	return newErr(Unsupported, cause, format, args...)
}

// Cancel constructs a Cancelled error.
func Cancel(cause error) *Error {
	return newErr(Cancelled, cause, "operation cancelled")
}

// Lost constructs a MappingLost error.
func Lost(cause error, format string, args ...any) *Error {
	return newErr(MappingLost, cause, format, args...)
}

// Retryable reports whether a session-layer retry should be attempted for
// this error, per spec §7's propagation policy: only NetworkFailure,
// Timeout, and a ProtocolError carrying NETWORK_FAILURE or NO_RESOURCES
// are retried; codec errors (MalformedPacket, UnexpectedOpcode,
// InvalidArgument) are always fatal to the current exchange.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case NetworkFailure, Timeout:
		return true
	case ProtocolError:
		return e.Code == pcpResultNetworkFailure || e.Code == pcpResultNoResources
	default:
		return false
	}
}

// PCP result codes that are retryable at the session layer (spec §4.7,
// §7). Duplicated here as plain ints (rather than importing pkg/pcp) to
// keep this package's only dependency surface the standard library: the
// error taxonomy is protocol-agnostic and must not know about PCP's
// ResultCode type, which is itself only meaningful within pkg/pcp.
const (
	pcpResultNetworkFailure = 7
	pcpResultNoResources    = 8
)
