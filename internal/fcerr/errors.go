// Package fcerr is the shared error taxonomy for the topology orchestrator
// and its drivers. Every wrapper type here implements Unwrap so callers can
// errors.Is/errors.As against the underlying driver error, and every
// sentinel is comparable with errors.Is directly.
package fcerr

import (
	"errors"
	"fmt"
)

// ErrForbiddenDualStackInRoute is re-exported by netspec as
// netspec.ErrForbiddenDualStackInRoute; both names hold the same sentinel
// value.
var ErrForbiddenDualStackInRoute = errors.New("fcnet: forbidden dual-stack in route")

// ErrChannelCancel indicates the cross-namespace executor's dedicated
// thread died without delivering a result.
var ErrChannelCancel = errors.New("fcnet: cross-namespace operation thread died without a result")

// ObjectKind names a kernel object the orchestrator expects to find.
type ObjectKind int

const (
	ObjectIPLink ObjectKind = iota
	ObjectNetns
	ObjectNfTable
	ObjectNfPostroutingChain
	ObjectNfFilterChain
	ObjectNfMasqueradeRule
	ObjectNfIngressForwardRule
	ObjectNfEgressForwardRule
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectIPLink:
		return "IpLink"
	case ObjectNetns:
		return "Netns"
	case ObjectNfTable:
		return "NfTable"
	case ObjectNfPostroutingChain:
		return "NfPostroutingChain"
	case ObjectNfFilterChain:
		return "NfFilterChain"
	case ObjectNfMasqueradeRule:
		return "NfMasqueradeRule"
	case ObjectNfIngressForwardRule:
		return "NfIngressForwardRule"
	case ObjectNfEgressForwardRule:
		return "NfEgressForwardRule"
	default:
		return "Unknown"
	}
}

// ObjectNotFoundError reports that a named kernel object the orchestrator
// expected to exist was not present.
type ObjectNotFoundError struct {
	Kind ObjectKind
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("fcnet: object not found: %s", e.Kind)
}

// NotFound constructs an ObjectNotFoundError for kind.
func NotFound(kind ObjectKind) error {
	return &ObjectNotFoundError{Kind: kind}
}

// IsNotFound reports whether err is an ObjectNotFoundError, optionally of a
// specific kind (pass -1 to match any kind).
func IsNotFound(err error, kind ObjectKind) bool {
	var onf *ObjectNotFoundError
	if !errors.As(err, &onf) {
		return false
	}
	return kind < 0 || onf.Kind == kind
}

// NetlinkOperationError wraps any rtnetlink failure.
type NetlinkOperationError struct {
	Op  string
	Err error
}

func (e *NetlinkOperationError) Error() string {
	return fmt.Sprintf("fcnet: netlink operation %q failed: %v", e.Op, e.Err)
}

func (e *NetlinkOperationError) Unwrap() error { return e.Err }

// NftablesError wraps any failure to read or apply an nftables batch.
type NftablesError struct {
	Op  string
	Err error
}

func (e *NftablesError) Error() string {
	return fmt.Sprintf("fcnet: nftables operation %q failed: %v", e.Op, e.Err)
}

func (e *NftablesError) Unwrap() error { return e.Err }

// NetnsError wraps a create/open/enter/remove failure on a namespace
// handle.
type NetnsError struct {
	Op  string
	Err error
}

func (e *NetnsError) Error() string {
	return fmt.Sprintf("fcnet: netns operation %q failed: %v", e.Op, e.Err)
}

func (e *NetnsError) Unwrap() error { return e.Err }

// TapDeviceError wraps a TAP device creation failure.
type TapDeviceError struct {
	Err error
}

func (e *TapDeviceError) Error() string {
	return fmt.Sprintf("fcnet: tap device creation failed: %v", e.Err)
}

func (e *TapDeviceError) Unwrap() error { return e.Err }

// IoError wraps a netlink connection setup failure.
type IoError struct {
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("fcnet: io error: %v", e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }
