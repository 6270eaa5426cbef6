// Package netspec defines the declarative description of a namespaced
// network topology and validates it before any kernel state is touched.
package netspec

import (
	"fmt"
	"net/netip"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
)

// IPStack selects the nftables table family a topology's packet-filter
// rules are built in.
type IPStack int

const (
	IPStackV4 IPStack = iota
	IPStackV6
	IPStackDual
)

func (s IPStack) String() string {
	switch s {
	case IPStackV4:
		return "v4"
	case IPStackV6:
		return "v6"
	case IPStackDual:
		return "dual"
	default:
		return "unknown"
	}
}

// NFFamily is the nftables table family a rule or table belongs to.
type NFFamily string

const (
	NFFamilyIP   NFFamily = "ip"
	NFFamilyIP6  NFFamily = "ip6"
	NFFamilyInet NFFamily = "inet"
)

// NFFamily returns the nftables table family for the stack.
func (s IPStack) NFFamily() NFFamily {
	switch s {
	case IPStackV4:
		return NFFamilyIP
	case IPStackV6:
		return NFFamilyIP6
	default:
		return NFFamilyInet
	}
}

// ErrForbiddenDualStackInRoute is returned when forwarded_guest_ip's address
// family does not match the veth pair's family. Dual-stack forwarded routes
// are rejected rather than silently picking one family.
var ErrForbiddenDualStackInRoute = fcerr.ErrForbiddenDualStackInRoute

// NamespacedSpec is the inner-namespace portion of a NetworkSpec.
type NamespacedSpec struct {
	NetnsName string
	Veth1Name string
	Veth2Name string
	Veth1IP   netip.Prefix
	Veth2IP   netip.Prefix

	// ForwardedGuestIP is the outer-visible address for inbound reachability
	// to the guest. An invalid (zero) Addr means "not set".
	ForwardedGuestIP netip.Addr
}

// HasForwarding reports whether this spec wants an inbound-forwarding path.
func (n NamespacedSpec) HasForwarding() bool {
	return n.ForwardedGuestIP.IsValid()
}

// NetworkSpec is the immutable input describing one microVM's desired
// network topology. It is produced by a caller (flags, an HCL file, ...)
// and never mutated by the orchestrator.
type NetworkSpec struct {
	IPStack        IPStack
	IfaceName      string
	TapName        string
	TapIP          netip.Prefix
	GuestIP        netip.Prefix
	NFTProgramPath string // optional; empty means driver default

	Namespaced NamespacedSpec
}

// NFFamily returns the nftables family this spec's rules are built in.
func (s *NetworkSpec) NFFamily() NFFamily {
	return s.IPStack.NFFamily()
}

// Validate checks the invariants from the data model: the veth pair shares
// an address family, a forwarded guest IP (if set) matches that family, and
// guest_ip/tap_ip share a family. It does not touch the kernel.
func (s *NetworkSpec) Validate() error {
	if s.IfaceName == "" {
		return fmt.Errorf("fcnet: iface_name is required")
	}
	if s.Namespaced.NetnsName == "" {
		return fmt.Errorf("fcnet: namespaced.netns_name is required")
	}
	if s.Namespaced.Veth1Name == "" || s.Namespaced.Veth2Name == "" {
		return fmt.Errorf("fcnet: namespaced.veth1_name and veth2_name are required")
	}

	v1, v2 := s.Namespaced.Veth1IP, s.Namespaced.Veth2IP
	if v1.Addr().Is4() != v2.Addr().Is4() {
		return fmt.Errorf("fcnet: veth1_ip and veth2_ip must share an address family")
	}

	if s.Namespaced.HasForwarding() {
		if s.Namespaced.ForwardedGuestIP.Is4() != v2.Addr().Is4() {
			return ErrForbiddenDualStackInRoute
		}
	}

	if s.GuestIP.Addr().Is4() != s.TapIP.Addr().Is4() {
		return fmt.Errorf("fcnet: guest_ip and tap_ip must share an address family")
	}

	return nil
}
