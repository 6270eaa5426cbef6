//go:build linux
// +build linux

package nftdrv

import (
	"net/netip"

	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"github.com/rust-firecracker/fcnet/internal/netspec"
)

// IPv4/IPv6 network-header offsets (RFC 791 / RFC 2460) for the address
// fields these rules match against.
const (
	ipv4SrcOffset = 12
	ipv4DstOffset = 16
	ipv6SrcOffset = 8
	ipv6DstOffset = 24
)

func ifnameBytes(name string) []byte {
	b := make([]byte, 16)
	copy(b, name)
	return b
}

func nfprotoOf(addr netip.Addr) byte {
	if addr.Is4() {
		return unix.NFPROTO_IPV4
	}
	return unix.NFPROTO_IPV6
}

func natFamilyOf(addr netip.Addr) uint32 {
	if addr.Is4() {
		return unix.NFPROTO_IPV4
	}
	return unix.NFPROTO_IPV6
}

// ifaceMatch produces a deterministic meta-key == name match.
func ifaceMatch(key expr.MetaKey, name string) []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: key, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifnameBytes(name)},
	}
}

// addrMatch produces a deterministic match of a packet's source or
// destination host address against addr, tagged with an explicit NFPROTO
// check so an `inet` table rule never matches the wrong address family.
func addrMatch(addr netip.Addr, isSrc bool) []expr.Any {
	var offset, length uint32
	if addr.Is4() {
		length = 4
		if isSrc {
			offset = ipv4SrcOffset
		} else {
			offset = ipv4DstOffset
		}
	} else {
		length = 16
		if isSrc {
			offset = ipv6SrcOffset
		} else {
			offset = ipv6DstOffset
		}
	}

	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{nfprotoOf(addr)}},
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: offset, Len: length},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: addr.AsSlice()},
	}
}

// OuterMasquerade: saddr == veth2_ip; oifname == iface_name; masquerade.
func OuterMasquerade(spec *netspec.NetworkSpec) []expr.Any {
	exprs := addrMatch(spec.Namespaced.Veth2IP.Addr(), true)
	exprs = append(exprs, ifaceMatch(expr.MetaKeyOIFNAME, spec.IfaceName)...)
	exprs = append(exprs, &expr.Masq{})
	return exprs
}

// OuterIngressForward: iifname == iface_name; oifname == veth1_name; accept.
func OuterIngressForward(spec *netspec.NetworkSpec) []expr.Any {
	exprs := ifaceMatch(expr.MetaKeyIIFNAME, spec.IfaceName)
	exprs = append(exprs, ifaceMatch(expr.MetaKeyOIFNAME, spec.Namespaced.Veth1Name)...)
	exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})
	return exprs
}

// OuterEgressForward: oifname == iface_name; iifname == veth1_name; accept.
func OuterEgressForward(spec *netspec.NetworkSpec) []expr.Any {
	exprs := ifaceMatch(expr.MetaKeyOIFNAME, spec.IfaceName)
	exprs = append(exprs, ifaceMatch(expr.MetaKeyIIFNAME, spec.Namespaced.Veth1Name)...)
	exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})
	return exprs
}

// InnerSNAT: oifname == veth2_name; saddr == guest_ip; SNAT to veth2_ip.
// When the table family is `inet`, the NAT family is tagged explicitly
// per the target address's kind; for a pure ip/ip6 table it is left zero
// since the table itself already pins the family.
func InnerSNAT(spec *netspec.NetworkSpec) []expr.Any {
	target := spec.Namespaced.Veth2IP.Addr()

	exprs := ifaceMatch(expr.MetaKeyOIFNAME, spec.Namespaced.Veth2Name)
	exprs = append(exprs, addrMatch(spec.GuestIP.Addr(), true)...)
	exprs = append(exprs, &expr.Immediate{Register: 1, Data: target.AsSlice()})

	nat := &expr.NAT{Type: expr.NATTypeSourceNAT, RegAddrMin: 1}
	if spec.NFFamily() == netspec.NFFamilyInet {
		nat.Family = natFamilyOf(target)
	}
	exprs = append(exprs, nat)
	return exprs
}

// InnerDNAT: iifname == veth2_name; daddr == forwarded_guest_ip; DNAT to
// guest_ip. Same family-tagging rule as InnerSNAT.
func InnerDNAT(spec *netspec.NetworkSpec) []expr.Any {
	target := spec.GuestIP.Addr()

	exprs := ifaceMatch(expr.MetaKeyIIFNAME, spec.Namespaced.Veth2Name)
	exprs = append(exprs, addrMatch(spec.Namespaced.ForwardedGuestIP, false)...)
	exprs = append(exprs, &expr.Immediate{Register: 1, Data: target.AsSlice()})

	nat := &expr.NAT{Type: expr.NATTypeDestNAT, RegAddrMin: 1}
	if spec.NFFamily() == netspec.NFFamilyInet {
		nat.Family = natFamilyOf(target)
	}
	exprs = append(exprs, nat)
	return exprs
}
