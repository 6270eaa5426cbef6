//go:build linux
// +build linux

// Package netlinkdrv executes link/address/route operations against the
// rtnetlink socket bound to whatever network namespace the calling OS
// thread currently belongs to. It never enters a namespace itself; that is
// internal/nsexec's job.
package netlinkdrv

import (
	"log/slog"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
	"github.com/rust-firecracker/fcnet/internal/logging"
	"github.com/rust-firecracker/fcnet/internal/metrics"
)

// Conn is the subset of rtnetlink operations the topology orchestrator
// needs, cut as a seam so tests can substitute an in-memory double instead
// of touching the kernel.
type Conn interface {
	GetLinkIndex(name string) (int, error)
	AddVeth(name1, name2 string) error
	SetAddr(linkIdx int, addr netip.Prefix) error
	SetLinkUp(linkIdx int) error
	MoveLinkToNetns(linkIdx int, fd int) error
	AddTap(name string) error
	AddRouteV4(dst netip.Prefix, gateway netip.Addr) error
	AddRouteV6(dst netip.Prefix, gateway netip.Addr) error
	AddDefaultRouteV4(gateway netip.Addr) error
	AddDefaultRouteV6(gateway netip.Addr) error
}

// RealConn drives the actual kernel rtnetlink socket of whatever namespace
// the calling OS thread is currently a member of. scope labels every call
// this connection makes ("outer" or "inner") for logging and metrics.
type RealConn struct {
	scope string
	log   *slog.Logger
}

// NewRealConn returns a driver bound to the current thread's namespace.
// Opening one inside a namespace-entered thread (see internal/nsexec)
// binds all its subsequent operations to that namespace.
func NewRealConn(scope string) *RealConn {
	return &RealConn{scope: scope, log: logging.ForDriver("netlink", scope)}
}

// record logs and counts one driver call, by verb and outcome, and echoes
// err back so call sites can thread it straight into their return.
func (c *RealConn) record(verb string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Get().NetlinkCallsTotal.WithLabelValues(verb, outcome).Inc()
	c.log.Debug("netlink call", "verb", verb, "outcome", outcome)
	return err
}

func (c *RealConn) GetLinkIndex(name string) (int, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return 0, c.record("get_link_index", fcerr.NotFound(fcerr.ObjectIPLink))
		}
		return 0, c.record("get_link_index", &fcerr.NetlinkOperationError{Op: "link_by_name", Err: err})
	}
	return link.Attrs().Index, c.record("get_link_index", nil)
}

func (c *RealConn) AddVeth(name1, name2 string) error {
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: name1},
		PeerName:  name2,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return c.record("add_veth", &fcerr.NetlinkOperationError{Op: "add_veth", Err: err})
	}
	return c.record("add_veth", nil)
}

func (c *RealConn) SetAddr(linkIdx int, addr netip.Prefix) error {
	link, err := linkByIndex(linkIdx)
	if err != nil {
		return c.record("set_addr", err)
	}
	nlAddr := &netlink.Addr{IPNet: prefixToIPNet(addr)}
	if err := netlink.AddrAdd(link, nlAddr); err != nil {
		return c.record("set_addr", &fcerr.NetlinkOperationError{Op: "addr_add", Err: err})
	}
	return c.record("set_addr", nil)
}

func (c *RealConn) SetLinkUp(linkIdx int) error {
	link, err := linkByIndex(linkIdx)
	if err != nil {
		return c.record("set_link_up", err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return c.record("set_link_up", &fcerr.NetlinkOperationError{Op: "link_set_up", Err: err})
	}
	return c.record("set_link_up", nil)
}

func (c *RealConn) MoveLinkToNetns(linkIdx int, fd int) error {
	link, err := linkByIndex(linkIdx)
	if err != nil {
		return c.record("move_link_to_netns", err)
	}
	if err := netlink.LinkSetNsFd(link, fd); err != nil {
		return c.record("move_link_to_netns", &fcerr.NetlinkOperationError{Op: "link_set_ns_fd", Err: err})
	}
	return c.record("move_link_to_netns", nil)
}

// AddTap creates a persistent, up TAP device. The VMM that will read and
// write its fd is a separate process started later, so the device must
// outlive this one.
func (c *RealConn) AddTap(name string) error {
	tap := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		Mode:      netlink.TUNTAP_MODE_TAP,
		// Firecracker expects a TAP backend with NO_PI and VNET_HDR;
		// single-queue. NonPersist stays false so the device survives
		// this process exiting.
		Flags: netlink.TUNTAP_NO_PI | netlink.TUNTAP_VNET_HDR | netlink.TUNTAP_ONE_QUEUE,
	}
	if err := netlink.LinkAdd(tap); err != nil {
		return c.record("add_tap", &fcerr.TapDeviceError{Err: err})
	}
	link, err := netlink.LinkByName(name)
	if err != nil {
		return c.record("add_tap", &fcerr.TapDeviceError{Err: err})
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return c.record("add_tap", &fcerr.TapDeviceError{Err: err})
	}
	return c.record("add_tap", nil)
}

func (c *RealConn) AddRouteV4(dst netip.Prefix, gateway netip.Addr) error {
	return c.record("add_route_v4", addRoute(dst, gateway))
}

func (c *RealConn) AddRouteV6(dst netip.Prefix, gateway netip.Addr) error {
	return c.record("add_route_v6", addRoute(dst, gateway))
}

func (c *RealConn) AddDefaultRouteV4(gateway netip.Addr) error {
	return c.record("add_default_route_v4", addDefaultRoute(gateway))
}

func (c *RealConn) AddDefaultRouteV6(gateway netip.Addr) error {
	return c.record("add_default_route_v6", addDefaultRoute(gateway))
}

func addRoute(dst netip.Prefix, gateway netip.Addr) error {
	route := &netlink.Route{
		Dst:   prefixToIPNet(dst),
		Gw:    gateway.AsSlice(),
		Scope: netlink.SCOPE_UNIVERSE,
	}
	if err := netlink.RouteAdd(route); err != nil {
		return &fcerr.NetlinkOperationError{Op: "route_add", Err: err}
	}
	return nil
}

func addDefaultRoute(gateway netip.Addr) error {
	route := &netlink.Route{
		Gw:    gateway.AsSlice(),
		Scope: netlink.SCOPE_UNIVERSE,
	}
	if err := netlink.RouteAdd(route); err != nil {
		return &fcerr.NetlinkOperationError{Op: "route_add_default", Err: err}
	}
	return nil
}

func linkByIndex(idx int) (netlink.Link, error) {
	link, err := netlink.LinkByIndex(idx)
	if err != nil {
		return nil, &fcerr.NetlinkOperationError{Op: "link_by_index", Err: err}
	}
	return link, nil
}

func prefixToIPNet(p netip.Prefix) *net.IPNet {
	return &net.IPNet{
		IP:   p.Addr().AsSlice(),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}
