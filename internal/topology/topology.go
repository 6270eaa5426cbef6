//go:build linux
// +build linux

// Package topology sequences the netlink, nftables, and namespace drivers
// into the three user-visible operations — Add, Check, Delete — with
// ordered, no-rollback failure semantics: a step's error aborts the
// operation immediately and leaves whatever prior steps already did in
// place for a later Delete to reconcile.
package topology

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/rust-firecracker/fcnet/internal/logging"
	"github.com/rust-firecracker/fcnet/internal/netlinkdrv"
	"github.com/rust-firecracker/fcnet/internal/netns"
	"github.com/rust-firecracker/fcnet/internal/netspec"
	"github.com/rust-firecracker/fcnet/internal/nftdrv"
	"github.com/rust-firecracker/fcnet/internal/nsexec"
)

// Namespace scopes passed to the driver factories, so logs and metrics can
// tell outer-namespace calls apart from inner-namespace ones.
const (
	scopeOuter = "outer"
	scopeInner = "inner"
)

// Operation names the three entry points a caller (the CLI adapter) may
// invoke against a NetworkSpec.
type Operation int

const (
	OpAdd Operation = iota
	OpCheck
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpCheck:
		return "check"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Orchestrator composes the injected drivers. Its factory functions are
// the seam tests substitute to run Add/Check/Delete against in-memory
// doubles instead of the kernel.
type Orchestrator struct {
	Netns      netns.Provider
	NewNetlink func(scope string) netlinkdrv.Conn
	NewNft     func(scope string) (nftdrv.Conn, error)

	// Exec runs fn on a dedicated, namespace-entered OS thread. Defaults
	// to nsexec.Run; overridable so unit tests can run the "inner" step
	// inline against a fake namespace.
	Exec func(provider netns.Provider, h netns.Handle, fn func() error) error
}

// New returns an Orchestrator wired to the real kernel drivers.
func New() *Orchestrator {
	return &Orchestrator{
		Netns: netns.RealProvider{},
		NewNetlink: func(scope string) netlinkdrv.Conn {
			return netlinkdrv.NewRealConn(scope)
		},
		NewNft: func(scope string) (nftdrv.Conn, error) {
			return nftdrv.NewRealConn(scope)
		},
		Exec: nsexec.Run,
	}
}

// Run dispatches op against spec. It is the single entry point the CLI
// adapter calls.
func (o *Orchestrator) Run(op Operation, spec *netspec.NetworkSpec) error {
	logging.ForOperation(op.String(), spec.Namespaced.NetnsName).Debug("dispatching operation")
	switch op {
	case OpAdd:
		return o.Add(spec)
	case OpCheck:
		return o.Check(spec)
	case OpDelete:
		return o.Delete(spec)
	default:
		return fmt.Errorf("fcnet: unknown operation %d", op)
	}
}

// Add performs the five-step provisioning sequence: outer veth pair,
// namespace creation and the inner interfaces moved/brought up inside it,
// inner nftables rules, outer nftables rules, and (if configured) the
// outer forward route. Any step's failure aborts immediately with the
// underlying error; there is no automatic rollback. A caller that cancels
// a partial Add must run Delete to reconcile.
//
// The operation's outcome and wall-clock duration are written as the
// terminal log line (logging.Outcome).
func (o *Orchestrator) Add(spec *netspec.NetworkSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	start := time.Now()
	err := o.runAdd(spec)
	logging.Outcome(OpAdd.String(), spec.Namespaced.NetnsName, time.Since(start), err)
	return err
}

func (o *Orchestrator) runAdd(spec *netspec.NetworkSpec) error {
	ns := &spec.Namespaced
	log := logging.ForOperation(OpAdd.String(), ns.NetnsName)
	log.Info("provisioning topology", "veth1", ns.Veth1Name, "veth2", ns.Veth2Name, "tap", spec.TapName)

	// Step 1: outer interface setup.
	outerNl := o.NewNetlink(scopeOuter)
	if err := outerNl.AddVeth(ns.Veth1Name, ns.Veth2Name); err != nil {
		return err
	}

	veth1Idx, err := outerNl.GetLinkIndex(ns.Veth1Name)
	if err != nil {
		return err
	}
	if err := outerNl.SetAddr(veth1Idx, ns.Veth1IP); err != nil {
		return err
	}
	if err := outerNl.SetLinkUp(veth1Idx); err != nil {
		return err
	}

	veth2Idx, err := outerNl.GetLinkIndex(ns.Veth2Name)
	if err != nil {
		return err
	}

	nsHandle, err := o.Netns.CreateOrOpen(ns.NetnsName)
	if err != nil {
		return err
	}
	defer nsHandle.Close()

	if err := outerNl.MoveLinkToNetns(veth2Idx, nsHandle.FD()); err != nil {
		return err
	}

	// Steps 2-3: inner interface and nftables setup, co-located on the
	// same dedicated thread so the nftables step never observes
	// interfaces the prior step has not yet brought up.
	if err := o.Exec(o.Netns, nsHandle, func() error {
		return o.addInner(spec)
	}); err != nil {
		return err
	}

	// Step 4: outer nftables.
	outerNft, err := o.NewNft(scopeOuter)
	if err != nil {
		return err
	}
	if err := nftdrv.ApplyOuterRules(outerNft, spec); err != nil {
		return err
	}

	// Step 5: outer forward route.
	if ns.HasForwarding() {
		if err := o.addForwardRoute(outerNl, spec); err != nil {
			return err
		}
	}
	log.Info("topology provisioned")
	return nil
}

func (o *Orchestrator) addInner(spec *netspec.NetworkSpec) error {
	ns := &spec.Namespaced
	nl := o.NewNetlink(scopeInner)

	if err := nl.AddTap(spec.TapName); err != nil {
		return err
	}

	veth2Idx, err := nl.GetLinkIndex(ns.Veth2Name)
	if err != nil {
		return err
	}
	if err := nl.SetAddr(veth2Idx, ns.Veth2IP); err != nil {
		return err
	}
	if err := nl.SetLinkUp(veth2Idx); err != nil {
		return err
	}

	gw := ns.Veth1IP.Addr()
	if gw.Is4() {
		if err := nl.AddDefaultRouteV4(gw); err != nil {
			return err
		}
	} else {
		if err := nl.AddDefaultRouteV6(gw); err != nil {
			return err
		}
	}

	tapIdx, err := nl.GetLinkIndex(spec.TapName)
	if err != nil {
		return err
	}
	if err := nl.SetAddr(tapIdx, spec.TapIP); err != nil {
		return err
	}
	if err := nl.SetLinkUp(tapIdx); err != nil {
		return err
	}

	innerNft, err := o.NewNft(scopeInner)
	if err != nil {
		return err
	}
	return nftdrv.ApplyInnerRules(innerNft, spec)
}

func (o *Orchestrator) addForwardRoute(outerNl netlinkdrv.Conn, spec *netspec.NetworkSpec) error {
	ns := &spec.Namespaced
	fw := ns.ForwardedGuestIP
	gw := ns.Veth2IP.Addr()

	if fw.Is4() != gw.Is4() {
		return netspec.ErrForbiddenDualStackInRoute
	}

	bits := 32
	if !fw.Is4() {
		bits = 128
	}
	dst := netip.PrefixFrom(fw, bits)

	if fw.Is4() {
		return outerNl.AddRouteV4(dst, gw)
	}
	return outerNl.AddRouteV6(dst, gw)
}

// Check performs read-only verification: namespace presence and the
// three outer rules by expression equality. It never mutates kernel
// state.
func (o *Orchestrator) Check(spec *netspec.NetworkSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	start := time.Now()
	err := o.runCheck(spec)
	logging.Outcome(OpCheck.String(), spec.Namespaced.NetnsName, time.Since(start), err)
	return err
}

func (o *Orchestrator) runCheck(spec *netspec.NetworkSpec) error {
	h, err := o.Netns.Open(spec.Namespaced.NetnsName)
	if err != nil {
		logging.ForOperation(OpCheck.String(), spec.Namespaced.NetnsName).Debug("namespace not present")
		return err
	}
	h.Close()

	nft, err := o.NewNft(scopeOuter)
	if err != nil {
		return err
	}
	return nftdrv.CheckOuterRules(nft, spec)
}

// Delete removes the namespace first, which implicitly tears down the
// inner veth end, the inner nftables state, and the outer forward route;
// only the three outer rules then need explicit deletion, located by
// expression equality and deleted by their captured kernel handles. The
// base table and chains are intentionally left in place.
func (o *Orchestrator) Delete(spec *netspec.NetworkSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	start := time.Now()
	err := o.runDelete(spec)
	logging.Outcome(OpDelete.String(), spec.Namespaced.NetnsName, time.Since(start), err)
	return err
}

func (o *Orchestrator) runDelete(spec *netspec.NetworkSpec) error {
	logging.ForOperation(OpDelete.String(), spec.Namespaced.NetnsName).Info("tearing down topology")

	if err := o.Netns.Remove(spec.Namespaced.NetnsName); err != nil {
		return err
	}

	nft, err := o.NewNft(scopeOuter)
	if err != nil {
		return err
	}
	return nftdrv.DeleteOuterRules(nft, spec)
}
