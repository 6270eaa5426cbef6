//go:build linux
// +build linux

package nftdrv

import (
	"github.com/google/nftables"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
)

var acceptPolicy = nftables.ChainPolicyAccept

// EnsureBaseChains appends whatever of the table, postrouting NAT chain,
// filter forward chain, and (when needsPrerouting) the prerouting NAT
// chain are missing from rs. It mutates conn's pending batch and rs in
// place; callers must still call conn.Flush to commit. Calling it twice in
// a row with an up-to-date rs is a no-op: base-chain setup is idempotent.
func EnsureBaseChains(conn Conn, rs *Ruleset, needsPrerouting bool) error {
	if rs.Table == nil {
		rs.Table = conn.AddTable(&nftables.Table{Name: Table, Family: rs.Family})
	}

	if rs.PostroutingChain == nil {
		rs.PostroutingChain = conn.AddChain(&nftables.Chain{
			Name:     PostroutingChain,
			Table:    rs.Table,
			Type:     nftables.ChainTypeNAT,
			Hooknum:  nftables.ChainHookPostrouting,
			Priority: nftables.ChainPriorityNATSource,
			Policy:   &acceptPolicy,
		})
	}

	if rs.FilterChain == nil {
		rs.FilterChain = conn.AddChain(&nftables.Chain{
			Name:     FilterChain,
			Table:    rs.Table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookForward,
			Priority: nftables.ChainPriorityFilter,
			Policy:   &acceptPolicy,
		})
	}

	if needsPrerouting && rs.PreroutingChain == nil {
		rs.PreroutingChain = conn.AddChain(&nftables.Chain{
			Name:     PreroutingChain,
			Table:    rs.Table,
			Type:     nftables.ChainTypeNAT,
			Hooknum:  nftables.ChainHookPrerouting,
			Priority: nftables.ChainPriorityNATDest,
			Policy:   &acceptPolicy,
		})
	}

	return nil
}

// EnsureInnerChains appends whatever of the table, postrouting NAT chain,
// and (when needsPrerouting) the prerouting NAT chain are missing from rs.
// Unlike EnsureBaseChains, the inner side never needs the filter-forward
// chain: it has nothing forwarding through it, only the SNAT/DNAT
// postrouting/prerouting path.
func EnsureInnerChains(conn Conn, rs *Ruleset, needsPrerouting bool) error {
	if rs.Table == nil {
		rs.Table = conn.AddTable(&nftables.Table{Name: Table, Family: rs.Family})
	}

	if rs.PostroutingChain == nil {
		rs.PostroutingChain = conn.AddChain(&nftables.Chain{
			Name:     PostroutingChain,
			Table:    rs.Table,
			Type:     nftables.ChainTypeNAT,
			Hooknum:  nftables.ChainHookPostrouting,
			Priority: nftables.ChainPriorityNATSource,
			Policy:   &acceptPolicy,
		})
	}

	if needsPrerouting && rs.PreroutingChain == nil {
		rs.PreroutingChain = conn.AddChain(&nftables.Chain{
			Name:     PreroutingChain,
			Table:    rs.Table,
			Type:     nftables.ChainTypeNAT,
			Hooknum:  nftables.ChainHookPrerouting,
			Priority: nftables.ChainPriorityNATDest,
			Policy:   &acceptPolicy,
		})
	}

	return nil
}

// CheckBaseChains verifies the table and the two always-required base
// chains are present, returning the first missing one as
// ObjectNotFoundError. Prerouting is intentionally not checked here: the
// read-only Check path only ever verifies the outer rules it itself
// rebuilds, regardless of whether a given topology enabled forwarding.
func CheckBaseChains(rs *Ruleset) error {
	if rs.Table == nil {
		return fcerr.NotFound(fcerr.ObjectNfTable)
	}
	if rs.PostroutingChain == nil {
		return fcerr.NotFound(fcerr.ObjectNfPostroutingChain)
	}
	if rs.FilterChain == nil {
		return fcerr.NotFound(fcerr.ObjectNfFilterChain)
	}
	return nil
}
