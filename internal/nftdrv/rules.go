//go:build linux
// +build linux

package nftdrv

import (
	"github.com/google/nftables"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
	"github.com/rust-firecracker/fcnet/internal/netspec"
)

// ApplyInnerRules builds and commits the inner-namespace batch: the table,
// the postrouting chain, and the SNAT rule, plus (when the spec forwards a
// guest IP) the prerouting chain and the DNAT rule. Caller must already be
// running on the dedicated namespace-entered thread.
func ApplyInnerRules(conn Conn, spec *netspec.NetworkSpec) error {
	family := TableFamilyOf(spec.NFFamily())
	rs, err := GetCurrentRuleset(conn, family)
	if err != nil {
		return err
	}

	needsPrerouting := spec.Namespaced.HasForwarding()
	if err := EnsureInnerChains(conn, rs, needsPrerouting); err != nil {
		return err
	}

	conn.AddRule(&nftables.Rule{
		Table: rs.Table,
		Chain: rs.PostroutingChain,
		Exprs: InnerSNAT(spec),
	})
	if needsPrerouting {
		conn.AddRule(&nftables.Rule{
			Table: rs.Table,
			Chain: rs.PreroutingChain,
			Exprs: InnerDNAT(spec),
		})
	}

	if err := conn.Flush(); err != nil {
		return &fcerr.NftablesError{Op: "apply_inner", Err: err}
	}
	return nil
}

// ApplyOuterRules ensures the outer base chains and appends the three
// outer rules (masquerade, ingress-forward, egress-forward), committing
// them in a single batch.
func ApplyOuterRules(conn Conn, spec *netspec.NetworkSpec) error {
	family := TableFamilyOf(spec.NFFamily())
	rs, err := GetCurrentRuleset(conn, family)
	if err != nil {
		return err
	}

	if err := EnsureBaseChains(conn, rs, false); err != nil {
		return err
	}

	conn.AddRule(&nftables.Rule{Table: rs.Table, Chain: rs.PostroutingChain, Exprs: OuterMasquerade(spec)})
	conn.AddRule(&nftables.Rule{Table: rs.Table, Chain: rs.FilterChain, Exprs: OuterIngressForward(spec)})
	conn.AddRule(&nftables.Rule{Table: rs.Table, Chain: rs.FilterChain, Exprs: OuterEgressForward(spec)})

	if err := conn.Flush(); err != nil {
		return &fcerr.NftablesError{Op: "apply_outer", Err: err}
	}
	return nil
}

// FindOuterRules locates the three outer rules in rs by rebuilding their
// expected expression bodies and matching them against the live ruleset.
// It returns the first missing rule's kind as an ObjectNotFoundError
// before returning anything, matching Delete's verify-before-mutate
// requirement; on success the three rules come back in
// (masquerade, ingress-forward, egress-forward) order.
func FindOuterRules(conn Conn, rs *Ruleset, spec *netspec.NetworkSpec) (masq, ingress, egress *nftables.Rule, err error) {
	if rs.Table == nil {
		return nil, nil, nil, fcerr.NotFound(fcerr.ObjectNfTable)
	}
	if rs.PostroutingChain == nil {
		return nil, nil, nil, fcerr.NotFound(fcerr.ObjectNfPostroutingChain)
	}
	if rs.FilterChain == nil {
		return nil, nil, nil, fcerr.NotFound(fcerr.ObjectNfFilterChain)
	}

	masq, err = FindRule(conn, rs.Table, rs.PostroutingChain, OuterMasquerade(spec))
	if err != nil {
		return nil, nil, nil, &fcerr.NftablesError{Op: "get_rules", Err: err}
	}
	if masq == nil {
		return nil, nil, nil, fcerr.NotFound(fcerr.ObjectNfMasqueradeRule)
	}

	ingress, err = FindRule(conn, rs.Table, rs.FilterChain, OuterIngressForward(spec))
	if err != nil {
		return nil, nil, nil, &fcerr.NftablesError{Op: "get_rules", Err: err}
	}
	if ingress == nil {
		return nil, nil, nil, fcerr.NotFound(fcerr.ObjectNfIngressForwardRule)
	}

	egress, err = FindRule(conn, rs.Table, rs.FilterChain, OuterEgressForward(spec))
	if err != nil {
		return nil, nil, nil, &fcerr.NftablesError{Op: "get_rules", Err: err}
	}
	if egress == nil {
		return nil, nil, nil, fcerr.NotFound(fcerr.ObjectNfEgressForwardRule)
	}

	return masq, ingress, egress, nil
}

// DeleteOuterRules verifies the three outer rules exist (failing with
// ObjectNotFound before mutating anything if not) then deletes exactly
// those three by their captured kernel handles. The base table and chains
// are left in place.
func DeleteOuterRules(conn Conn, spec *netspec.NetworkSpec) error {
	family := TableFamilyOf(spec.NFFamily())
	rs, err := GetCurrentRuleset(conn, family)
	if err != nil {
		return err
	}

	masq, ingress, egress, err := FindOuterRules(conn, rs, spec)
	if err != nil {
		return err
	}

	for _, r := range []*nftables.Rule{masq, ingress, egress} {
		if err := conn.DelRule(r); err != nil {
			return &fcerr.NftablesError{Op: "del_rule", Err: err}
		}
	}

	if err := conn.Flush(); err != nil {
		return &fcerr.NftablesError{Op: "apply_delete", Err: err}
	}
	return nil
}

// CheckOuterRules verifies the base chains and the three outer rules exist
// without mutating anything, surfacing the first missing object as
// ObjectNotFoundError.
func CheckOuterRules(conn Conn, spec *netspec.NetworkSpec) error {
	family := TableFamilyOf(spec.NFFamily())
	rs, err := GetCurrentRuleset(conn, family)
	if err != nil {
		return err
	}
	if err := CheckBaseChains(rs); err != nil {
		return err
	}
	_, _, _, err = FindOuterRules(conn, rs, spec)
	return err
}
