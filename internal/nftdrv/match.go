//go:build linux
// +build linux

package nftdrv

import (
	"reflect"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
)

// exprsEqual compares two rule expression lists by value. It is the
// identification mechanism Delete and Check rely on: the kernel only hands
// back a rule's handle once it already exists, so the only way to find
// "the masquerade rule" again is to rebuild its expected body and match it
// structurally against what GetRules returns.
func exprsEqual(a, b []expr.Any) bool {
	return reflect.DeepEqual(a, b)
}

// FindRule returns the rule in chain whose expression body is value-equal
// to want, or nil if none matches.
func FindRule(conn Conn, table *nftables.Table, chain *nftables.Chain, want []expr.Any) (*nftables.Rule, error) {
	rules, err := conn.GetRules(table, chain)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if exprsEqual(r.Exprs, want) {
			return r, nil
		}
	}
	return nil, nil
}
