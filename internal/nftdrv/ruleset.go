//go:build linux
// +build linux

package nftdrv

import (
	"github.com/google/nftables"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
	"github.com/rust-firecracker/fcnet/internal/netspec"
)

// TableFamilyOf maps a NetworkSpec's IP stack onto the nftables table
// family its rules live in.
func TableFamilyOf(f netspec.NFFamily) nftables.TableFamily {
	switch f {
	case netspec.NFFamilyIP:
		return nftables.TableFamilyIPv4
	case netspec.NFFamilyIP6:
		return nftables.TableFamilyIPv6
	default:
		return nftables.TableFamilyINet
	}
}

// Ruleset is a snapshot of the fcnet table and its base chains in one
// namespace, as currently seen by the kernel.
type Ruleset struct {
	Family           nftables.TableFamily
	Table            *nftables.Table
	PostroutingChain *nftables.Chain
	FilterChain      *nftables.Chain
	PreroutingChain  *nftables.Chain
}

// GetCurrentRuleset reads the fcnet table and its base chains from conn.
// A nil Table/Chain field means that object does not currently exist.
func GetCurrentRuleset(conn Conn, family nftables.TableFamily) (*Ruleset, error) {
	rs := &Ruleset{Family: family}

	tables, err := conn.ListTables()
	if err != nil {
		return nil, &fcerr.NftablesError{Op: "list_tables", Err: err}
	}
	for _, t := range tables {
		if t.Name == Table && t.Family == family {
			rs.Table = t
			break
		}
	}
	if rs.Table == nil {
		return rs, nil
	}

	chains, err := conn.ListChainsOfTableFamily(family)
	if err != nil {
		return nil, &fcerr.NftablesError{Op: "list_chains", Err: err}
	}
	for _, c := range chains {
		if c.Table == nil || c.Table.Name != Table {
			continue
		}
		switch c.Name {
		case PostroutingChain:
			rs.PostroutingChain = c
		case FilterChain:
			rs.FilterChain = c
		case PreroutingChain:
			rs.PreroutingChain = c
		}
	}
	return rs, nil
}
