//go:build linux
// +build linux

package nftdrv

import (
	"testing"

	"github.com/google/nftables"
	"github.com/stretchr/testify/require"

	"github.com/rust-firecracker/fcnet/internal/netspec"
)

func TestGetCurrentRulesetEmpty(t *testing.T) {
	conn := &mockConn{}
	conn.On("ListTables").Return([]*nftables.Table{}, nil)

	rs, err := GetCurrentRuleset(conn, nftables.TableFamilyIPv4)
	require.NoError(t, err)
	require.Nil(t, rs.Table)
}

func TestGetCurrentRulesetFindsExistingObjects(t *testing.T) {
	conn := &mockConn{}
	table := &nftables.Table{Name: Table, Family: nftables.TableFamilyIPv4}
	postrouting := &nftables.Chain{Name: PostroutingChain, Table: table}
	filter := &nftables.Chain{Name: FilterChain, Table: table}
	other := &nftables.Chain{Name: "unrelated", Table: &nftables.Table{Name: "other"}}

	conn.On("ListTables").Return([]*nftables.Table{table}, nil)
	conn.On("ListChainsOfTableFamily", nftables.TableFamilyIPv4).
		Return([]*nftables.Chain{postrouting, filter, other}, nil)

	rs, err := GetCurrentRuleset(conn, nftables.TableFamilyIPv4)
	require.NoError(t, err)
	require.Same(t, table, rs.Table)
	require.Same(t, postrouting, rs.PostroutingChain)
	require.Same(t, filter, rs.FilterChain)
	require.Nil(t, rs.PreroutingChain)
}

func TestTableFamilyOf(t *testing.T) {
	require.Equal(t, nftables.TableFamilyIPv4, TableFamilyOf(netspec.NFFamilyIP))
	require.Equal(t, nftables.TableFamilyIPv6, TableFamilyOf(netspec.NFFamilyIP6))
	require.Equal(t, nftables.TableFamilyINet, TableFamilyOf(netspec.NFFamilyInet))
}
