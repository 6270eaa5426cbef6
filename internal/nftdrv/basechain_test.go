//go:build linux
// +build linux

package nftdrv

import (
	"testing"

	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
)

func TestEnsureBaseChainsAddsMissingObjects(t *testing.T) {
	conn := &mockConn{}
	rs := &Ruleset{Family: nftables.TableFamilyIPv4}

	conn.On("AddTable", mock.Anything).Return()
	conn.On("AddChain", mock.Anything).Return()

	require.NoError(t, EnsureBaseChains(conn, rs, false))
	require.NotNil(t, rs.Table)
	require.NotNil(t, rs.PostroutingChain)
	require.NotNil(t, rs.FilterChain)
	require.Nil(t, rs.PreroutingChain)
}

func TestEnsureBaseChainsIsIdempotent(t *testing.T) {
	conn := &mockConn{}
	table := &nftables.Table{Name: Table, Family: nftables.TableFamilyIPv4}
	rs := &Ruleset{
		Family:           nftables.TableFamilyIPv4,
		Table:            table,
		PostroutingChain: &nftables.Chain{Name: PostroutingChain, Table: table},
		FilterChain:      &nftables.Chain{Name: FilterChain, Table: table},
	}

	// No AddTable/AddChain expectations registered: if EnsureBaseChains
	// called any of them, the mock would panic on an unexpected call.
	require.NoError(t, EnsureBaseChains(conn, rs, false))
}

func TestEnsureBaseChainsAddsPreroutingWhenForwarding(t *testing.T) {
	conn := &mockConn{}
	table := &nftables.Table{Name: Table, Family: nftables.TableFamilyIPv4}
	rs := &Ruleset{
		Family:           nftables.TableFamilyIPv4,
		Table:            table,
		PostroutingChain: &nftables.Chain{Name: PostroutingChain, Table: table},
		FilterChain:      &nftables.Chain{Name: FilterChain, Table: table},
	}

	conn.On("AddChain", mock.Anything).Return()

	require.NoError(t, EnsureBaseChains(conn, rs, true))
	require.NotNil(t, rs.PreroutingChain)
}

func TestCheckBaseChainsReportsFirstMissing(t *testing.T) {
	rs := &Ruleset{Family: nftables.TableFamilyIPv4}
	err := CheckBaseChains(rs)
	require.True(t, fcerr.IsNotFound(err, fcerr.ObjectNfTable))

	rs.Table = &nftables.Table{Name: Table}
	err = CheckBaseChains(rs)
	require.True(t, fcerr.IsNotFound(err, fcerr.ObjectNfPostroutingChain))

	rs.PostroutingChain = &nftables.Chain{Name: PostroutingChain}
	err = CheckBaseChains(rs)
	require.True(t, fcerr.IsNotFound(err, fcerr.ObjectNfFilterChain))

	rs.FilterChain = &nftables.Chain{Name: FilterChain}
	require.NoError(t, CheckBaseChains(rs))
}
