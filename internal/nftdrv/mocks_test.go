//go:build linux
// +build linux

package nftdrv

import (
	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
)

// mockConn is a testify mock of Conn (mock.Mock plus explicit .On/.Return
// setups per test), scoped to the subset of operations this package uses.
type mockConn struct {
	mock.Mock
}

func (m *mockConn) ListTables() ([]*nftables.Table, error) {
	args := m.Called()
	tables, _ := args.Get(0).([]*nftables.Table)
	return tables, args.Error(1)
}

func (m *mockConn) AddTable(t *nftables.Table) *nftables.Table {
	m.Called(t)
	return t
}

func (m *mockConn) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	args := m.Called(family)
	chains, _ := args.Get(0).([]*nftables.Chain)
	return chains, args.Error(1)
}

func (m *mockConn) AddChain(c *nftables.Chain) *nftables.Chain {
	m.Called(c)
	return c
}

func (m *mockConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	args := m.Called(t, c)
	rules, _ := args.Get(0).([]*nftables.Rule)
	return rules, args.Error(1)
}

func (m *mockConn) AddRule(r *nftables.Rule) *nftables.Rule {
	m.Called(r)
	return r
}

func (m *mockConn) DelRule(r *nftables.Rule) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *mockConn) Flush() error {
	args := m.Called()
	return args.Error(0)
}
