//go:build linux
// +build linux

package nftdrv

import (
	"log/slog"

	"github.com/google/nftables"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
	"github.com/rust-firecracker/fcnet/internal/logging"
	"github.com/rust-firecracker/fcnet/internal/metrics"
)

// Conn abstracts the subset of *nftables.Conn operations the topology
// orchestrator needs, cutting a seam around the real library so tests can
// substitute an in-memory double.
type Conn interface {
	ListTables() ([]*nftables.Table, error)
	AddTable(t *nftables.Table) *nftables.Table

	ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error)
	AddChain(c *nftables.Chain) *nftables.Chain

	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)
	AddRule(r *nftables.Rule) *nftables.Rule
	DelRule(r *nftables.Rule) error

	Flush() error
}

// RealConn wraps the actual *nftables.Conn. scope labels every call this
// connection makes ("outer" or "inner") for logging and metrics.
type RealConn struct {
	conn  *nftables.Conn
	scope string
	log   *slog.Logger
}

// NewRealConn opens a connection to the kernel nftables family. The caller
// is responsible for having entered the correct namespace (for the inner
// side) before calling this, since the socket binds to the namespace of the
// calling thread at open time.
func NewRealConn(scope string) (*RealConn, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, &fcerr.IoError{Err: err}
	}
	return &RealConn{conn: conn, scope: scope, log: logging.ForDriver("nftables", scope)}, nil
}

// record logs and counts one driver call, by verb and outcome, and echoes
// err back so call sites can thread it straight into their return.
func (r *RealConn) record(verb string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Get().NftablesCallsTotal.WithLabelValues(verb, outcome).Inc()
	r.log.Debug("nftables call", "verb", verb, "outcome", outcome)
	return err
}

func (r *RealConn) ListTables() ([]*nftables.Table, error) {
	tables, err := r.conn.ListTables()
	return tables, r.record("list_tables", err)
}

func (r *RealConn) AddTable(t *nftables.Table) *nftables.Table {
	tbl := r.conn.AddTable(t)
	r.record("add_table", nil)
	return tbl
}

func (r *RealConn) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	chains, err := r.conn.ListChainsOfTableFamily(family)
	return chains, r.record("list_chains", err)
}

func (r *RealConn) AddChain(c *nftables.Chain) *nftables.Chain {
	chain := r.conn.AddChain(c)
	r.record("add_chain", nil)
	return chain
}

func (r *RealConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	rules, err := r.conn.GetRules(t, c)
	return rules, r.record("get_rules", err)
}

func (r *RealConn) AddRule(rule *nftables.Rule) *nftables.Rule {
	added := r.conn.AddRule(rule)
	r.record("add_rule", nil)
	return added
}

func (r *RealConn) DelRule(rule *nftables.Rule) error {
	return r.record("del_rule", r.conn.DelRule(rule))
}

// Flush is the atomic commit point: every queued add/delete either lands in
// the kernel together here or not at all, so this is where an "apply
// failure" the metrics surface counts actually occurs.
func (r *RealConn) Flush() error {
	return r.record("flush", r.conn.Flush())
}
