//go:build linux
// +build linux

package topology

import (
	"net/netip"
	"sync"

	"github.com/google/nftables"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
	"github.com/rust-firecracker/fcnet/internal/netns"
)

// fakeNetlink is an in-memory stand-in for netlinkdrv.Conn that records
// calls and lets tests simulate a link already existing (for the "double
// add" scenario, property/scenario 6).
type fakeNetlink struct {
	mu sync.Mutex

	links      map[string]int
	nextIdx    int
	vethExists bool

	addrs  map[int]netip.Prefix
	up     map[int]bool
	moved  map[int]int // idx -> fd
	routes []netip.Prefix
	taps   []string
}

func newFakeNetlink() *fakeNetlink {
	return &fakeNetlink{
		links: map[string]int{},
		addrs: map[int]netip.Prefix{},
		up:    map[int]bool{},
		moved: map[int]int{},
	}
}

func (f *fakeNetlink) alloc(name string) int {
	f.nextIdx++
	f.links[name] = f.nextIdx
	return f.nextIdx
}

func (f *fakeNetlink) GetLinkIndex(name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.links[name]
	if !ok {
		return 0, fcerr.NotFound(fcerr.ObjectIPLink)
	}
	return idx, nil
}

func (f *fakeNetlink) AddVeth(name1, name2 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vethExists {
		return &fcerr.NetlinkOperationError{Op: "add_veth", Err: errExists}
	}
	f.vethExists = true
	f.alloc(name1)
	f.alloc(name2)
	return nil
}

func (f *fakeNetlink) SetAddr(linkIdx int, addr netip.Prefix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrs[linkIdx] = addr
	return nil
}

func (f *fakeNetlink) SetLinkUp(linkIdx int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up[linkIdx] = true
	return nil
}

func (f *fakeNetlink) MoveLinkToNetns(linkIdx int, fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moved[linkIdx] = fd
	return nil
}

func (f *fakeNetlink) AddTap(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taps = append(f.taps, name)
	f.alloc(name)
	return nil
}

func (f *fakeNetlink) AddRouteV4(dst netip.Prefix, gateway netip.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, dst)
	return nil
}

func (f *fakeNetlink) AddRouteV6(dst netip.Prefix, gateway netip.Addr) error {
	return f.AddRouteV4(dst, gateway)
}

func (f *fakeNetlink) AddDefaultRouteV4(gateway netip.Addr) error { return nil }
func (f *fakeNetlink) AddDefaultRouteV6(gateway netip.Addr) error { return nil }

var errExists = &linkExistsErr{}

type linkExistsErr struct{}

func (*linkExistsErr) Error() string { return "file exists" }

// fakeNft is an in-memory stand-in for nftdrv.Conn.
type fakeNft struct {
	mu     sync.Mutex
	tables []*nftables.Table
	chains []*nftables.Chain
	rules  map[*nftables.Chain][]*nftables.Rule
}

func newFakeNft() *fakeNft {
	return &fakeNft{rules: map[*nftables.Chain][]*nftables.Rule{}}
}

func (f *fakeNft) ListTables() ([]*nftables.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*nftables.Table, len(f.tables))
	copy(out, f.tables)
	return out, nil
}

func (f *fakeNft) AddTable(t *nftables.Table) *nftables.Table {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, t)
	return t
}

func (f *fakeNft) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*nftables.Chain
	for _, c := range f.chains {
		if c.Table != nil && c.Table.Family == family {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeNft) AddChain(c *nftables.Chain) *nftables.Chain {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chains = append(f.chains, c)
	return c
}

func (f *fakeNft) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*nftables.Rule{}, f.rules[c]...), nil
}

func (f *fakeNft) AddRule(r *nftables.Rule) *nftables.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.Handle = uint64(len(f.rules[r.Chain]) + 1)
	f.rules[r.Chain] = append(f.rules[r.Chain], r)
	return r
}

func (f *fakeNft) DelRule(r *nftables.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rules := f.rules[r.Chain]
	for i, existing := range rules {
		if existing.Handle == r.Handle {
			f.rules[r.Chain] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeNft) Flush() error { return nil }

// fakeNetns is an in-memory stand-in for netns.Provider.
type fakeNetns struct {
	mu      sync.Mutex
	created map[string]bool
}

func newFakeNetns() *fakeNetns {
	return &fakeNetns{created: map[string]bool{}}
}

func (f *fakeNetns) CreateOrOpen(name string) (netns.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[name] = true
	return netns.Handle{}, nil
}

func (f *fakeNetns) Open(name string) (netns.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.created[name] {
		return netns.Handle{}, fcerr.NotFound(fcerr.ObjectNetns)
	}
	return netns.Handle{}, nil
}

func (f *fakeNetns) Enter(h netns.Handle) error { return nil }

func (f *fakeNetns) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.created[name] {
		return fcerr.NotFound(fcerr.ObjectNetns)
	}
	delete(f.created, name)
	return nil
}
