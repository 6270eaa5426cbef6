// Package fcconfig decodes an HCL description of one or more NetworkSpecs
// from disk, using hclsimple.Decode (without comment-preserving round-trip
// editing, which this tool's write-once, read-once config surface has no
// use for). A single file can describe several microVMs' topologies, so a
// caller that manages a whole host's worth of microVMs can provision or
// tear all of them down from one invocation instead of one process per VM.
package fcconfig

import (
	"fmt"
	"net/netip"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"

	"github.com/rust-firecracker/fcnet/internal/netspec"
)

// evalCtx exposes the ip_stack enum values as bare identifiers, so a config
// can say ip_stack = v4 as well as ip_stack = "v4".
func evalCtx() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"v4":   cty.StringVal("v4"),
			"v6":   cty.StringVal("v6"),
			"dual": cty.StringVal("dual"),
		},
	}
}

// file is the on-disk HCL shape: zero or more labeled microvm blocks.
type file struct {
	Microvms []microvmBlock `hcl:"microvm,block"`
}

type microvmBlock struct {
	Name string `hcl:"name,label"`

	IPStack        string `hcl:"ip_stack"`
	IfaceName      string `hcl:"iface_name"`
	TapName        string `hcl:"tap_name"`
	TapIP          string `hcl:"tap_ip"`
	GuestIP        string `hcl:"guest_ip"`
	NFTProgramPath string `hcl:"nft_program_path,optional"`

	Namespaced namespacedBlock `hcl:"namespaced,block"`
}

type namespacedBlock struct {
	NetnsName        string `hcl:"netns_name"`
	Veth1Name        string `hcl:"veth1_name"`
	Veth2Name        string `hcl:"veth2_name"`
	Veth1IP          string `hcl:"veth1_ip"`
	Veth2IP          string `hcl:"veth2_ip"`
	ForwardedGuestIP string `hcl:"forwarded_guest_ip,optional"`
}

// NamedSpec pairs a microvm block's label with its resolved, validated
// NetworkSpec.
type NamedSpec struct {
	Name string
	Spec *netspec.NetworkSpec
}

// LoadAll decodes every microvm block in path.
func LoadAll(path string) ([]NamedSpec, error) {
	var f file
	if err := hclsimple.DecodeFile(path, evalCtx(), &f); err != nil {
		return nil, fmt.Errorf("fcnet: decode config %q: %w", path, err)
	}
	return resolveAll(&f)
}

// LoadAllBytes decodes HCL source held in memory, for callers (and tests)
// that don't want to round-trip through a file.
func LoadAllBytes(filename string, data []byte) ([]NamedSpec, error) {
	var f file
	if err := hclsimple.Decode(filename, data, evalCtx(), &f); err != nil {
		return nil, fmt.Errorf("fcnet: decode config %q: %w", filename, err)
	}
	return resolveAll(&f)
}

// Load decodes path and requires it to describe exactly one microvm,
// returning its NetworkSpec directly. It is the convenience entry point
// for a single-VM config file; LoadBytes does the same for an in-memory
// document.
func Load(path string) (*netspec.NetworkSpec, error) {
	specs, err := LoadAll(path)
	if err != nil {
		return nil, err
	}
	return exactlyOne(specs)
}

// LoadBytes is LoadAllBytes's single-microvm counterpart.
func LoadBytes(filename string, data []byte) (*netspec.NetworkSpec, error) {
	specs, err := LoadAllBytes(filename, data)
	if err != nil {
		return nil, err
	}
	return exactlyOne(specs)
}

func exactlyOne(specs []NamedSpec) (*netspec.NetworkSpec, error) {
	if len(specs) != 1 {
		return nil, fmt.Errorf("fcnet: expected exactly one microvm block, got %d", len(specs))
	}
	return specs[0].Spec, nil
}

func resolveAll(f *file) ([]NamedSpec, error) {
	if len(f.Microvms) == 0 {
		return nil, fmt.Errorf("fcnet: config must declare at least one microvm block")
	}

	seen := make(map[string]bool, len(f.Microvms))
	out := make([]NamedSpec, 0, len(f.Microvms))
	for _, mb := range f.Microvms {
		if seen[mb.Name] {
			return nil, fmt.Errorf("fcnet: duplicate microvm name %q", mb.Name)
		}
		seen[mb.Name] = true

		spec, err := resolve(&mb)
		if err != nil {
			return nil, fmt.Errorf("fcnet: microvm %q: %w", mb.Name, err)
		}
		out = append(out, NamedSpec{Name: mb.Name, Spec: spec})
	}
	return out, nil
}

func resolve(mb *microvmBlock) (*netspec.NetworkSpec, error) {
	stack, err := parseIPStack(mb.IPStack)
	if err != nil {
		return nil, err
	}

	tapIP, err := netip.ParsePrefix(mb.TapIP)
	if err != nil {
		return nil, fmt.Errorf("fcnet: tap_ip: %w", err)
	}
	guestIP, err := netip.ParsePrefix(mb.GuestIP)
	if err != nil {
		return nil, fmt.Errorf("fcnet: guest_ip: %w", err)
	}
	veth1IP, err := netip.ParsePrefix(mb.Namespaced.Veth1IP)
	if err != nil {
		return nil, fmt.Errorf("fcnet: namespaced.veth1_ip: %w", err)
	}
	veth2IP, err := netip.ParsePrefix(mb.Namespaced.Veth2IP)
	if err != nil {
		return nil, fmt.Errorf("fcnet: namespaced.veth2_ip: %w", err)
	}

	var forwarded netip.Addr
	if mb.Namespaced.ForwardedGuestIP != "" {
		forwarded, err = netip.ParseAddr(mb.Namespaced.ForwardedGuestIP)
		if err != nil {
			return nil, fmt.Errorf("fcnet: namespaced.forwarded_guest_ip: %w", err)
		}
	}

	spec := &netspec.NetworkSpec{
		IPStack:        stack,
		IfaceName:      mb.IfaceName,
		TapName:        mb.TapName,
		TapIP:          tapIP,
		GuestIP:        guestIP,
		NFTProgramPath: mb.NFTProgramPath,
		Namespaced: netspec.NamespacedSpec{
			NetnsName:        mb.Namespaced.NetnsName,
			Veth1Name:        mb.Namespaced.Veth1Name,
			Veth2Name:        mb.Namespaced.Veth2Name,
			Veth1IP:          veth1IP,
			Veth2IP:          veth2IP,
			ForwardedGuestIP: forwarded,
		},
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseIPStack(s string) (netspec.IPStack, error) {
	switch s {
	case "v4", "V4", "":
		return netspec.IPStackV4, nil
	case "v6", "V6":
		return netspec.IPStackV6, nil
	case "dual", "Dual":
		return netspec.IPStackDual, nil
	default:
		return 0, fmt.Errorf("fcnet: ip_stack: unknown value %q", s)
	}
}
