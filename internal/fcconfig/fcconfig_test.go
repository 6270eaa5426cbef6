package fcconfig

import (
	"net/netip"
	"testing"

	"github.com/rust-firecracker/fcnet/internal/netspec"
)

const validHCL = `
microvm "vm1" {
  ip_stack    = "v4"
  iface_name  = "eth0"
  tap_name    = "tap0"
  tap_ip      = "172.16.0.1/24"
  guest_ip    = "172.16.0.2/24"

  namespaced {
    netns_name = "fcnet"
    veth1_name = "veth0"
    veth2_name = "vpeer0"
    veth1_ip   = "10.0.0.1/24"
    veth2_ip   = "10.0.0.2/24"
  }
}
`

func TestLoadBytes_Valid(t *testing.T) {
	spec, err := LoadBytes("test.hcl", []byte(validHCL))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if spec.IPStack != netspec.IPStackV4 {
		t.Errorf("IPStack = %v, want V4", spec.IPStack)
	}
	if spec.Namespaced.Veth1IP != netip.MustParsePrefix("10.0.0.1/24") {
		t.Errorf("Veth1IP = %v", spec.Namespaced.Veth1IP)
	}
	if spec.Namespaced.HasForwarding() {
		t.Error("expected no forwarding without forwarded_guest_ip")
	}
}

func forwardingHCL(forwarded string) string {
	return `
microvm "vm1" {
  ip_stack    = "v4"
  iface_name  = "eth0"
  tap_name    = "tap0"
  tap_ip      = "172.16.0.1/24"
  guest_ip    = "172.16.0.2/24"

  namespaced {
    netns_name         = "fcnet"
    veth1_name         = "veth0"
    veth2_name         = "vpeer0"
    veth1_ip           = "10.0.0.1/24"
    veth2_ip           = "10.0.0.2/24"
    forwarded_guest_ip = "` + forwarded + `"
  }
}
`
}

func TestLoadBytes_WithForwarding(t *testing.T) {
	spec, err := LoadBytes("test.hcl", []byte(forwardingHCL("192.168.100.50")))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if !spec.Namespaced.HasForwarding() {
		t.Error("expected forwarding to be set")
	}
}

func TestLoadBytes_RejectsDualStackForwardMismatch(t *testing.T) {
	_, err := LoadBytes("test.hcl", []byte(forwardingHCL("fd00::1")))
	if err == nil {
		t.Fatal("expected an error for a dual-stack forwarded route")
	}
}

func TestLoadBytes_BareIPStackIdentifier(t *testing.T) {
	bare := `
microvm "vm1" {
  ip_stack   = dual
  iface_name = "eth0"
  tap_name   = "tap0"
  tap_ip     = "172.16.0.1/24"
  guest_ip   = "172.16.0.2/24"
  namespaced {
    netns_name = "fcnet"
    veth1_name = "veth0"
    veth2_name = "vpeer0"
    veth1_ip   = "10.0.0.1/24"
    veth2_ip   = "10.0.0.2/24"
  }
}
`
	spec, err := LoadBytes("test.hcl", []byte(bare))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if spec.IPStack != netspec.IPStackDual {
		t.Errorf("IPStack = %v, want Dual", spec.IPStack)
	}
}

func TestLoadBytes_BadIPStack(t *testing.T) {
	bad := `
microvm "vm1" {
  ip_stack   = "v5"
  iface_name = "eth0"
  tap_name   = "tap0"
  tap_ip     = "172.16.0.1/24"
  guest_ip   = "172.16.0.2/24"
  namespaced {
    netns_name = "fcnet"
    veth1_name = "veth0"
    veth2_name = "vpeer0"
    veth1_ip   = "10.0.0.1/24"
    veth2_ip   = "10.0.0.2/24"
  }
}
`
	if _, err := LoadBytes("test.hcl", []byte(bad)); err == nil {
		t.Fatal("expected an error for an unknown ip_stack value")
	}
}

func TestLoadBytes_RejectsMultipleBlocksForSingleLoad(t *testing.T) {
	two := validHCL + `
microvm "vm2" {
  ip_stack    = "v4"
  iface_name  = "eth0"
  tap_name    = "tap1"
  tap_ip      = "172.17.0.1/24"
  guest_ip    = "172.17.0.2/24"

  namespaced {
    netns_name = "fcnet2"
    veth1_name = "veth1"
    veth2_name = "vpeer1"
    veth1_ip   = "10.0.1.1/24"
    veth2_ip   = "10.0.1.2/24"
  }
}
`
	if _, err := LoadBytes("test.hcl", []byte(two)); err == nil {
		t.Fatal("expected LoadBytes to reject a multi-microvm document")
	}
}

func TestLoadAllBytes_MultipleMicrovms(t *testing.T) {
	two := validHCL + `
microvm "vm2" {
  ip_stack    = "v4"
  iface_name  = "eth0"
  tap_name    = "tap1"
  tap_ip      = "172.17.0.1/24"
  guest_ip    = "172.17.0.2/24"

  namespaced {
    netns_name = "fcnet2"
    veth1_name = "veth1"
    veth2_name = "vpeer1"
    veth1_ip   = "10.0.1.1/24"
    veth2_ip   = "10.0.1.2/24"
  }
}
`
	specs, err := LoadAllBytes("test.hcl", []byte(two))
	if err != nil {
		t.Fatalf("LoadAllBytes: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("len(specs) = %d, want 2", len(specs))
	}
	if specs[0].Name != "vm1" || specs[1].Name != "vm2" {
		t.Errorf("names = %q, %q", specs[0].Name, specs[1].Name)
	}
}

func TestLoadAllBytes_RejectsDuplicateNames(t *testing.T) {
	dup := validHCL + validHCL
	if _, err := LoadAllBytes("test.hcl", []byte(dup)); err == nil {
		t.Fatal("expected an error for a duplicate microvm name")
	}
}
