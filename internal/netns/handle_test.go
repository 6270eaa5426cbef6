//go:build linux
// +build linux

package netns_test

import (
	"os"
	"testing"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
	"github.com/rust-firecracker/fcnet/internal/netns"
)

// requireNetnsPrivileges gates the tests that mutate the kernel's named
// namespace registry: they need CAP_NET_ADMIN plus mount privileges for
// /var/run/netns, and they leave no room for parallel runs, so they are
// opt-in and meant for a disposable VM.
func requireNetnsPrivileges(t *testing.T) {
	t.Helper()
	if os.Getenv("FCNET_VM_TEST") == "" {
		t.Skip("set FCNET_VM_TEST to run tests that mutate kernel namespaces")
	}
	if os.Geteuid() != 0 {
		t.Skip("namespace lifecycle tests need root")
	}
}

func TestOpen_NonExistent(t *testing.T) {
	requireNetnsPrivileges(t)

	_, err := netns.RealProvider{}.Open("fcnet-test-does-not-exist")
	if !fcerr.IsNotFound(err, fcerr.ObjectNetns) {
		t.Fatalf("Open of a nonexistent namespace = %v, want ObjectNotFound{Netns}", err)
	}
}

func TestCreateOrOpen_OpenRemove(t *testing.T) {
	requireNetnsPrivileges(t)

	const name = "fcnet-test-createopen"
	p := netns.RealProvider{}

	h, err := p.CreateOrOpen(name)
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	defer p.Remove(name)
	if h.Name() != name {
		t.Errorf("Name() = %q, want %q", h.Name(), name)
	}
	h.Close()

	if _, err := p.Open(name); err != nil {
		t.Fatalf("Open after CreateOrOpen: %v", err)
	}

	// Idempotent: calling CreateOrOpen again returns the existing
	// namespace rather than erroring.
	h2, err := p.CreateOrOpen(name)
	if err != nil {
		t.Fatalf("second CreateOrOpen: %v", err)
	}
	h2.Close()

	if err := p.Remove(name); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := p.Open(name); !fcerr.IsNotFound(err, fcerr.ObjectNetns) {
		t.Fatalf("Open after Remove = %v, want ObjectNotFound{Netns}", err)
	}
}
