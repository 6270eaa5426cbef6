//go:build linux
// +build linux

// Package netns manages named network namespaces by filesystem handle
// (the standard /var/run/netns/<name> convention), wrapping
// vishvananda/netns.
package netns

import (
	"log/slog"
	"runtime"

	"github.com/vishvananda/netns"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
	"github.com/rust-firecracker/fcnet/internal/logging"
)

func log() *slog.Logger { return logging.ForDriver("netns", "") }

// Handle is an open reference to a network namespace, backed by a file
// descriptor. Its lifetime must strictly contain any netlink request that
// uses it (e.g. MoveLinkToNetns), since the fd is what rtnetlink attaches
// to.
type Handle struct {
	ns   netns.NsHandle
	name string
}

// FD returns the raw file descriptor, suitable for netlink's
// move-link-to-netns operation.
func (h Handle) FD() int { return int(h.ns) }

// Name returns the namespace name the handle was opened for.
func (h Handle) Name() string { return h.name }

// Close releases the handle without removing the underlying namespace.
// A zero Handle (never opened) is a no-op.
func (h Handle) Close() error {
	if h.ns <= 0 {
		return nil
	}
	return h.ns.Close()
}

// Provider is the namespace-handle seam the cross-namespace executor and
// the topology orchestrator depend on.
type Provider interface {
	CreateOrOpen(name string) (Handle, error)
	Open(name string) (Handle, error)
	Enter(h Handle) error
	Remove(name string) error
}

// RealProvider drives the actual kernel namespace registry.
type RealProvider struct{}

// CreateOrOpen opens the namespace named name, creating it first if it
// does not already exist. vishvananda/netns.NewNamed switches the calling
// OS thread into the new namespace as a side effect of the underlying
// unshare(2)/mount(2) sequence, so this locks the thread for the duration
// and restores the thread's original namespace before returning — the
// outer orchestrator thread must stay in the host namespace to keep
// driving outer netlink/nftables operations correctly.
func (RealProvider) CreateOrOpen(name string) (Handle, error) {
	if h, err := netns.GetFromName(name); err == nil {
		log().Debug("netns opened existing", "netns", name)
		return Handle{ns: h, name: name}, nil
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		return Handle{}, &fcerr.NetnsError{Op: "get_current", Err: err}
	}
	defer orig.Close()

	h, err := netns.NewNamed(name)
	if err != nil {
		return Handle{}, &fcerr.NetnsError{Op: "create", Err: err}
	}

	if err := netns.Set(orig); err != nil {
		h.Close()
		return Handle{}, &fcerr.NetnsError{Op: "restore_current", Err: err}
	}

	log().Debug("netns created", "netns", name)
	return Handle{ns: h, name: name}, nil
}

// Open returns a handle to an already-existing namespace, or
// ObjectNotFoundError{Netns} if it does not exist.
func (RealProvider) Open(name string) (Handle, error) {
	h, err := netns.GetFromName(name)
	if err != nil {
		log().Debug("netns not found", "netns", name)
		return Handle{}, fcerr.NotFound(fcerr.ObjectNetns)
	}
	return Handle{ns: h, name: name}, nil
}

// Enter changes the calling OS thread's network namespace to h. It must be
// called on a dedicated OS thread (runtime.LockOSThread'd) that is never
// returned to a shared goroutine pool without restoring its original
// namespace; internal/nsexec is the only caller that should use this
// directly.
func (RealProvider) Enter(h Handle) error {
	if err := netns.Set(h.ns); err != nil {
		return &fcerr.NetnsError{Op: "enter", Err: err}
	}
	log().Debug("netns entered", "netns", h.name)
	return nil
}

// Remove unmounts and deletes the named namespace. This implicitly tears
// down every interface still inside it (the inner veth end, the TAP
// device) and any nftables state scoped to it.
func (RealProvider) Remove(name string) error {
	if err := netns.DeleteNamed(name); err != nil {
		return &fcerr.NetnsError{Op: "remove", Err: err}
	}
	log().Debug("netns removed", "netns", name)
	return nil
}
