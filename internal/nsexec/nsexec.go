//go:build linux
// +build linux

// Package nsexec runs a block of namespace-bound work on a dedicated OS
// thread, generalized into a reusable primitive from the namespace-entry
// patterns used elsewhere for per-thread netns membership.
//
// Network-namespace membership is per-thread in Linux, so a multi-threaded
// work-stealing scheduler (Go's default goroutine scheduler) cannot safely
// host namespace-entered work: the runtime is free to resume a goroutine on
// any thread, including one that never entered the target namespace, or
// one still a member of it after the goroutine that entered it exits.
// Run sidesteps this by spawning a brand-new OS thread, pinning it with
// runtime.LockOSThread, entering the namespace there, running fn to
// completion, and letting the thread terminate — Go never reuses an
// exited goroutine's underlying OS thread for other work once
// LockOSThread was called and never undone before return.
package nsexec

import (
	"runtime"
	"time"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
	"github.com/rust-firecracker/fcnet/internal/logging"
	"github.com/rust-firecracker/fcnet/internal/netns"
)

// Run enters the namespace identified by h on a dedicated OS thread and
// runs fn there, returning fn's result.
//
// The result is delivered through a one-shot buffered channel so a caller
// that abandons the wait (cancellation) never blocks the namespace thread:
// fn always runs to completion even if nothing is left to receive its
// result. Run itself blocks until fn finishes; a caller wanting a deadline
// wraps the whole operation.
func Run(provider netns.Provider, h netns.Handle, fn func() error) error {
	start := time.Now()
	result := make(chan error, 1)

	go func() {
		// Closing without a buffered send means the thread died before
		// producing a result (e.g. runtime.Goexit inside fn); the
		// receiver turns that into ErrChannelCancel.
		defer close(result)

		runtime.LockOSThread()
		// Deliberately no UnlockOSThread: this goroutine's thread is
		// dedicated to this namespace for its whole life and exits
		// with it, so there is nothing to restore it for.

		if err := provider.Enter(h); err != nil {
			result <- err
			return
		}
		result <- fn()
	}()

	err, ok := <-result
	if !ok {
		err = fcerr.ErrChannelCancel
	}

	log := logging.ForDriver("nsexec", "inner")
	if err != nil {
		log.Debug("namespace-entered call failed",
			"netns", h.Name(), "elapsed", time.Since(start), "error", err)
	} else {
		log.Debug("namespace-entered call finished",
			"netns", h.Name(), "elapsed", time.Since(start))
	}
	return err
}
