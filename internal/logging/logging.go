// Package logging is fcnet's slog-based log stream. There is one
// process-wide logger; every line is tagged either with the topology
// operation and the namespace it targets, or with the driver and the
// namespace scope a kernel call came from, so an operator provisioning
// several microVMs at once can follow a single namespace's column.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Config selects the process logger's output.
type Config struct {
	// Level is the minimum severity emitted.
	Level slog.Level

	// JSON switches from operator console lines to one JSON object per
	// line, for log collectors.
	JSON bool

	// Output defaults to stderr.
	Output io.Writer
}

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(build(Config{Level: slog.LevelInfo}))
}

func build(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level}))
	}
	return slog.New(newConsoleHandler(out, cfg.Level))
}

// Init installs the process-wide logger.
func Init(cfg Config) {
	current.Store(build(cfg))
}

// L returns the process-wide logger.
func L() *slog.Logger {
	return current.Load()
}

// ForOperation tags every line with a topology operation ("add", "check",
// "delete") and the namespace it targets.
func ForOperation(op, netns string) *slog.Logger {
	return L().With(slog.String("op", op), slog.String("netns", netns))
}

// ForDriver tags lines with a driver name ("netlink", "nftables", "netns",
// "nsexec") and, when set, the namespace scope ("outer" or "inner") its
// connection is bound to.
func ForDriver(driver, scope string) *slog.Logger {
	l := L().With(slog.String("driver", driver))
	if scope != "" {
		l = l.With(slog.String("scope", scope))
	}
	return l
}

// Outcome writes the terminal line for one topology operation: what ran,
// against which namespace, how long it took, and the error if it failed.
func Outcome(op, netns string, elapsed time.Duration, err error) {
	if err != nil {
		ForOperation(op, netns).Error("operation failed",
			slog.Duration("elapsed", elapsed), slog.Any("error", err))
		return
	}
	ForOperation(op, netns).Info("operation complete",
		slog.Duration("elapsed", elapsed))
}
