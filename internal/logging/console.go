package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders the human-facing fcnet log line:
//
//	15:04:05.123 info  add(fcnet0): veth pair created veth1=veth0
//	15:04:05.201 debug netlink/inner: netlink call verb=set_addr outcome=ok
//
// The op/netns (or driver/scope) attributes collapse into the prefix
// instead of trailing as key=value pairs.
type consoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	bound []slog.Attr
}

func newConsoleHandler(w io.Writer, level slog.Leveler) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.bound = append(append([]slog.Attr{}, h.bound...), attrs...)
	return &nh
}

// Groups are not used by this codebase's log calls.
func (h *consoleHandler) WithGroup(string) slog.Handler { return h }

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var op, netns, driver, scope string
	rest := make([]slog.Attr, 0, r.NumAttrs()+len(h.bound))
	collect := func(a slog.Attr) bool {
		switch a.Key {
		case "op":
			op = a.Value.String()
		case "netns":
			netns = a.Value.String()
		case "driver":
			driver = a.Value.String()
		case "scope":
			scope = a.Value.String()
		default:
			rest = append(rest, a)
		}
		return true
	}
	for _, a := range h.bound {
		collect(a)
	}
	r.Attrs(collect)

	var b strings.Builder
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	b.WriteString(t.Format("15:04:05.000"))
	fmt.Fprintf(&b, " %-5s ", strings.ToLower(r.Level.String()))

	netnsUsed := false
	switch {
	case op != "" && netns != "":
		fmt.Fprintf(&b, "%s(%s): ", op, netns)
		netnsUsed = true
	case op != "":
		b.WriteString(op)
		b.WriteString(": ")
	case driver != "" && scope != "":
		fmt.Fprintf(&b, "%s/%s: ", driver, scope)
	case driver != "":
		b.WriteString(driver)
		b.WriteString(": ")
	}
	if netns != "" && !netnsUsed {
		rest = append([]slog.Attr{slog.String("netns", netns)}, rest...)
	}

	b.WriteString(r.Message)
	for _, a := range rest {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		v := a.Value.String()
		if strings.ContainsAny(v, " \t\"") {
			v = strconv.Quote(v)
		}
		b.WriteString(v)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}
