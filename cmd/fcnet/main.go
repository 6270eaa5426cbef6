//go:build linux
// +build linux

// Command fcnet provisions host-side networking for a microVM workload: a
// TAP device reachable from a dedicated network namespace, bridged to the
// outside world over a veth pair, with the NAT/forwarding rules that make
// return traffic work. See internal/topology for the operation semantics
// this CLI only parses flags for and dispatches.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rust-firecracker/fcnet/internal/fcconfig"
	"github.com/rust-firecracker/fcnet/internal/logging"
	"github.com/rust-firecracker/fcnet/internal/metrics"
	"github.com/rust-firecracker/fcnet/internal/netspec"
	"github.com/rust-firecracker/fcnet/internal/topology"
)

func main() {
	flags := flag.NewFlagSet("fcnet", flag.ExitOnError)
	usage := func() {
		fmt.Fprintf(os.Stderr, `fcnet: namespaced network topology orchestrator for a microVM host

Usage:
  fcnet {add|check|delete} -config <file.hcl>
  fcnet {add|check|delete} [flags]

-config may describe several "microvm" blocks; the operation runs against
each in turn, and fcnet exits non-zero if any of them failed. Either
-config or the full flag set below must be given.

-metrics-addr, if set, serves Prometheus metrics on that address under
/metrics for as long as fcnet is running.

`)
		flags.PrintDefaults()
	}
	flags.Usage = usage

	configPath := flags.String("config", "", "path to an HCL config file describing one or more microvm blocks; overrides all other flags")
	ipStack := flags.String("ip-stack", "v4", "IP stack: v4, v6, or dual")
	ifaceName := flags.String("iface", "eth0", "host egress interface name")
	tapName := flags.String("tap", "tap0", "TAP device name inside the namespace")
	tapIP := flags.String("tap-ip", "172.16.0.1/24", "TAP device CIDR address")
	guestIP := flags.String("guest-ip", "", "guest CIDR address, e.g. 172.16.0.2/24 (required)")
	nftProgramPath := flags.String("nft-program-path", "", "optional path to an alternate nft-compatible binary")
	netnsName := flags.String("netns", "fcnet", "name of the namespace to create")
	veth1Name := flags.String("veth1", "veth0", "outer veth endpoint name")
	veth2Name := flags.String("veth2", "vpeer0", "inner veth endpoint name")
	veth1IP := flags.String("veth1-ip", "10.0.0.1/24", "outer veth CIDR address")
	veth2IP := flags.String("veth2-ip", "10.0.0.2/24", "inner veth CIDR address")
	forwardedGuestIP := flags.String("forwarded-guest-ip", "", "optional outer-visible address forwarded to guest_ip")
	metricsAddr := flags.String("metrics-addr", "", "if set, serve Prometheus metrics on this address under /metrics for as long as fcnet runs")
	verbose := flags.Bool("verbose", false, "log every driver call (debug level)")
	logJSON := flags.Bool("log-json", false, "emit one JSON object per log line instead of console lines")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	opName := os.Args[1]
	if err := flags.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.Init(logging.Config{Level: level, JSON: *logJSON})

	op, err := parseOperation(opName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	specs, err := resolveSpecs(*configPath, specFlags{
		ipStack:          *ipStack,
		ifaceName:        *ifaceName,
		tapName:          *tapName,
		tapIP:            *tapIP,
		guestIP:          *guestIP,
		nftProgramPath:   *nftProgramPath,
		netnsName:        *netnsName,
		veth1Name:        *veth1Name,
		veth2Name:        *veth2Name,
		veth1IP:          *veth1IP,
		veth2IP:          *veth2IP,
		forwardedGuestIP: *forwardedGuestIP,
	})
	if err != nil {
		logging.L().Error("invalid network spec", "error", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		serveMetrics(*metricsAddr)
	}

	orchestrator := topology.New()
	failed := false
	for _, ns := range specs {
		stop := metrics.ObserveOutcome(op.String())
		err := orchestrator.Run(op, ns.Spec)
		stop(err)

		if err != nil {
			failed = true
			logging.L().Error("microvm operation failed", "op", op.String(), "microvm", ns.Name, "error", err)
			continue
		}
		logging.L().Info("microvm operation succeeded", "op", op.String(), "microvm", ns.Name)
	}

	if failed {
		os.Exit(1)
	}

	// With a metrics server running, fcnet stays up as a long-lived helper
	// process a caller can keep scraping even after the last operation
	// completed; without one, there is nothing left to do but exit.
	if *metricsAddr != "" {
		select {}
	}
}

// serveMetrics starts a /metrics HTTP server on addr in the background. A
// listen failure is logged rather than fatal: a caller who only wants the
// provisioning outcome should not have their exit code hijacked by a port
// conflict on the metrics side-channel.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logging.L().Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logging.L().Info("serving metrics", "addr", addr, "path", "/metrics")
}

func parseOperation(s string) (topology.Operation, error) {
	switch s {
	case "add":
		return topology.OpAdd, nil
	case "check":
		return topology.OpCheck, nil
	case "delete":
		return topology.OpDelete, nil
	default:
		return 0, fmt.Errorf("fcnet: unknown operation %q, want add, check, or delete", s)
	}
}

type specFlags struct {
	ipStack          string
	ifaceName        string
	tapName          string
	tapIP            string
	guestIP          string
	nftProgramPath   string
	netnsName        string
	veth1Name        string
	veth2Name        string
	veth1IP          string
	veth2IP          string
	forwardedGuestIP string
}

// resolveSpecs returns the microVMs to operate on: every microvm block in
// configPath if given, or a single "default" spec built from f otherwise.
func resolveSpecs(configPath string, f specFlags) ([]fcconfig.NamedSpec, error) {
	if configPath != "" {
		return fcconfig.LoadAll(configPath)
	}

	hcl := fmt.Sprintf(`
microvm "default" {
  ip_stack         = %q
  iface_name       = %q
  tap_name         = %q
  tap_ip           = %q
  guest_ip         = %q
  nft_program_path = %q

  namespaced {
    netns_name         = %q
    veth1_name         = %q
    veth2_name         = %q
    veth1_ip           = %q
    veth2_ip           = %q
    forwarded_guest_ip = %q
  }
}
`, f.ipStack, f.ifaceName, f.tapName, f.tapIP, f.guestIP, f.nftProgramPath,
		f.netnsName, f.veth1Name, f.veth2Name, f.veth1IP, f.veth2IP, f.forwardedGuestIP)

	return fcconfig.LoadAllBytes("<flags>.hcl", []byte(hcl))
}

// resolveSpec is resolveSpecs's single-microVM convenience used by tests
// that only care about the flag-resolution path.
func resolveSpec(configPath string, f specFlags) (*netspec.NetworkSpec, error) {
	specs, err := resolveSpecs(configPath, f)
	if err != nil {
		return nil, err
	}
	if len(specs) != 1 {
		return nil, fmt.Errorf("fcnet: expected exactly one microvm, got %d", len(specs))
	}
	return specs[0].Spec, nil
}
