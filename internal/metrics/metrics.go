// Package metrics exposes Prometheus counters and histograms scoped to
// topology operations, following a promauto/sync.Once singleton-registry
// idiom, covering only what this tool does: Add/Check/Delete outcomes and
// the netlink/nftables driver calls behind them, not a whole router's
// firewall/DHCP/DNS counters.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rust-firecracker/fcnet/internal/fcerr"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds the counters and histograms this tool emits.
type Registry struct {
	// OperationsTotal counts each Add/Check/Delete invocation by
	// operation and outcome ("ok" or an error-kind label).
	OperationsTotal *prometheus.CounterVec

	// OperationDuration observes wall-clock latency per operation.
	OperationDuration *prometheus.HistogramVec

	// NetlinkCallsTotal and NftablesCallsTotal count driver-level calls,
	// split by verb (operation name) and outcome.
	NetlinkCallsTotal  *prometheus.CounterVec
	NftablesCallsTotal *prometheus.CounterVec
}

// Get returns the global metrics registry, creating and registering it
// with the default Prometheus registerer on first use.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fcnet_operations_total",
		Help: "Total topology operations run, by operation and outcome",
	}, []string{"operation", "outcome"})

	r.OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fcnet_operation_duration_seconds",
		Help:    "Wall-clock duration of a topology operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	r.NetlinkCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fcnet_netlink_calls_total",
		Help: "Netlink driver calls, by verb and outcome",
	}, []string{"verb", "outcome"})

	r.NftablesCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fcnet_nftables_calls_total",
		Help: "Nftables driver calls, by verb and outcome",
	}, []string{"verb", "outcome"})

	return r
}

// ObserveOutcome records err's outcome (nil error => "ok", otherwise the
// error-kind label from outcomeLabel) against op in both the counter and, via
// the returned stop function, the duration histogram. Call pattern:
//
//	stop := metrics.ObserveOutcome(topology.OpAdd.String())
//	err := orchestrator.Add(spec)
//	stop(err)
func ObserveOutcome(op string) func(err error) {
	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		Get().OperationDuration.WithLabelValues(op).Observe(v)
	}))
	return func(err error) {
		timer.ObserveDuration()
		Get().OperationsTotal.WithLabelValues(op, outcomeLabel(err)).Inc()
	}
}

// outcomeLabel maps err onto the error taxonomy from internal/fcerr so
// dashboards can split failures by kind instead of a flat "error" bucket.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}

	var onf *fcerr.ObjectNotFoundError
	var nlErr *fcerr.NetlinkOperationError
	var nftErr *fcerr.NftablesError
	var nsErr *fcerr.NetnsError
	var tapErr *fcerr.TapDeviceError
	var ioErr *fcerr.IoError

	switch {
	case errors.As(err, &onf):
		return "object_not_found"
	case errors.As(err, &nlErr):
		return "netlink_error"
	case errors.As(err, &nftErr):
		return "nftables_error"
	case errors.As(err, &nsErr):
		return "netns_error"
	case errors.As(err, &tapErr):
		return "tap_device_error"
	case errors.As(err, &ioErr):
		return "io_error"
	case errors.Is(err, fcerr.ErrForbiddenDualStackInRoute):
		return "forbidden_dual_stack"
	case errors.Is(err, fcerr.ErrChannelCancel):
		return "channel_cancel"
	default:
		return "error"
	}
}
