package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/kentik/synthetics-agent/internal/task"
)

// probeFlags holds the --count/--delay/--expiry/--ip4/--ip6/--bind flags
// shared by ping/trace/knock, per SPEC_FULL.md §6 ("CLI ... flags: --count,
// --delay, --expiry (ms), --ip4|--ip6, --bind <addr> (multi)").
type probeFlags struct {
	count   int
	delay   time.Duration
	expiry  time.Duration
	ip4     bool
	ip6     bool
	binds   []string
}

func addProbeFlags(cmd *cobra.Command, defaultCount int) *probeFlags {
	f := &probeFlags{}
	cmd.Flags().IntVar(&f.count, "count", defaultCount, "Number of probes to send.")
	cmd.Flags().DurationVar(&f.delay, "delay", time.Second, "Delay between probes (used by ping; trace and knock ignore it).")
	cmd.Flags().DurationVar(&f.expiry, "expiry", time.Second, "Per-probe expiry (e.g. 500ms).")
	cmd.Flags().BoolVar(&f.ip4, "ip4", false, "Force IPv4 resolution.")
	cmd.Flags().BoolVar(&f.ip6, "ip6", false, "Force IPv6 resolution.")
	cmd.Flags().StringArrayVar(&f.binds, "bind", nil, "Local source address(es) to report alongside results (informational; the transport always binds the wildcard address).")
	return f
}

// network derives the resolver's address-family preference from --ip4/--ip6,
// defaulting to Dual when neither (or both) are given.
func (f *probeFlags) network() task.Network {
	switch {
	case f.ip4 && !f.ip6:
		return task.NetworkIPv4
	case f.ip6 && !f.ip4:
		return task.NetworkIPv6
	default:
		return task.NetworkDual
	}
}

func resolveTarget(ctx context.Context, host string, network task.Network) (net.IP, error) {
	addr, err := task.NewResolver().Resolve(ctx, host, network)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	return addr, nil
}

// reportBinds prints the requested source addresses for the operator's
// benefit. The underlying transports always bind the wildcard address and
// have no per-socket source-address option, so
// --bind is accepted and echoed but does not change which interface sends.
func reportBinds(binds []string) {
	for _, b := range binds {
		fmt.Printf("# requested bind %s (not yet honored by the transport layer)\n", b)
	}
}
