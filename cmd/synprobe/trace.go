package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kentik/synthetics-agent/internal/probe/trace"
)

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <host>",
		Short: "Trace the route to a host.",
		Args:  cobra.ExactArgs(1),
	}
	flags := addProbeFlags(cmd, 3)
	limit := cmd.Flags().Int("limit", 30, "Maximum hop count before giving up.")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runTrace(args[0], flags, *limit)
	}
	return cmd
}

func runTrace(host string, f *probeFlags, limit int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr, err := resolveTarget(ctx, host, f.network())
	if err != nil {
		return err
	}
	reportBinds(f.binds)

	engine, err := trace.NewEngine(ctx)
	if err != nil {
		return fmt.Errorf("opening trace engine: %w", err)
	}
	defer engine.Close()

	hops, err := engine.Trace(ctx, addr, f.count, limit, f.expiry)
	if err != nil {
		return err
	}

	for ttl, nodes := range hops {
		if len(nodes) == 0 {
			fmt.Printf("%2d  *\n", ttl+1)
			continue
		}
		for _, n := range nodes {
			fmt.Printf("%2d  %s  %s\n", ttl+1, n.Addr, n.RTT)
		}
	}
	return nil
}
