package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kentik/synthetics-agent/internal/probe/ping"
	"github.com/kentik/synthetics-agent/internal/stats"
)

func newPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping <host>",
		Short: "Send ICMP echo requests to a host.",
		Args:  cobra.ExactArgs(1),
	}
	flags := addProbeFlags(cmd, 4)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runPing(args[0], flags)
	}
	return cmd
}

func runPing(host string, f *probeFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr, err := resolveTarget(ctx, host, f.network())
	if err != nil {
		return err
	}
	reportBinds(f.binds)

	engine, err := ping.NewEngine(ctx)
	if err != nil {
		return fmt.Errorf("opening ping engine: %w", err)
	}
	defer engine.Close()

	var samples []time.Duration
	for seq := 0; seq < f.count; seq++ {
		rtts, err := ping.Ping(ctx, engine, addr, 1, f.expiry)
		if err != nil {
			return err
		}
		if rtt := rtts[0]; rtt != nil {
			fmt.Printf("seq=%d host=%s addr=%s rtt=%s\n", seq, host, addr, *rtt)
			samples = append(samples, *rtt)
		} else {
			fmt.Printf("seq=%d host=%s addr=%s timeout\n", seq, host, addr)
		}

		if seq < f.count-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.delay):
			}
		}
	}

	if summary, ok := stats.Summarize(samples); ok {
		fmt.Printf("--- %s summary ---\nmin=%s max=%s avg=%s stddev=%s jitter=%s\n",
			host, summary.Min, summary.Max, summary.Avg, summary.StdDev, summary.Jitter)
	}
	return nil
}
