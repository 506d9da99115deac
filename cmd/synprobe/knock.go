package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kentik/synthetics-agent/internal/probe/knock"
	"github.com/kentik/synthetics-agent/internal/stats"
)

func newKnockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knock <host> <port>",
		Short: "Send TCP SYN knocks to a host:port.",
		Args:  cobra.ExactArgs(2),
	}
	flags := addProbeFlags(cmd, 3)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[1], err)
		}
		return runKnock(args[0], port, flags)
	}
	return cmd
}

func runKnock(host string, port int, f *probeFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr, err := resolveTarget(ctx, host, f.network())
	if err != nil {
		return err
	}
	reportBinds(f.binds)

	engine, err := knock.NewEngine(ctx)
	if err != nil {
		return fmt.Errorf("opening knock engine: %w", err)
	}
	defer engine.Close()

	rtts, err := knock.Knock(ctx, engine, addr, port, f.count, f.expiry)
	if err != nil {
		return err
	}

	var samples []time.Duration
	for i, rtt := range rtts {
		if rtt == nil {
			fmt.Printf("seq=%d host=%s:%d timeout\n", i, host, port)
			continue
		}
		fmt.Printf("seq=%d host=%s:%d rtt=%s\n", i, host, port, *rtt)
		samples = append(samples, *rtt)
	}

	if summary, ok := stats.Summarize(samples); ok {
		fmt.Printf("--- %s:%d summary ---\nmin=%s max=%s avg=%s stddev=%s jitter=%s\n",
			host, port, summary.Min, summary.Max, summary.Avg, summary.StdDev, summary.Jitter)
	}
	return nil
}
