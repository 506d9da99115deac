// Command synprobe is the operator-facing CLI exposing ping/trace/knock
// directly against the probe engines (SPEC_FULL.md §6), descended from the
// teacher's single-binary graphping entry point but restructured around
// spf13/cobra subcommands instead of a bubbletea TUI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "synprobe",
		Short: "Run one-shot ping/trace/knock probes against a host.",
	}
	root.AddCommand(newPingCmd(), newTraceCmd(), newKnockCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
