// Package agentlog centralizes the *log.Logger each long-running component
// is wired to, per SPEC_FULL.md §2.x: the teacher logs through a single
// implicit log.Default(), but this module has many independent perpetual
// activities (watcher, executor, per-task loops, flusher) that each need to
// be told where to log, not just whether to.
package agentlog

import (
	"io"
	"log"
)

// New returns a *log.Logger prefixed with component, writing to w (os.Stderr
// is the expected caller-supplied default). Mirrors the plain log.Printf
// style the teacher uses throughout pinger.go/icmp.go/udp.go — just with an
// explicit destination and prefix instead of the package-level default
// logger, since this module runs many of these concurrently.
func New(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}
