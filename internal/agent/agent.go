// Package agent wires the Watcher, Executor, and exporter Flusher into one
// supervised process, the Go realization of original_source/src/agent.rs's
// top-level run loop.
//
// Grounded in golang.org/x/sync/errgroup's WithContext/Go pattern as used
// by malbeclabs-doublezero/lake/api/handlers/status.go: every perpetual
// activity runs as one errgroup goroutine, and the first one to return a
// non-nil error cancels the shared context for all the others
// (SPEC_FULL.md §5.x).
package agent

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/kentik/synthetics-agent/internal/control"
	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/exec"
	"github.com/kentik/synthetics-agent/internal/task"
)

// Runner is implemented by everything Agent supervises as a perpetual
// activity: Watcher.Run, Executor.Run (partially applied over its events
// channel), and Flusher.Run all fit this shape.
type Runner func(ctx context.Context) error

// Agent supervises one Watcher, one Executor, and one Flusher for the
// lifetime of a process.
type Agent struct {
	Watcher  *control.StaticWatcher
	Executor *exec.Executor
	Flusher  *export.Flusher
	Log      *log.Logger
}

// columnValidator is implemented by sinks that require specific columns to
// be present on a device before they can encode for it (the columnar sink).
// New type-asserts the configured sink against this, matching Go's
// optional-interface idiom (e.g. io.Closer) rather than widening
// export.Sink itself with a method most sinks don't need.
type columnValidator interface {
	ValidateDevice(device export.Device) error
}

// New builds an Agent wiring engines to an executor that publishes through
// queue, fed by watcher, drained by a Flusher dispatching into sink. devices
// supplies each device's column assignment for sinks that need it (the
// columnar sink; lineproto/jsonsink ignore it) — a device ID absent from
// devices simply publishes with no columns. If sink implements
// columnValidator, the executor rejects a task at insert time when its
// device is missing a required column (SPEC_FULL.md §7.x), instead of
// silently dropping the device's whole batch at flush time.
func New(watcher *control.StaticWatcher, engines *task.Engines, queue *export.Queue, sink export.Sink, devices map[uint64]export.Device, logger *log.Logger) *Agent {
	if logger == nil {
		logger = log.Default()
	}
	resolveDevice := func(device uint64) export.Device {
		if d, ok := devices[device]; ok {
			return d
		}
		return export.Device{ID: device}
	}
	envoyFor := func(company, device uint64) task.Envoy {
		dev := resolveDevice(device)
		return export.NewEnvoy(queue, &export.Target{Company: company, Device: dev})
	}

	executor := exec.NewExecutor(engines, task.NewResolver(), envoyFor, logger)
	if cv, ok := sink.(columnValidator); ok {
		executor.SetDeviceValidator(func(_, device uint64) error {
			return cv.ValidateDevice(resolveDevice(device))
		})
	}

	return &Agent{
		Watcher:  watcher,
		Executor: executor,
		Flusher:  export.NewFlusher(queue, sink, logger),
		Log:      logger,
	}
}

// Run supervises the watcher, executor, and flusher until ctx is cancelled
// or any one of them fails, per SPEC_FULL.md §5.x's first-error-wins
// termination.
func (a *Agent) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Watcher.Run(gctx); err != nil {
			return fmt.Errorf("agent: watcher: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.Executor.Run(gctx, a.Watcher.Events()); err != nil {
			return fmt.Errorf("agent: executor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.Flusher.Run(gctx); err != nil {
			return fmt.Errorf("agent: flusher: %w", err)
		}
		return nil
	})

	return g.Wait()
}
