// Package exec implements the task-population reconciler described in
// SPEC_FULL.md §4.7: it consumes control-plane Events and keeps exactly one
// running task.Task goroutine per currently-assigned TaskID, dispatching
// each task in an event by its own State (Created/Updated insert-or-
// replace, Deleted stop) rather than diffing a full snapshot — a Tasks
// event is a delta, so a task this event doesn't mention keeps running
// untouched. Reset tears everything down.
//
// Grounded in original_source/src/exec.rs's Exec (task map keyed by ID,
// State-dispatched insert/delete per task.rs's State::{Created,Updated,
// Deleted}) and original_source/src/spawn.rs's Spawner/Handle/AbortHandle
// pair, realized here with context.CancelFunc plus a done channel standing
// in for Rust's JoinHandle/AbortHandle.
package exec

import (
	"context"
	"log"
	"reflect"
	"sync"

	"github.com/kentik/synthetics-agent/internal/control"
	"github.com/kentik/synthetics-agent/internal/status"
	"github.com/kentik/synthetics-agent/internal/task"
)

// EnvoyFactory builds the task.Envoy a task for the given (company, device)
// identity should publish records through, letting the executor stay
// agnostic of which exporter sink backs it.
type EnvoyFactory func(company, device uint64) task.Envoy

// DeviceValidator, if set on an Executor, is consulted once per task
// insert with its destination (company, device) pair, letting a sink with
// its own requirements (the columnar encoder's required device columns)
// reject a task before it ever spawns, per SPEC_FULL.md §7.x. Nil means
// every device is accepted.
type DeviceValidator func(company, device uint64) error

// handle tracks one running task.Task goroutine: how to stop it, how to
// tell it already stopped, and the config it was last started with, so a
// later Tasks event can skip restarting a task whose configuration hasn't
// changed.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	spec   control.TaskSpec
}

// Executor owns the live set of task.Task goroutines and reconciles it
// against every Tasks event it receives.
type Executor struct {
	mu      sync.Mutex
	handles map[uint64]*handle

	engines        *task.Engines
	resolver       *task.Resolver
	envoyFor       EnvoyFactory
	validateDevice DeviceValidator
	status         *status.Status
	log            *log.Logger
}

// SetDeviceValidator installs v as the Executor's DeviceValidator. Not
// required: an Executor with no validator accepts every device.
func (e *Executor) SetDeviceValidator(v DeviceValidator) {
	e.validateDevice = v
}

// NewExecutor builds an Executor. engines and resolver are shared by every
// task it starts; envoyFor is consulted once per task to bind its output.
func NewExecutor(engines *task.Engines, resolver *task.Resolver, envoyFor EnvoyFactory, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		handles:  make(map[uint64]*handle),
		engines:  engines,
		resolver: resolver,
		envoyFor: envoyFor,
		status:   &status.Status{},
		log:      logger,
	}
}

// Status returns the shared status the executor's tasks report into,
// handed to the Report event handler.
func (e *Executor) Status() *status.Status {
	return e.status
}

// Run consumes events until ctx is cancelled or events closes, reconciling
// the running task set against every Tasks event and tearing it all down on
// Reset or exit (SPEC_FULL.md §4.7).
func (e *Executor) Run(ctx context.Context, events <-chan control.Event) error {
	defer e.stopAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handle(ctx, ev)
		}
	}
}

func (e *Executor) handle(ctx context.Context, ev control.Event) {
	switch ev.Kind {
	case control.EventReset:
		e.stopAll()
	case control.EventTasks:
		e.reconcile(ctx, ev.Tasks)
	case control.EventReport:
		report := e.status.Snapshot()
		e.log.Printf("exec: report running=%d started=%d exited=%d failed=%d success=%d failure=%d timeout=%d",
			report.Running, report.Started, report.Exited, report.Failed,
			report.Tallies.Success, report.Tallies.Failure, report.Tallies.Timeout)
	}
}

// reconcile dispatches every task in tasks by its own State: Created and
// Updated insert-or-replace, Deleted stops the running task, per
// SPEC_FULL.md §4.7. Tasks this event doesn't mention are left running
// untouched — the event is a delta, not a full resend.
func (e *Executor) reconcile(ctx context.Context, tasks *control.Tasks) {
	for _, g := range tasks.Groups {
		for _, spec := range g.Tasks {
			if spec.State == control.TaskDeleted {
				e.stop(spec.TaskID)
				continue
			}
			e.upsert(ctx, g.Company, g.Device, spec)
		}
	}
}

// upsert admits spec (rejecting it per SPEC_FULL.md §7.x if its config is
// unsupported or its device fails validation), skips restarting a task
// whose spec is unchanged, and otherwise cancels any previous run of the
// same TaskID before starting the new one. A rejected spec leaves whatever
// was previously running for this TaskID untouched, matching
// original_source/src/exec.rs's insert() never replacing self.tasks[id]
// on error.
func (e *Executor) upsert(ctx context.Context, company, device uint64, spec control.TaskSpec) {
	if err := e.admit(company, device, spec); err != nil {
		e.log.Printf("exec: rejecting task %d: %v", spec.TaskID, err)
		return
	}

	e.mu.Lock()
	existing, ok := e.handles[spec.TaskID]
	e.mu.Unlock()
	if ok && reflect.DeepEqual(existing.spec, spec) {
		return
	}
	if ok {
		existing.cancel()
	}
	e.start(ctx, company, device, spec)
}

// admit checks spec against task.Config.Validate and, if set, the
// Executor's DeviceValidator — the insert-time rejection boundary
// SPEC_FULL.md §7.x documents: "logged at executor-insert time, no record
// emitted".
func (e *Executor) admit(company, device uint64, spec control.TaskSpec) error {
	if err := spec.Config.Validate(); err != nil {
		return err
	}
	if e.validateDevice != nil {
		if err := e.validateDevice(company, device); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) stop(taskID uint64) {
	e.mu.Lock()
	h, ok := e.handles[taskID]
	if ok {
		delete(e.handles, taskID)
	}
	e.mu.Unlock()
	if ok {
		h.cancel()
	}
}

func (e *Executor) start(ctx context.Context, company, device uint64, spec control.TaskSpec) {
	taskCtx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel, done: make(chan struct{}), spec: spec}

	e.mu.Lock()
	e.handles[spec.TaskID] = h
	e.mu.Unlock()

	t := &task.Task{
		TaskID:   spec.TaskID,
		TestID:   spec.TestID,
		Network:  spec.Network,
		Config:   spec.Config,
		Resolver: e.resolver,
		Envoy:    e.envoyFor(company, device),
		Engines:  e.engines,
		Counters: &e.status.Counters,
		Tallies:  &e.status.Tallies,
		Log:      e.log,
	}
	e.status.Spawned()

	go func() {
		defer close(h.done)
		t.Run(taskCtx)
		e.status.Exited(nil)
	}()
}

func (e *Executor) stopAll() {
	e.mu.Lock()
	handles := e.handles
	e.handles = make(map[uint64]*handle)
	e.mu.Unlock()
	for _, h := range handles {
		h.cancel()
	}
}

// Running returns the number of task IDs currently tracked, for tests.
func (e *Executor) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}
