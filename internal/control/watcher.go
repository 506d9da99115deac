package control

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Watcher is the source of control-plane Events the rest of the agent
// consumes, independent of whether it is backed by a live connection or a
// fixture (SPEC_FULL.md §6.x).
type Watcher interface {
	Events() <-chan Event
}

// StaticWatcher is a production-shaped but network-inert Watcher: it
// replays a fixed set of groups on a fixed interval instead of polling a
// real control-plane endpoint (explicitly out of scope, SPEC_FULL.md §1).
// It exists so Executor, Task, and Exporter have a concrete, testable event
// producer without this module growing an HTTP client it was told not to
// build.
//
// Before its first successful "connection" it exercises the same
// exponential-backoff reconnect loop a live client would use
// (github.com/cenkalti/backoff/v4, SPEC_FULL.md §2.y/§6.x), so Executor's
// Reset handling is exercised against a realistic connect/backoff/connect
// sequence rather than an instant fixture load.
type StaticWatcher struct {
	// Groups is replayed verbatim as a Tasks event on every tick.
	Groups []Group
	// Interval between Tasks refresh ticks. Zero means "send once".
	Interval time.Duration
	// FailFirst simulates this many failed connection attempts, each
	// backed off exponentially, before the watcher "connects" and starts
	// emitting events.
	FailFirst int
	// Log receives reconnect diagnostics. Defaults to log.Default().
	Log *log.Logger

	events chan Event
}

// NewStaticWatcher returns a StaticWatcher replaying groups once per
// interval (or once total, if interval is zero).
func NewStaticWatcher(groups []Group, interval time.Duration) *StaticWatcher {
	return &StaticWatcher{Groups: groups, Interval: interval, events: make(chan Event, 16)}
}

// Events implements Watcher.
func (w *StaticWatcher) Events() <-chan Event {
	return w.events
}

func (w *StaticWatcher) logger() *log.Logger {
	if w.Log == nil {
		return log.Default()
	}
	return w.Log
}

// Run drives the watcher until ctx is cancelled: it first works through
// FailFirst simulated reconnect failures (backed off exponentially), then
// emits a Reset followed by a Tasks event, repeating Tasks every Interval
// until cancelled.
func (w *StaticWatcher) Run(ctx context.Context) error {
	defer close(w.events)

	if err := w.simulateConnect(ctx); err != nil {
		return err
	}

	if !w.emit(ctx, Event{Kind: EventReset}) {
		return ctx.Err()
	}
	if !w.emit(ctx, w.tasksEvent()) {
		return ctx.Err()
	}

	if w.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !w.emit(ctx, w.tasksEvent()) {
				return ctx.Err()
			}
		}
	}
}

// simulateConnect runs FailFirst backed-off retries before declaring the
// watcher connected, the one call site in this module that needs
// cenkalti/backoff/v4: a live client's reconnect loop would retry exactly
// this way on real dial failures.
func (w *StaticWatcher) simulateConnect(ctx context.Context) error {
	if w.FailFirst <= 0 {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 0

	for attempt := 1; attempt <= w.FailFirst; attempt++ {
		wait := bo.NextBackOff()
		w.logger().Printf("control: simulated connect attempt %d/%d failed, retrying in %s", attempt, w.FailFirst, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	bo.Reset()
	return nil
}

func (w *StaticWatcher) tasksEvent() Event {
	return Event{Kind: EventTasks, Tasks: &Tasks{Timestamp: time.Now(), Groups: w.Groups}}
}

func (w *StaticWatcher) emit(ctx context.Context, ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
