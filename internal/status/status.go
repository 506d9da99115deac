// Package status tracks the agent's live task population: per-kind active
// counters, cumulative success/failure/timeout tallies, and the executor's
// started/running/exited/failed lifecycle counts, all exposed to the
// Report event handler as a single snapshot.
//
// Ported from two parallel Rust types the original keeps deliberately
// separate (original_source/src/task/active.rs's per-kind Active, used by
// the task loop itself, and src/status/status.rs's Status, used by the
// executor to track spawn lifecycle) joined here under one struct for the
// Go executor's convenience.
package status

import "sync/atomic"

// Kind names one of the six task types a Counters tracks.
type Kind int

const (
	Fetch Kind = iota
	Knock
	Ping
	Query
	Shake
	Trace
	numKinds
)

// Counters holds one atomic gauge per task kind, incremented for the
// duration of a single task iteration.
type Counters struct {
	gauges [numKinds]atomic.Int64
}

// Guard marks one iteration of kind k as active until Release is called.
// Mirrors active.rs's Guard/Drop pair; Go has no destructors, so callers
// must defer Release explicitly.
type Guard struct {
	gauge *atomic.Int64
}

// Enter increments the gauge for k and returns a Guard the caller defers
// Release on.
func (c *Counters) Enter(k Kind) Guard {
	g := &c.gauges[k]
	g.Add(1)
	return Guard{gauge: g}
}

// Release decrements the gauge this Guard was issued for. Safe to call at
// most once; a zero Guard is a no-op.
func (g Guard) Release() {
	if g.gauge != nil {
		g.gauge.Add(-1)
	}
}

// CountersReport is a point-in-time read of every kind's active count.
type CountersReport struct {
	Fetch, Knock, Ping, Query, Shake, Trace int64
}

// Report reads the current value of every gauge.
func (c *Counters) Report() CountersReport {
	return CountersReport{
		Fetch: c.gauges[Fetch].Load(),
		Knock: c.gauges[Knock].Load(),
		Ping:  c.gauges[Ping].Load(),
		Query: c.gauges[Query].Load(),
		Shake: c.gauges[Shake].Load(),
		Trace: c.gauges[Trace].Load(),
	}
}

// Tallies accumulates outcome counts between reports; Snapshot reads and
// resets them to zero, the port of status.rs's Status::snapshot().
type Tallies struct {
	success atomic.Int64
	failure atomic.Int64
	timeout atomic.Int64
}

func (t *Tallies) Success() { t.success.Add(1) }
func (t *Tallies) Failure() { t.failure.Add(1) }
func (t *Tallies) Timeout() { t.timeout.Add(1) }

// TalliesSnapshot is a drained read of the three outcome tallies.
type TalliesSnapshot struct {
	Success, Failure, Timeout int64
}

// Snapshot swaps each tally to zero and returns what it held.
func (t *Tallies) Snapshot() TalliesSnapshot {
	return TalliesSnapshot{
		Success: t.success.Swap(0),
		Failure: t.failure.Swap(0),
		Timeout: t.timeout.Swap(0),
	}
}

// Status is the executor's combined view: the per-kind active counters,
// the outcome tallies, and the spawn lifecycle counts that accumulate
// started/exited/failed between reports, matching status.rs's Tasks shape.
type Status struct {
	Counters Counters
	Tallies  Tallies

	started atomic.Int64
	running atomic.Int64
	exited  atomic.Int64
	failed  atomic.Int64
}

// Spawned records that a task loop started running.
func (s *Status) Spawned() {
	s.started.Add(1)
	s.running.Add(1)
}

// Exited records that a task loop finished, successfully or not.
func (s *Status) Exited(err error) {
	s.running.Add(-1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.exited.Add(1)
}

// Report is the snapshot handed to the Report event handler.
type Report struct {
	Started, Running, Exited, Failed int64
	Counters                         CountersReport
	Tallies                          TalliesSnapshot
}

// Snapshot reads the lifecycle counts (resetting started/exited/failed,
// matching status.rs) plus the current counters and tallies.
func (s *Status) Snapshot() Report {
	r := Report{
		Running:  s.running.Load(),
		Started:  s.started.Swap(0),
		Exited:   s.exited.Swap(0),
		Failed:   s.failed.Swap(0),
		Counters: s.Counters.Report(),
		Tallies:  s.Tallies.Snapshot(),
	}
	return r
}
