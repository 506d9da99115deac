// Package export implements the batching exporter queue described in
// SPEC_FULL.md §4.8: a mutex-guarded map from (company, device) to a
// buffered batch of records, drained on a fixed tick and dispatched to a
// sink-specific encoder/client, best-effort (drop on failure, no replay).
//
// Grounded in original_source/src/export/export.rs's Envoy/Exporter pair:
// Envoy.export() appends under a tokio::Mutex<HashMap<Key, Output>>, and
// the periodic flush (src/export/{influx,kentik,newrelic}/export.rs) swaps
// the map for an empty one each tick. This module keeps the same swap-and-
// drain shape with a plain sync.Mutex, since nothing here needs to suspend
// while holding the lock.
package export

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/kentik/synthetics-agent/internal/task"
)

// ColumnKind names the primitive type a Column's value is encoded as.
type ColumnKind int

// Values for ColumnKind.
const (
	ColumnUInt32 ColumnKind = iota
	ColumnUInt64
	ColumnString
	ColumnAddr
)

// Column is one control-plane-assigned custom column a device's columnar
// sink can encode into, per SPEC_FULL.md §3.x.
type Column struct {
	ID   uint32     `json:"id"`
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// Device identifies one telemetry destination's column assignment.
type Device struct {
	ID      uint64   `json:"id"`
	Columns []Column `json:"columns"`
}

// Target is the (tenant, device) identity an Envoy is bound to, the Go
// analogue of original_source/src/export/record.rs's Target (credentials
// for the out-of-scope upload path are deliberately not modeled here).
type Target struct {
	Company uint64
	Agent   uint64
	Device  Device
}

// Key identifies one destination batch in the queue: company and device,
// matching export.rs's Key.
type Key struct {
	Company uint64
	Device  uint64
}

// KeyFor derives the Key a Target's records are batched under.
func KeyFor(t *Target) Key {
	return Key{Company: t.Company, Device: t.Device.ID}
}

// Output is one destination's accumulated batch: the target it belongs to
// and the records appended to it since the last flush, in insertion order.
type Output struct {
	Target  *Target
	Records []task.Record
}

// Queue is the exporter's shared buffer: one mutex, one map, append or
// swap-and-take as its only two operations (SPEC_FULL.md §5 "Exporter
// queue: single mutex; critical section is append or swap-and-take").
type Queue struct {
	mu      sync.Mutex
	batches map[Key]*Output
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{batches: make(map[Key]*Output)}
}

// Publish appends r to the batch for target's key, creating it if absent.
// Never blocks on anything but the queue's own short-lived mutex — per
// SPEC_FULL.md §5 ("envoys never block a probe"), there is no back-pressure
// on this path.
func (q *Queue) Publish(target *Target, r task.Record) {
	key := KeyFor(target)
	q.mu.Lock()
	defer q.mu.Unlock()
	out, ok := q.batches[key]
	if !ok {
		out = &Output{Target: target}
		q.batches[key] = out
	}
	out.Records = append(out.Records, r)
}

// drain atomically replaces the queue's map with a new empty one and
// returns what it held, the "swap-and-take" half of the critical section.
func (q *Queue) drain() map[Key]*Output {
	q.mu.Lock()
	defer q.mu.Unlock()
	batches := q.batches
	q.batches = make(map[Key]*Output)
	return batches
}

// Stats is a point-in-time read of the queue's pending depth, handed to
// the Report event handler (SPEC_FULL.md §4.7/§3.x), matching export.rs's
// Queue{length, records}.
type Stats struct {
	Batches int
	Records int
}

// Snapshot reads the current queue depth without draining it.
func (q *Queue) Snapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Batches: len(q.batches)}
	for _, out := range q.batches {
		s.Records += len(out.Records)
	}
	return s
}

// Envoy adapts a Queue + Target into the task.Envoy interface one task
// loop publishes through.
type Envoy struct {
	queue  *Queue
	target *Target
}

// NewEnvoy returns a task.Envoy bound to target that appends into queue.
func NewEnvoy(queue *Queue, target *Target) *Envoy {
	return &Envoy{queue: queue, target: target}
}

// Publish implements task.Envoy.
func (e *Envoy) Publish(r task.Record) {
	e.queue.Publish(e.target, r)
}

// Sink is the contract a downstream telemetry destination implements:
// encode a drained batch, then ship the encoded payload. Implemented by
// internal/export/columnar, internal/export/lineproto, and
// internal/export/jsonsink (SPEC_FULL.md §6.y).
type Sink interface {
	Encode(target *Target, records []task.Record) ([]byte, error)
	Send(ctx context.Context, payload []byte) error
}

// Flusher drains the Queue on a fixed tick and dispatches each batch to a
// Sink, logging and dropping on any encode/send failure per SPEC_FULL.md
// §4.8 ("best-effort shipping").
type Flusher struct {
	Queue    *Queue
	Sink     Sink
	Interval time.Duration
	Log      *log.Logger
}

// NewFlusher returns a Flusher with the spec's 10-second default tick.
func NewFlusher(queue *Queue, sink Sink, logger *log.Logger) *Flusher {
	if logger == nil {
		logger = log.Default()
	}
	return &Flusher{Queue: queue, Sink: sink, Interval: 10 * time.Second, Log: logger}
}

// Run ticks until ctx is cancelled, draining and dispatching one batch set
// per tick. It is the flusher's one perpetual activity (SPEC_FULL.md §5.x).
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

// flush drains the queue once and dispatches every batch it held, tagging
// the whole tick with one xid correlation ID for log correlation across
// the batch's encode/send calls (SPEC_FULL.md §4.8/§2.y).
func (f *Flusher) flush(ctx context.Context) {
	batches := f.Queue.drain()
	if len(batches) == 0 {
		return
	}
	logger := f.Log
	if logger == nil {
		logger = log.Default()
	}
	id := xid.New()
	for key, out := range batches {
		payload, err := f.Sink.Encode(out.Target, out.Records)
		if err != nil {
			logger.Printf("export[%s]: encoding batch for company=%d device=%d (%d records): %v",
				id, key.Company, key.Device, len(out.Records), err)
			continue
		}
		if err := f.Sink.Send(ctx, payload); err != nil {
			logger.Printf("export[%s]: sending batch for company=%d device=%d: %v", id, key.Company, key.Device, err)
			continue
		}
		logger.Printf("export[%s]: shipped %d records for company=%d device=%d", id, len(out.Records), key.Company, key.Device)
	}
}
