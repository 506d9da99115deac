package task

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/kentik/synthetics-agent/internal/probe/expiry"
	"github.com/kentik/synthetics-agent/internal/probe/fetch"
	"github.com/kentik/synthetics-agent/internal/probe/knock"
	"github.com/kentik/synthetics-agent/internal/probe/ping"
	"github.com/kentik/synthetics-agent/internal/probe/query"
	"github.com/kentik/synthetics-agent/internal/probe/shake"
	"github.com/kentik/synthetics-agent/internal/probe/trace"
	"github.com/kentik/synthetics-agent/internal/status"
)

// Task owns exactly one scheduled loop: resolve → probe → publish → sleep,
// per SPEC_FULL.md §4.6. It is the Go realization of
// original_source/src/task/task.rs's Task plus the per-kind exec() methods
// in task/{fetch,knock,ping,query,shake,trace}.rs, collapsed into one
// type that dispatches on Config.Kind instead of one struct per kind —
// the tagged-union dispatch SPEC_FULL.md §9 calls for.
type Task struct {
	TaskID  uint64
	TestID  uint64
	Network Network
	Config  Config

	Resolver *Resolver
	Envoy    Envoy
	Engines  *Engines
	Counters *status.Counters
	Tallies  *status.Tallies
	Log      *log.Logger
}

func (t *Task) logger() *log.Logger {
	if t.Log != nil {
		return t.Log
	}
	return log.Default()
}

func (t *Task) statusKind() status.Kind {
	switch t.Config.Kind {
	case ConfigFetch:
		return status.Fetch
	case ConfigKnock:
		return status.Knock
	case ConfigPing:
		return status.Ping
	case ConfigQuery:
		return status.Query
	case ConfigShake:
		return status.Shake
	default:
		return status.Trace
	}
}

// Run executes the task loop until ctx is cancelled. Per SPEC_FULL.md §5,
// cancellation aborts the loop at its next suspension point with no
// observable partial iteration: Run returns without publishing a record
// for whatever iteration was in flight.
func (t *Task) Run(ctx context.Context) {
	for {
		guard := t.Counters.Enter(t.statusKind())
		rec := t.iterate(ctx)
		guard.Release()

		if rec == nil {
			return
		}
		t.Envoy.Publish(*rec)

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.Config.period()):
		}
	}
}

// iterate runs exactly one resolve/probe/classify cycle and returns the
// record it produced, or nil if ctx was cancelled (not merely expired)
// before a classifiable outcome existed.
func (t *Task) iterate(ctx context.Context) *Record {
	iterCtx, cancel := context.WithTimeout(ctx, t.Config.expiry())
	defer cancel()

	rec, err := t.runProbe(iterCtx)
	switch {
	case err == nil:
		t.Tallies.Success()
		return rec
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		t.Tallies.Timeout()
		r := timeoutRecord(t.TaskID, t.TestID)
		return &r
	default:
		t.logger().Printf("task %d: %v", t.TaskID, err)
		t.Tallies.Failure()
		r := errorRecord(t.TaskID, t.TestID, err)
		return &r
	}
}

// runProbe resolves the target (for kinds that need a raw-socket address)
// and issues the configured probe. A non-nil error is the caller's signal
// to classify the iteration as Timeout or Error; the task-level iterCtx
// deadline is consulted after a probe call returns because ping/knock/trace
// absorb per-probe timeouts internally as losses (SPEC_FULL.md §4.6: "Per-
// probe expiries are internal to ping/knock/trace engines; the task-level
// expiry bounds the entire iteration") — a run that exhausted the whole
// iteration budget must still be reported as Timeout even though the
// engine itself returned no error.
func (t *Task) runProbe(iterCtx context.Context) (*Record, error) {
	switch t.Config.Kind {
	case ConfigFetch:
		return t.runFetch(iterCtx)
	case ConfigKnock:
		return t.runKnock(iterCtx)
	case ConfigPing:
		return t.runPing(iterCtx)
	case ConfigQuery:
		return t.runQuery(iterCtx)
	case ConfigShake:
		return t.runShake(iterCtx)
	case ConfigTrace:
		return t.runTrace(iterCtx)
	default:
		return nil, errors.New("task: unknown config kind")
	}
}

func (t *Task) resolve(ctx context.Context, host string) (net.IP, error) {
	return t.Resolver.Resolve(ctx, host, t.Network)
}

func (t *Task) runFetch(ctx context.Context) (*Record, error) {
	cfg := t.Config.Fetch
	r, err := fetch.Fetch(ctx, cfg.URL, cfg.Expiry)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	rec := fetchRecord(t.TaskID, t.TestID, nil, r)
	return &rec, nil
}

func (t *Task) runKnock(ctx context.Context) (*Record, error) {
	cfg := t.Config.Knock
	addr, err := t.resolve(ctx, cfg.Target)
	if err != nil {
		return nil, err
	}
	probeExpiry := expiry.PerProbe(cfg.Expiry, cfg.Count, 1)
	rtts, err := knock.Knock(ctx, t.Engines.Knock, addr, cfg.Port, cfg.Count, probeExpiry)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	rec := knockRecord(t.TaskID, t.TestID, addr, cfg.Port, rtts)
	return &rec, nil
}

func (t *Task) runPing(ctx context.Context) (*Record, error) {
	cfg := t.Config.Ping
	addr, err := t.resolve(ctx, cfg.Target)
	if err != nil {
		return nil, err
	}
	probeExpiry := expiry.PerProbe(cfg.Expiry, cfg.Count, 1)
	rtts, err := ping.Ping(ctx, t.Engines.Ping, addr, cfg.Count, probeExpiry)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	rec := pingRecord(t.TaskID, t.TestID, addr, rtts)
	return &rec, nil
}

func (t *Task) runQuery(ctx context.Context) (*Record, error) {
	cfg := t.Config.Query
	r, err := query.Query(ctx, cfg.Name, cfg.QType, cfg.Server, cfg.Expiry)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	rec := queryRecord(t.TaskID, t.TestID, nil, r)
	return &rec, nil
}

func (t *Task) runShake(ctx context.Context) (*Record, error) {
	cfg := t.Config.Shake
	r, err := shake.Shake(ctx, cfg.Addr, cfg.SNI, cfg.Expiry)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	rec := shakeRecord(t.TaskID, t.TestID, nil, r)
	return &rec, nil
}

func (t *Task) runTrace(ctx context.Context) (*Record, error) {
	cfg := t.Config.Trace
	addr, err := t.resolve(ctx, cfg.Target)
	if err != nil {
		return nil, err
	}
	probeExpiry := expiry.PerProbe(cfg.Expiry, cfg.Probes, cfg.Limit)
	start := time.Now()
	hops, err := t.Engines.Trace.Trace(ctx, addr, cfg.Probes, cfg.Limit, probeExpiry)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	rec := traceRecord(t.TaskID, t.TestID, addr, hops, time.Since(start))
	return &rec, nil
}
