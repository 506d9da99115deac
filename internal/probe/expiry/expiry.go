// Package expiry holds a thin context.WithTimeout wrapper plus the
// task-level/probe-level expiry split the task loop uses for ping, knock and
// trace to bound a whole iteration (DNS resolution included) while still
// giving each individual probe attempt its own, smaller deadline. The fetch,
// query and shake drivers set their own deadlines and do not use this
// package.
package expiry

import (
	"context"
	"time"
)

// WithTimeout is a thin wrapper around context.WithTimeout (the probe
// drivers call context.WithTimeout directly); ctx.Err() after the call tells the caller whether
// it should classify the outcome as a timeout (errors.Is(err,
// context.DeadlineExceeded)) versus a reportable error.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// PerProbe splits a task-level expiry evenly across count probe attempts,
// each allowed up to limit retries, so that resolving + running the whole
// iteration never overruns the task's own deadline.
//
// Grounded in original_source/src/task/expiry.rs:
// probe_expiry = task_expiry / (count * limit).
func PerProbe(taskExpiry time.Duration, count, limit int) time.Duration {
	if count <= 0 {
		count = 1
	}
	if limit <= 0 {
		limit = 1
	}
	return taskExpiry / time.Duration(count*limit)
}
