package task

import "errors"

// ErrConfiguration marks a task-insert failure the executor must log and
// skip without spawning a loop or emitting a record: an unsupported task
// type (Config.Validate) or a device missing a column the columnar encoder
// requires (columnar.ValidateDevice, SPEC_FULL.md §3.x). Per SPEC_FULL.md §7.x, the task-level Timeout
// classification deliberately reuses context.DeadlineExceeded instead of a
// parallel sentinel; ErrConfiguration is the one new sentinel this module
// needs, for the one error class that has no context.Context analogue.
var ErrConfiguration = errors.New("task: configuration error")
