package task

import (
	"github.com/kentik/synthetics-agent/internal/probe/knock"
	"github.com/kentik/synthetics-agent/internal/probe/ping"
	"github.com/kentik/synthetics-agent/internal/probe/trace"
)

// Engines bundles the three stateful probe engines (ping/trace/knock own
// shared transports and correlators, so exactly one of each is built per
// agent and handed to every task of the matching kind). Fetch, Query, and
// Shake are stateless single-shot functions and need no engine handle,
// matching SPEC_FULL.md §4.x's "single-shot measurement wrappers".
type Engines struct {
	Ping  *ping.Engine
	Trace *trace.Engine
	Knock *knock.Engine
}
