package task

import (
	"fmt"
	"time"
)

// ConfigKind tags which variant of Config is populated, the per-task
// "configuration variant" of SPEC_FULL.md §3 (Fetch, Knock, Ping, Query,
// Shake, Trace). ConfigUnknown is the control plane's "none of the known
// variants were present" outcome (original_source/synapi/src/tasks.rs's
// TaskConfig::Unknown) — it decodes successfully rather than failing the
// whole payload, so Validate is what rejects it, at executor-insert time.
type ConfigKind int

// Values for ConfigKind.
const (
	ConfigFetch ConfigKind = iota
	ConfigKnock
	ConfigPing
	ConfigQuery
	ConfigShake
	ConfigTrace
	ConfigUnknown
)

func (k ConfigKind) String() string {
	switch k {
	case ConfigFetch:
		return "fetch"
	case ConfigKnock:
		return "knock"
	case ConfigPing:
		return "ping"
	case ConfigQuery:
		return "query"
	case ConfigShake:
		return "shake"
	case ConfigTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Config is the tagged-union task configuration the control plane ships
// per task: exactly one of the per-kind pointer fields is populated,
// matching the Kind tag. Modeled as a Go struct-of-optional-pointers rather
// than a virtual-dispatch hierarchy per SPEC_FULL.md §9 ("Polymorphism over
// task kinds... avoid virtual-dispatch hierarchies").
type Config struct {
	Kind ConfigKind

	Fetch *FetchConfig
	Knock *KnockConfig
	Ping  *PingConfig
	Query *QueryConfig
	Shake *ShakeConfig
	Trace *TraceConfig
}

// FetchConfig configures a single-shot HTTP GET task.
type FetchConfig struct {
	URL    string
	Period time.Duration
	Expiry time.Duration
}

// KnockConfig configures a TCP SYN knock task.
type KnockConfig struct {
	Target string
	Port   int
	Count  int
	Period time.Duration
	Expiry time.Duration
}

// PingConfig configures an ICMP echo task.
type PingConfig struct {
	Target string
	Count  int
	Period time.Duration
	Expiry time.Duration
}

// QueryConfig configures a DNS query task.
type QueryConfig struct {
	Name   string
	Server string
	QType  uint16
	Period time.Duration
	Expiry time.Duration
}

// ShakeConfig configures a TLS handshake task.
type ShakeConfig struct {
	Addr   string
	SNI    string
	Period time.Duration
	Expiry time.Duration
}

// TraceConfig configures a traceroute task.
type TraceConfig struct {
	Target string
	Probes int
	Limit  int
	Period time.Duration
	Expiry time.Duration
}

// period returns the configured per-task sleep interval between
// iterations, regardless of which variant is populated.
func (c Config) period() time.Duration {
	switch c.Kind {
	case ConfigFetch:
		return c.Fetch.Period
	case ConfigKnock:
		return c.Knock.Period
	case ConfigPing:
		return c.Ping.Period
	case ConfigQuery:
		return c.Query.Period
	case ConfigShake:
		return c.Shake.Period
	case ConfigTrace:
		return c.Trace.Period
	default:
		return time.Second
	}
}

// expiry returns the configured task-level wall-clock deadline for one
// iteration, including target resolution (SPEC_FULL.md §4.6).
func (c Config) expiry() time.Duration {
	switch c.Kind {
	case ConfigFetch:
		return c.Fetch.Expiry
	case ConfigKnock:
		return c.Knock.Expiry
	case ConfigPing:
		return c.Ping.Expiry
	case ConfigQuery:
		return c.Query.Expiry
	case ConfigShake:
		return c.Shake.Expiry
	case ConfigTrace:
		return c.Trace.Expiry
	default:
		return time.Second
	}
}

// Validate reports whether c's Kind names a supported variant with its
// matching pointer field populated, returning ErrConfiguration otherwise.
// This is the one check SPEC_FULL.md §7.x requires at executor-insert
// time: an unsupported task type (ConfigUnknown, or a Kind whose config
// pointer never got set) is rejected here, before any loop ever runs and
// before any record is ever emitted for it.
func (c Config) Validate() error {
	ok := false
	switch c.Kind {
	case ConfigFetch:
		ok = c.Fetch != nil
	case ConfigKnock:
		ok = c.Knock != nil
	case ConfigPing:
		ok = c.Ping != nil
	case ConfigQuery:
		ok = c.Query != nil
	case ConfigShake:
		ok = c.Shake != nil
	case ConfigTrace:
		ok = c.Trace != nil
	}
	if !ok {
		return fmt.Errorf("%w: unsupported task kind %v", ErrConfiguration, c.Kind)
	}
	return nil
}
