package task

import (
	"net"
	"time"

	"github.com/kentik/synthetics-agent/internal/probe/fetch"
	"github.com/kentik/synthetics-agent/internal/probe/ping"
	"github.com/kentik/synthetics-agent/internal/probe/query"
	"github.com/kentik/synthetics-agent/internal/probe/shake"
	"github.com/kentik/synthetics-agent/internal/probe/trace"
	"github.com/kentik/synthetics-agent/internal/stats"
)

// Kind tags which variant of Record is populated. Go has no sum types, so
// Record follows the common one-struct-per-variant-field idiom instead of
// original_source/src/export/record.rs's Rust enum — Kind plays the role of
// the enum discriminant and at most one of the per-kind pointer fields
// below is non-nil for a given Kind (none for KindTimeout).
type Kind int

// Values for Kind, matching record.rs's Record variants plus the two
// outcome kinds every task loop iteration can also produce.
const (
	KindFetch Kind = iota
	KindKnock
	KindPing
	KindQuery
	KindShake
	KindTrace
	KindError
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindKnock:
		return "knock"
	case KindPing:
		return "ping"
	case KindQuery:
		return "query"
	case KindShake:
		return "shake"
	case KindTrace:
		return "trace"
	case KindError:
		return "error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Record is the sum type over {Fetch, Knock, Ping, Query, Shake, Trace,
// Error, Timeout} every task-loop iteration publishes exactly one of,
// carrying task_id, test_id, target descriptor, and measurement fields per
// SPEC_FULL.md §3.
type Record struct {
	TaskID uint64
	TestID uint64
	Kind   Kind
	Addr   net.IP

	Fetch *FetchData
	Knock *KnockData
	Ping  *PingData
	Query *QueryData
	Shake *ShakeData
	Trace *TraceData
	Error *ErrorData
}

// FetchData is the measurement payload for a Fetch record.
type FetchData struct {
	StatusCode int
	Bytes      int64
	RTT        time.Duration
}

// KnockData is the measurement payload for a Knock record.
type KnockData struct {
	Port int
	Sent int
	Lost int
	RTT  stats.Summary
}

// PingData is the measurement payload for a Ping record.
type PingData struct {
	Sent int
	Lost int
	RTT  stats.Summary
}

// QueryData is the measurement payload for a Query record.
type QueryData struct {
	RCode   int
	Answers []string
	RTT     time.Duration
}

// ShakeData is the measurement payload for a Shake record.
type ShakeData struct {
	Version     uint16
	CipherSuite uint16
	RTT         time.Duration
}

// Node mirrors trace.Node for the exported record, decoupling the record
// shape from the engine's internal type.
type Node struct {
	TTL  int
	Addr net.IP
	RTT  time.Duration
}

// TraceData is the measurement payload for a Trace record: the per-TTL hop
// list copied from the engine's [][]trace.Node, one inner slice per TTL
// holding the Node of every probe sent at that TTL, plus the elapsed time
// of the whole trace.
type TraceData struct {
	Hops    [][]Node
	Elapsed time.Duration
}

// ErrorData is the payload for an Error record: a transient I/O failure
// reported before the task-level expiry fired (SPEC_FULL.md §7).
type ErrorData struct {
	Cause string
}

func fetchRecord(taskID, testID uint64, addr net.IP, r *fetch.Result) Record {
	return Record{TaskID: taskID, TestID: testID, Kind: KindFetch, Addr: addr, Fetch: &FetchData{
		StatusCode: r.StatusCode,
		Bytes:      r.Bytes,
		RTT:        r.Elapsed,
	}}
}

func knockRecord(taskID, testID uint64, addr net.IP, port int, rtts []*time.Duration) Record {
	lost := 0
	var samples []time.Duration
	for _, r := range rtts {
		if r == nil {
			lost++
			continue
		}
		samples = append(samples, *r)
	}
	summary, _ := stats.Summarize(samples)
	return Record{TaskID: taskID, TestID: testID, Kind: KindKnock, Addr: addr, Knock: &KnockData{
		Port: port,
		Sent: len(rtts),
		Lost: lost,
		RTT:  summary,
	}}
}

func pingRecord(taskID, testID uint64, addr net.IP, rtts []*time.Duration) Record {
	lost := 0
	for _, r := range rtts {
		if r == nil {
			lost++
		}
	}
	summary, _ := ping.Summary(rtts)
	return Record{TaskID: taskID, TestID: testID, Kind: KindPing, Addr: addr, Ping: &PingData{
		Sent: len(rtts),
		Lost: lost,
		RTT:  summary,
	}}
}

func queryRecord(taskID, testID uint64, addr net.IP, r *query.Result) Record {
	return Record{TaskID: taskID, TestID: testID, Kind: KindQuery, Addr: addr, Query: &QueryData{
		RCode:   r.RCode,
		Answers: r.Answers,
		RTT:     r.Elapsed,
	}}
}

func shakeRecord(taskID, testID uint64, addr net.IP, r *shake.Result) Record {
	return Record{TaskID: taskID, TestID: testID, Kind: KindShake, Addr: addr, Shake: &ShakeData{
		Version:     r.Version,
		CipherSuite: r.CipherSuite,
		RTT:         r.Elapsed,
	}}
}

func traceRecord(taskID, testID uint64, addr net.IP, hops [][]trace.Node, elapsed time.Duration) Record {
	out := make([][]Node, len(hops))
	for i, hop := range hops {
		nodes := make([]Node, len(hop))
		for j, n := range hop {
			nodes[j] = Node{TTL: n.TTL, Addr: n.Addr, RTT: n.RTT}
		}
		out[i] = nodes
	}
	return Record{TaskID: taskID, TestID: testID, Kind: KindTrace, Addr: addr, Trace: &TraceData{
		Hops:    out,
		Elapsed: elapsed,
	}}
}

func errorRecord(taskID, testID uint64, cause error) Record {
	return Record{TaskID: taskID, TestID: testID, Kind: KindError, Error: &ErrorData{Cause: cause.Error()}}
}

func timeoutRecord(taskID, testID uint64) Record {
	return Record{TaskID: taskID, TestID: testID, Kind: KindTimeout}
}
