// Package columnar implements the packed binary columnar sink encoder
// described in SPEC_FULL.md §6.y: each record's fields are resolved to the
// device's control-plane-assigned custom column IDs and framed as
// (id, value) pairs using varint length/ID prefixes, failing fast if a
// required column is absent from the device's column list.
//
// Grounded in original_source/src/export/{encode,custom}.rs's Columns
// struct (lookup each required field name once per batch, fail with
// "missing column '{name}'" if absent) and Customs (append (id, value)
// pairs to a growing list) — reimplemented here over raw varint framing
// with github.com/gogo/protobuf/proto's EncodeVarint/DecodeVarint instead
// of capnp message building, since no .proto/.capnp schema is part of this
// spec (SPEC_FULL.md §6.y: "just its varint primitives for a compact
// packed columnar layout").
package columnar

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gogo/protobuf/proto"

	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/task"
)

// Column names this encoder requires on every device it encodes for,
// matching the examples named in SPEC_FULL.md §3.x.
const (
	ColAppProtocol = "APP_PROTOCOL"
	ColDestAddr    = "DEST_ADDR"
	ColRTTUsec     = "RTT_USEC"
	ColTaskID      = "INT64_00"
	ColCause       = "STR00"
)

// ValueKind tags the primitive type of one encoded (id, value) pair.
type ValueKind byte

// Values for ValueKind.
const (
	ValueUInt32 ValueKind = iota
	ValueUInt64
	ValueString
	ValueAddr
)

// Encoder implements export.Sink's Encode half for the columnar sink.
type Encoder struct{}

// NewEncoder returns a columnar Encoder. It holds no state: column IDs are
// resolved fresh from each target's device on every call, since different
// targets may have different column assignments.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// columns resolves the fixed set of column names this encoder needs to a
// per-target lookup, failing fast (SPEC_FULL.md §7 "Configuration error")
// if any required column is missing from the device's assignment.
type columns struct {
	appProtocol uint32
	destAddr    uint32
	rttUsec     uint32
	taskID      uint32
	cause       uint32
}

func resolveColumns(target *export.Target) (*columns, error) {
	return resolveColumnsFor(target.Device)
}

// ValidateDevice reports whether device carries every column this encoder
// requires, without needing a full Target. agent.New installs it (through
// Encoder.ValidateDevice) as the executor's DeviceValidator, so a task is
// rejected at insert time — before it ever runs a loop or queues a record —
// rather than the gap being discovered only when a batch fails to encode at
// flush time (SPEC_FULL.md §7.x).
func ValidateDevice(device export.Device) error {
	_, err := resolveColumnsFor(device)
	return err
}

// ValidateDevice makes Encoder satisfy agent's optional column-validator
// interface; it calls the package-level ValidateDevice.
func (e *Encoder) ValidateDevice(device export.Device) error {
	return ValidateDevice(device)
}

func resolveColumnsFor(device export.Device) (*columns, error) {
	byName := make(map[string]uint32, len(device.Columns))
	for _, c := range device.Columns {
		byName[c.Name] = c.ID
	}
	lookup := func(name string) (uint32, error) {
		id, ok := byName[name]
		if !ok {
			return 0, fmt.Errorf("%w: columnar: missing column %q for device %d", task.ErrConfiguration, name, device.ID)
		}
		return id, nil
	}

	var cs columns
	var err error
	if cs.appProtocol, err = lookup(ColAppProtocol); err != nil {
		return nil, err
	}
	if cs.destAddr, err = lookup(ColDestAddr); err != nil {
		return nil, err
	}
	if cs.rttUsec, err = lookup(ColRTTUsec); err != nil {
		return nil, err
	}
	if cs.taskID, err = lookup(ColTaskID); err != nil {
		return nil, err
	}
	if cs.cause, err = lookup(ColCause); err != nil {
		return nil, err
	}
	return &cs, nil
}

// frame accumulates (id, value) pairs for one record, then Bytes returns
// the varint-framed encoding: varint(pairCount), then per pair
// varint(id) + byte(kind) + varint(len) + raw value bytes.
type frame struct {
	buf   []byte
	pairs int
}

func (f *frame) addUint32(id uint32, v uint32) {
	f.addRaw(id, ValueUInt32, proto.EncodeVarint(uint64(v)))
}

func (f *frame) addUint64(id uint32, v uint64) {
	f.addRaw(id, ValueUInt64, proto.EncodeVarint(v))
}

func (f *frame) addString(id uint32, v string) {
	f.addRaw(id, ValueString, []byte(v))
}

func (f *frame) addAddr(id uint32, v []byte) {
	f.addRaw(id, ValueAddr, v)
}

func (f *frame) addRaw(id uint32, kind ValueKind, v []byte) {
	f.buf = append(f.buf, proto.EncodeVarint(uint64(id))...)
	f.buf = append(f.buf, byte(kind))
	f.buf = append(f.buf, proto.EncodeVarint(uint64(len(v)))...)
	f.buf = append(f.buf, v...)
	f.pairs++
}

func (f *frame) bytes() []byte {
	header := proto.EncodeVarint(uint64(f.pairs))
	return append(header, f.buf...)
}

// Encode implements export.Sink.
func (e *Encoder) Encode(target *export.Target, records []task.Record) ([]byte, error) {
	cs, err := resolveColumns(target)
	if err != nil {
		return nil, err
	}

	out := proto.EncodeVarint(uint64(len(records)))
	for _, r := range records {
		f := &frame{}
		f.addUint32(cs.appProtocol, uint32(r.Kind))
		f.addUint64(cs.taskID, r.TaskID)
		if r.Addr != nil {
			f.addAddr(cs.destAddr, r.Addr)
		}
		if rtt, ok := rttMicros(r); ok {
			f.addUint64(cs.rttUsec, rtt)
		}
		if r.Error != nil {
			f.addString(cs.cause, r.Error.Cause)
		}

		fb := f.bytes()
		out = append(out, proto.EncodeVarint(uint64(len(fb)))...)
		out = append(out, fb...)
	}
	return out, nil
}

// rttMicros extracts the representative round-trip time for whichever
// record kind is populated, in microseconds.
func rttMicros(r task.Record) (uint64, bool) {
	switch r.Kind {
	case task.KindFetch:
		return uint64(r.Fetch.RTT.Microseconds()), true
	case task.KindKnock:
		return uint64(r.Knock.RTT.Avg.Microseconds()), true
	case task.KindPing:
		return uint64(r.Ping.RTT.Avg.Microseconds()), true
	case task.KindQuery:
		return uint64(r.Query.RTT.Microseconds()), true
	case task.KindShake:
		return uint64(r.Shake.RTT.Microseconds()), true
	case task.KindTrace:
		return uint64(r.Trace.Elapsed.Microseconds()), true
	default:
		return 0, false
	}
}

// Client posts an encoded columnar payload over HTTP as an opaque binary
// body, accepting 200/202 as success per SPEC_FULL.md §6.
type Client struct {
	URL  string
	HTTP *http.Client
}

// NewClient returns a Client posting to url with http.DefaultClient.
func NewClient(url string) *Client {
	return &Client{URL: url, HTTP: http.DefaultClient}
}

// Send implements export.Sink's Send half.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("columnar: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("columnar: posting batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("columnar: unexpected status %s", resp.Status)
	}
	return nil
}
