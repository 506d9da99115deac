// Package lineproto implements the UTF-8 line-protocol sink encoder
// described in SPEC_FULL.md §6: nanosecond timestamps, tags before fields,
// values typed by suffix (i/u/bare float/quoted string/true|false).
//
// Grounded in original_source/src/export/influx/wire/point.rs (one line per
// record: measurement, tags, fields, timestamp) using
// github.com/influxdata/line-protocol/v2/lineprotocol — promoted to a
// direct dependency per SPEC_FULL.md §2.y (seen indirectly via an influxdb
// client elsewhere in the pack) since this module writes line protocol
// without needing a full influxdb client.
package lineproto

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/task"
)

// Encoder implements export.Sink's Encode half, emitting one line-protocol
// line per record under the "synprobe" measurement.
type Encoder struct{}

// NewEncoder returns a line-protocol Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

const measurement = "synprobe"

// Encode implements export.Sink.
func (e *Encoder) Encode(target *export.Target, records []task.Record) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)

	now := time.Now()
	for _, r := range records {
		enc.StartLine(measurement)
		enc.AddTag("kind", r.Kind.String())
		enc.AddTag("company", fmt.Sprint(target.Company))
		enc.AddTag("device", fmt.Sprint(target.Device.ID))
		enc.AddField("task_id", lineprotocol.UintValue(r.TaskID))
		enc.AddField("test_id", lineprotocol.UintValue(r.TestID))
		if r.Addr != nil {
			enc.AddField("addr", lineprotocol.StringValue(r.Addr.String()))
		}
		addFields(&enc, r)
		enc.EndLine(now)
		if err := enc.Err(); err != nil {
			return nil, fmt.Errorf("lineproto: encoding %s record: %w", r.Kind, err)
		}
	}
	return enc.Bytes(), nil
}

func addFields(enc *lineprotocol.Encoder, r task.Record) {
	switch r.Kind {
	case task.KindFetch:
		enc.AddField("status_code", lineprotocol.IntValue(int64(r.Fetch.StatusCode)))
		enc.AddField("bytes", lineprotocol.IntValue(r.Fetch.Bytes))
		enc.AddField("rtt_us", lineprotocol.IntValue(r.Fetch.RTT.Microseconds()))
	case task.KindKnock:
		enc.AddField("sent", lineprotocol.UintValue(uint64(r.Knock.Sent)))
		enc.AddField("lost", lineprotocol.UintValue(uint64(r.Knock.Lost)))
		enc.AddField("rtt_avg_us", lineprotocol.IntValue(r.Knock.RTT.Avg.Microseconds()))
		enc.AddField("rtt_jitter_us", lineprotocol.IntValue(r.Knock.RTT.Jitter.Microseconds()))
	case task.KindPing:
		enc.AddField("sent", lineprotocol.UintValue(uint64(r.Ping.Sent)))
		enc.AddField("lost", lineprotocol.UintValue(uint64(r.Ping.Lost)))
		enc.AddField("rtt_avg_us", lineprotocol.IntValue(r.Ping.RTT.Avg.Microseconds()))
		enc.AddField("rtt_jitter_us", lineprotocol.IntValue(r.Ping.RTT.Jitter.Microseconds()))
	case task.KindQuery:
		enc.AddField("rcode", lineprotocol.IntValue(int64(r.Query.RCode)))
		enc.AddField("answers", lineprotocol.UintValue(uint64(len(r.Query.Answers))))
		enc.AddField("rtt_us", lineprotocol.IntValue(r.Query.RTT.Microseconds()))
	case task.KindShake:
		enc.AddField("tls_version", lineprotocol.UintValue(uint64(r.Shake.Version)))
		enc.AddField("rtt_us", lineprotocol.IntValue(r.Shake.RTT.Microseconds()))
	case task.KindTrace:
		enc.AddField("hops", lineprotocol.UintValue(uint64(len(r.Trace.Hops))))
		enc.AddField("elapsed_us", lineprotocol.IntValue(r.Trace.Elapsed.Microseconds()))
	case task.KindError:
		enc.AddField("cause", lineprotocol.StringValue(r.Error.Cause))
	case task.KindTimeout:
		enc.AddField("timed_out", lineprotocol.BoolValue(true))
	}
}

// Client posts an encoded line-protocol payload to an HTTP line-protocol
// write endpoint, accepting 200/202 as success per SPEC_FULL.md §6.
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
		return fmt.Errorf("lineproto: building request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lineproto: posting batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("lineproto: unexpected status %s", resp.Status)
	}
	return nil
}
