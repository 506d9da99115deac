// Package jsonsink implements the plain-JSON sink encoder described in
// SPEC_FULL.md §6.y: a JSON array of event objects, one per record, posted
// over HTTP and accepting 200/202 as success — the simplest of the three
// sinks, carried for destinations that want the raw shape without a
// line-protocol or columnar schema.
//
// Grounded in original_source/src/export/newrelic/export.rs (batches encoded
// as a JSON array of event objects and POSTed, 200/202 accepted) using only
// encoding/json and net/http, since no third-party JSON library appears
// anywhere in the example pack for this concern.
package jsonsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/task"
)

// event is the JSON shape emitted for one record.
type event struct {
	Kind    string `json:"kind"`
	Company uint64 `json:"company"`
	Device  uint64 `json:"device"`
	TaskID  uint64 `json:"task_id"`
	TestID  uint64 `json:"test_id"`
	Addr    string `json:"addr,omitempty"`

	StatusCode  *int    `json:"status_code,omitempty"`
	Bytes       *int64  `json:"bytes,omitempty"`
	Sent        *int    `json:"sent,omitempty"`
	Lost        *int    `json:"lost,omitempty"`
	RTTUsec     *int64  `json:"rtt_us,omitempty"`
	RCode       *int    `json:"rcode,omitempty"`
	Answers     []string `json:"answers,omitempty"`
	TLSVersion  *uint16 `json:"tls_version,omitempty"`
	Hops        *int    `json:"hops,omitempty"`
	ElapsedUsec *int64  `json:"elapsed_us,omitempty"`
	Cause       string  `json:"cause,omitempty"`
	TimedOut    bool    `json:"timed_out,omitempty"`
}

// Encoder implements export.Sink's Encode half, emitting a JSON array.
type Encoder struct{}

// NewEncoder returns a JSON array Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode implements export.Sink.
func (e *Encoder) Encode(target *export.Target, records []task.Record) ([]byte, error) {
	events := make([]event, len(records))
	for i, r := range records {
		events[i] = toEvent(target, r)
	}
	buf, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("jsonsink: marshaling %d records: %w", len(records), err)
	}
	return buf, nil
}

func toEvent(target *export.Target, r task.Record) event {
	ev := event{
		Kind:    r.Kind.String(),
		Company: target.Company,
		Device:  target.Device.ID,
		TaskID:  r.TaskID,
		TestID:  r.TestID,
	}
	if r.Addr != nil {
		ev.Addr = r.Addr.String()
	}

	switch r.Kind {
	case task.KindFetch:
		ev.StatusCode = &r.Fetch.StatusCode
		ev.Bytes = &r.Fetch.Bytes
		ev.RTTUsec = usec(r.Fetch.RTT)
	case task.KindKnock:
		ev.Sent = &r.Knock.Sent
		ev.Lost = &r.Knock.Lost
		ev.RTTUsec = usec(r.Knock.RTT.Avg)
	case task.KindPing:
		ev.Sent = &r.Ping.Sent
		ev.Lost = &r.Ping.Lost
		ev.RTTUsec = usec(r.Ping.RTT.Avg)
	case task.KindQuery:
		ev.RCode = &r.Query.RCode
		ev.Answers = r.Query.Answers
		ev.RTTUsec = usec(r.Query.RTT)
	case task.KindShake:
		ev.TLSVersion = &r.Shake.Version
		ev.RTTUsec = usec(r.Shake.RTT)
	case task.KindTrace:
		hops := len(r.Trace.Hops)
		ev.Hops = &hops
		ev.ElapsedUsec = usec(r.Trace.Elapsed)
	case task.KindError:
		ev.Cause = r.Error.Cause
	case task.KindTimeout:
		ev.TimedOut = true
	}
	return ev
}

func usec(d time.Duration) *int64 {
	v := d.Microseconds()
	return &v
}

// Client posts an encoded JSON payload over HTTP, accepting 200/202 as
// success per SPEC_FULL.md §6.
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
		return fmt.Errorf("jsonsink: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jsonsink: posting batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("jsonsink: unexpected status %s", resp.Status)
	}
	return nil
}
