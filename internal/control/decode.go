package control

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kentik/synthetics-agent/internal/task"
)

// wireTasks is the JSON shape DecodeTasks parses, mirroring the control
// plane's Tasks payload (SPEC_FULL.md §3.x/§6).
type wireTasks struct {
	Timestamp int64       `json:"timestamp"`
	Groups    []wireGroup `json:"groups"`
}

type wireGroup struct {
	Company uint64     `json:"company"`
	Device  uint64     `json:"device"`
	Tasks   []wireTask `json:"tasks"`
}

type wireTask struct {
	ID      uint64 `json:"id"`
	TestID  uint64 `json:"test_id"`
	Network uint64 `json:"network"`
	State   string `json:"state"`

	HTTP       *wireHTTP  `json:"http,omitempty"`
	Knock      *wireKnock `json:"knock,omitempty"`
	Ping       *wirePing  `json:"ping,omitempty"`
	DNS        *wireDNS   `json:"dns,omitempty"`
	Shake      *wireShake `json:"shake,omitempty"`
	Traceroute *wireTrace `json:"traceroute,omitempty"`
}

type wireHTTP struct {
	URL      string `json:"url"`
	PeriodMS int64  `json:"period_ms"`
	ExpiryMS int64  `json:"expiry_ms"`
}

type wireKnock struct {
	Target   string `json:"target"`
	Port     int    `json:"port"`
	Count    int    `json:"count"`
	PeriodMS int64  `json:"period_ms"`
	ExpiryMS int64  `json:"expiry_ms"`
}

type wirePing struct {
	Target   string `json:"target"`
	Count    int    `json:"count"`
	PeriodMS int64  `json:"period_ms"`
	ExpiryMS int64  `json:"expiry_ms"`
}

type wireDNS struct {
	Name     string `json:"name"`
	Server   string `json:"server"`
	QType    uint16 `json:"qtype"`
	PeriodMS int64  `json:"period_ms"`
	ExpiryMS int64  `json:"expiry_ms"`
}

type wireShake struct {
	Addr     string `json:"addr"`
	SNI      string `json:"sni"`
	PeriodMS int64  `json:"period_ms"`
	ExpiryMS int64  `json:"expiry_ms"`
}

type wireTrace struct {
	Target   string `json:"target"`
	Probes   int    `json:"probes"`
	Limit    int    `json:"limit"`
	PeriodMS int64  `json:"period_ms"`
	ExpiryMS int64  `json:"expiry_ms"`
}

// DecodeTasks decodes the control plane's task-assignment wire format,
// dispatching each task's {http|knock|ping|dns|shake|traceroute} key to the
// matching task.Config variant (SPEC_FULL.md §6.x).
func DecodeTasks(r io.Reader) (*Tasks, error) {
	var wire wireTasks
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("control: decoding tasks: %w", err)
	}

	out := &Tasks{Timestamp: time.UnixMilli(wire.Timestamp).UTC()}
	for _, wg := range wire.Groups {
		group := Group{Company: wg.Company, Device: wg.Device}
		for _, wt := range wg.Tasks {
			spec, err := decodeTaskSpec(wt)
			if err != nil {
				return nil, fmt.Errorf("control: task %d: %w", wt.ID, err)
			}
			group.Tasks = append(group.Tasks, spec)
		}
		out.Groups = append(out.Groups, group)
	}
	return out, nil
}

func decodeTaskSpec(wt wireTask) (TaskSpec, error) {
	state, err := decodeTaskState(wt.State)
	if err != nil {
		return TaskSpec{}, fmt.Errorf("task %d: %w", wt.ID, err)
	}

	spec := TaskSpec{
		TaskID:  wt.ID,
		TestID:  wt.TestID,
		Network: task.DecodeNetwork(wt.Network),
		State:   state,
	}

	// A Deleted task carries no config worth decoding — the control plane
	// is only telling the executor to stop it (SPEC_FULL.md §4.7).
	if state == TaskDeleted {
		return spec, nil
	}

	switch {
	case wt.HTTP != nil:
		h := wt.HTTP
		spec.Config = task.Config{Kind: task.ConfigFetch, Fetch: &task.FetchConfig{
			URL: h.URL, Period: ms(h.PeriodMS), Expiry: ms(h.ExpiryMS),
		}}
	case wt.Knock != nil:
		k := wt.Knock
		spec.Config = task.Config{Kind: task.ConfigKnock, Knock: &task.KnockConfig{
			Target: k.Target, Port: k.Port, Count: k.Count, Period: ms(k.PeriodMS), Expiry: ms(k.ExpiryMS),
		}}
	case wt.Ping != nil:
		p := wt.Ping
		spec.Config = task.Config{Kind: task.ConfigPing, Ping: &task.PingConfig{
			Target: p.Target, Count: p.Count, Period: ms(p.PeriodMS), Expiry: ms(p.ExpiryMS),
		}}
	case wt.DNS != nil:
		d := wt.DNS
		spec.Config = task.Config{Kind: task.ConfigQuery, Query: &task.QueryConfig{
			Name: d.Name, Server: d.Server, QType: d.QType, Period: ms(d.PeriodMS), Expiry: ms(d.ExpiryMS),
		}}
	case wt.Shake != nil:
		s := wt.Shake
		spec.Config = task.Config{Kind: task.ConfigShake, Shake: &task.ShakeConfig{
			Addr: s.Addr, SNI: s.SNI, Period: ms(s.PeriodMS), Expiry: ms(s.ExpiryMS),
		}}
	case wt.Traceroute != nil:
		tr := wt.Traceroute
		spec.Config = task.Config{Kind: task.ConfigTrace, Trace: &task.TraceConfig{
			Target: tr.Target, Probes: tr.Probes, Limit: tr.Limit, Period: ms(tr.PeriodMS), Expiry: ms(tr.ExpiryMS),
		}}
	default:
		// No recognized {http|knock|ping|dns|shake|traceroute} key — decoded
		// as ConfigUnknown rather than failing DecodeTasks outright, so one
		// bad task doesn't take down every other task in the same payload.
		// The executor rejects it per-task via Config.Validate at insert
		// time (SPEC_FULL.md §7.x), matching
		// original_source/synapi/src/tasks.rs's TaskConfig::Unknown.
		spec.Config = task.Config{Kind: task.ConfigUnknown}
	}
	return spec, nil
}

func decodeTaskState(s string) (TaskState, error) {
	switch s {
	case "", "CREATED":
		return TaskCreated, nil
	case "UPDATED":
		return TaskUpdated, nil
	case "DELETED":
		return TaskDeleted, nil
	default:
		return 0, fmt.Errorf("unknown task state %q", s)
	}
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
