package control

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/task"
)

const fixture = `{
  "timestamp": 1700000000000,
  "groups": [
    {
      "company": 1,
      "device": 2,
      "tasks": [
        {"id": 10, "test_id": 100, "network": 0, "ping": {"target": "10.0.0.1", "count": 5, "period_ms": 60000, "expiry_ms": 5000}},
        {"id": 11, "test_id": 101, "network": 1, "traceroute": {"target": "2001:db8::1", "probes": 3, "limit": 30, "period_ms": 60000, "expiry_ms": 10000}},
        {"id": 12, "test_id": 102, "network": 2, "http": {"url": "https://example.com", "period_ms": 30000, "expiry_ms": 4000}}
      ]
    }
  ]
}`

func TestDecodeTasksDispatchesVariants(t *testing.T) {
	tasks, err := DecodeTasks(strings.NewReader(fixture))
	require.NoError(t, err)
	require.Equal(t, int64(1700000000000), tasks.Timestamp.UnixMilli())
	require.Len(t, tasks.Groups, 1)

	g := tasks.Groups[0]
	require.Equal(t, uint64(1), g.Company)
	require.Equal(t, uint64(2), g.Device)
	require.Len(t, g.Tasks, 3)

	ping := g.Tasks[0]
	require.Equal(t, task.NetworkIPv4, ping.Network)
	require.Equal(t, task.ConfigPing, ping.Config.Kind)
	require.Equal(t, "10.0.0.1", ping.Config.Ping.Target)
	require.Equal(t, 5*time.Second, ping.Config.Ping.Expiry)

	tr := g.Tasks[1]
	require.Equal(t, task.NetworkIPv6, tr.Network)
	require.Equal(t, task.ConfigTrace, tr.Config.Kind)
	require.Equal(t, 30, tr.Config.Trace.Limit)

	httpTask := g.Tasks[2]
	require.Equal(t, task.NetworkDual, httpTask.Network)
	require.Equal(t, task.ConfigFetch, httpTask.Config.Kind)
	require.Equal(t, "https://example.com", httpTask.Config.Fetch.URL)
}

func TestDecodeTasksAcceptsUnknownVariantAsConfigUnknown(t *testing.T) {
	tasks, err := DecodeTasks(strings.NewReader(`{"timestamp":0,"groups":[{"company":1,"device":1,"tasks":[{"id":1}]}]}`))
	require.NoError(t, err)
	require.Len(t, tasks.Groups, 1)
	require.Len(t, tasks.Groups[0].Tasks, 1)
	require.Equal(t, task.ConfigUnknown, tasks.Groups[0].Tasks[0].Config.Kind)
}

func TestDecodeTasksRejectsMalformedState(t *testing.T) {
	_, err := DecodeTasks(strings.NewReader(`{"timestamp":0,"groups":[{"company":1,"device":1,"tasks":[{"id":1,"state":"BOGUS"}]}]}`))
	require.Error(t, err)
}

func TestDecodeTasksState(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want TaskState
	}{
		{"", TaskCreated},
		{`,"state":"CREATED"`, TaskCreated},
		{`,"state":"UPDATED"`, TaskUpdated},
		{`,"state":"DELETED"`, TaskDeleted},
	} {
		body := `{"timestamp":0,"groups":[{"company":1,"device":1,"tasks":[{"id":1` + tc.raw + `}]}]}`
		tasks, err := DecodeTasks(strings.NewReader(body))
		require.NoError(t, err)
		require.Equal(t, tc.want, tasks.Groups[0].Tasks[0].State)
	}
}

func TestDecodeAuth(t *testing.T) {
	require.Equal(t, Auth{Status: AuthOk, Agent: 5, Session: "s1"}, DecodeAuth(0, 5, "s1"))
	require.Equal(t, Auth{Status: AuthWait}, DecodeAuth(1, 5, "s1"))
	require.Equal(t, Auth{Status: AuthDeny}, DecodeAuth(3, 5, "s1"))
}
