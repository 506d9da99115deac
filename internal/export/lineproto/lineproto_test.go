package lineproto

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/task"
)

func TestEncodeEmitsOneLinePerRecord(t *testing.T) {
	target := &export.Target{Company: 7, Device: export.Device{ID: 3}}
	records := []task.Record{
		{TaskID: 1, Kind: task.KindPing, Addr: net.ParseIP("10.0.0.1")},
		{TaskID: 2, Kind: task.KindError, Error: &task.ErrorData{Cause: "refused"}},
	}
	// Ping record needs its payload populated since addFields dereferences it.
	records[0].Ping = &task.PingData{Sent: 3, Lost: 1}

	e := NewEncoder()
	buf, err := e.Encode(target, records)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "synprobe,"))
	require.Contains(t, lines[0], "kind=ping")
	require.Contains(t, lines[1], "kind=error")
	require.Contains(t, lines[1], `cause="refused"`)
}

func TestClientSendAcceptsAcceptedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.Send(context.Background(), []byte("synprobe,kind=ping task_id=1i\n"))
	require.NoError(t, err)
}

func TestClientSendRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.Send(context.Background(), []byte("synprobe,kind=ping task_id=1i\n"))
	require.Error(t, err)
}
