package jsonsink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/task"
)

func TestEncodeProducesOneObjectPerRecord(t *testing.T) {
	target := &export.Target{Company: 5, Device: export.Device{ID: 9}}
	records := []task.Record{
		{TaskID: 1, Kind: task.KindFetch, Fetch: &task.FetchData{StatusCode: 200}},
		{TaskID: 2, Kind: task.KindTimeout},
	}

	e := NewEncoder()
	buf, err := e.Encode(target, records)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf, &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "fetch", decoded[0]["kind"])
	require.Equal(t, float64(200), decoded[0]["status_code"])
	require.Equal(t, "timeout", decoded[1]["kind"])
	require.Equal(t, true, decoded[1]["timed_out"])
}

func TestClientSendAcceptsOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.Send(context.Background(), []byte(`[]`)))
}

func TestClientSendRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.Error(t, c.Send(context.Background(), []byte(`[]`)))
}
