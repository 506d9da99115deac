package columnar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gogo/protobuf/proto"
	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/task"
)

func fullDevice() export.Device {
	return export.Device{
		ID: 42,
		Columns: []export.Column{
			{ID: 1, Name: ColAppProtocol, Kind: export.ColumnUInt32},
			{ID: 2, Name: ColDestAddr, Kind: export.ColumnAddr},
			{ID: 3, Name: ColRTTUsec, Kind: export.ColumnUInt64},
			{ID: 4, Name: ColTaskID, Kind: export.ColumnUInt64},
			{ID: 5, Name: ColCause, Kind: export.ColumnString},
		},
	}
}

func TestEncodeFailsFastOnMissingColumn(t *testing.T) {
	target := &export.Target{Device: export.Device{ID: 1}} // no columns assigned
	e := NewEncoder()
	_, err := e.Encode(target, []task.Record{{Kind: task.KindPing}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing column")
}

func TestEncodeProducesOneFramePerRecord(t *testing.T) {
	target := &export.Target{Company: 9, Device: fullDevice()}
	e := NewEncoder()
	records := []task.Record{
		{TaskID: 1, Kind: task.KindError, Error: &task.ErrorData{Cause: "boom"}},
		{TaskID: 2, Kind: task.KindTimeout},
	}
	buf, err := e.Encode(target, records)
	require.NoError(t, err)

	count, n := proto.DecodeVarint(buf)
	require.Equal(t, uint64(len(records)), count)
	require.Greater(t, n, 0)
}

func TestClientSendAcceptsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.Send(context.Background(), []byte{0x01}))
}

func TestClientSendRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.Error(t, c.Send(context.Background(), []byte{0x01}))
}
