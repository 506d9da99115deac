package task

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/status"
)

// collector is a test Envoy that records every published Record.
type collector struct {
	mu      sync.Mutex
	records []Record
}

func (c *collector) Publish(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *collector) snapshot() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

func TestTaskRunPublishesOneRecordPerPeriod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	envoy := &collector{}
	var st status.Status
	tk := &Task{
		TaskID: 1, TestID: 2,
		Network: NetworkDual,
		Config: Config{
			Kind: ConfigFetch,
			Fetch: &FetchConfig{
				URL:    srv.URL,
				Period: 10 * time.Millisecond,
				Expiry: time.Second,
			},
		},
		Resolver: NewResolver(),
		Envoy:    envoy,
		Engines:  &Engines{},
		Counters: &st.Counters,
		Tallies:  &st.Tallies,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	tk.Run(ctx)

	records := envoy.snapshot()
	require.GreaterOrEqual(t, len(records), 2)
	for _, r := range records {
		require.Equal(t, KindFetch, r.Kind)
		require.Equal(t, uint64(1), r.TaskID)
		require.Equal(t, http.StatusOK, r.Fetch.StatusCode)
	}
}

func TestTaskRunClassifiesTimeout(t *testing.T) {
	envoy := &collector{}
	var st status.Status
	tk := &Task{
		TaskID: 3, TestID: 4,
		Network: NetworkDual,
		Config: Config{
			Kind: ConfigFetch,
			Fetch: &FetchConfig{
				URL:    "http://127.0.0.1:1", // nothing listening; dial will hang/err
				Period: 5 * time.Millisecond,
				Expiry: 5 * time.Millisecond,
			},
		},
		Resolver: NewResolver(),
		Envoy:    envoy,
		Engines:  &Engines{},
		Counters: &st.Counters,
		Tallies:  &st.Tallies,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	tk.Run(ctx)

	records := envoy.snapshot()
	require.NotEmpty(t, records)
	for _, r := range records {
		require.Contains(t, []Kind{KindTimeout, KindError}, r.Kind)
	}
}

func TestTaskRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	envoy := &collector{}
	var st status.Status
	tk := &Task{
		TaskID: 5,
		Config: Config{
			Kind: ConfigFetch,
			Fetch: &FetchConfig{
				URL:    srv.URL,
				Period: time.Hour,
				Expiry: time.Second,
			},
		},
		Resolver: NewResolver(),
		Envoy:    envoy,
		Engines:  &Engines{},
		Counters: &st.Counters,
		Tallies:  &st.Tallies,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not stop after cancellation")
	}
	require.Len(t, envoy.snapshot(), 1)
}
