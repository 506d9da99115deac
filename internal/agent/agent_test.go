package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/control"
	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/task"
)

// recordingSink counts encode/send calls without caring about payload
// shape, enough to prove the flusher ran against real exported records.
type recordingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *recordingSink) Encode(target *export.Target, records []task.Record) ([]byte, error) {
	return []byte{byte(len(records))}, nil
}

func (s *recordingSink) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestAgentRunsFetchTaskEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer srv.Close()

	watcher := control.NewStaticWatcher([]control.Group{{
		Company: 1, Device: 2,
		Tasks: []control.TaskSpec{{
			TaskID: 1, TestID: 10,
			Config: task.Config{Kind: task.ConfigFetch, Fetch: &task.FetchConfig{
				URL: srv.URL, Period: 5 * time.Millisecond, Expiry: 100 * time.Millisecond,
			}},
		}},
	}}, 0)

	queue := export.NewQueue()
	sink := &recordingSink{}
	a := New(watcher, &task.Engines{}, queue, sink, nil, nil)
	a.Flusher.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := a.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Greater(t, sink.count(), 0)
}
