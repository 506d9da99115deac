package exec

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/control"
	"github.com/kentik/synthetics-agent/internal/task"
)

// collector is a test-double Envoy recording every published record.
type collector struct {
	mu      sync.Mutex
	records []task.Record
}

func (c *collector) Publish(r task.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func fetchSpec(id uint64, url string, period time.Duration) control.TaskSpec {
	return control.TaskSpec{
		TaskID: id,
		TestID: id * 10,
		State:  control.TaskCreated,
		Config: task.Config{Kind: task.ConfigFetch, Fetch: &task.FetchConfig{
			URL: url, Period: period, Expiry: 200 * time.Millisecond,
		}},
	}
}

func deletedSpec(id uint64) control.TaskSpec {
	return control.TaskSpec{TaskID: id, State: control.TaskDeleted}
}

func newExecutor(envoy *collector) *Executor {
	return NewExecutor(&task.Engines{}, task.NewResolver(), func(company, device uint64) task.Envoy {
		return envoy
	}, nil)
}

func TestExecutorStartsAndStopsOnReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer srv.Close()

	envoy := &collector{}
	e := newExecutor(envoy)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	events := make(chan control.Event, 16)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, events) }()

	events <- control.Event{Kind: control.EventTasks, Tasks: &control.Tasks{
		Groups: []control.Group{{Company: 1, Device: 2, Tasks: []control.TaskSpec{
			fetchSpec(1, srv.URL, 5*time.Millisecond),
		}}},
	}}

	require.Eventually(t, func() bool { return e.Running() == 1 }, 100*time.Millisecond, 2*time.Millisecond)
	require.Eventually(t, func() bool { return envoy.count() > 0 }, 100*time.Millisecond, 2*time.Millisecond)

	events <- control.Event{Kind: control.EventReset}
	require.Eventually(t, func() bool { return e.Running() == 0 }, 100*time.Millisecond, 2*time.Millisecond)

	cancel()
	<-done
}

func TestExecutorReconcileAddsAndRemoves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer srv.Close()

	envoy := &collector{}
	e := newExecutor(envoy)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	events := make(chan control.Event, 16)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, events) }()

	events <- control.Event{Kind: control.EventTasks, Tasks: &control.Tasks{
		Groups: []control.Group{{Company: 1, Device: 2, Tasks: []control.TaskSpec{
			fetchSpec(1, srv.URL, time.Hour),
			fetchSpec(2, srv.URL, time.Hour),
		}}},
	}}
	require.Eventually(t, func() bool { return e.Running() == 2 }, 100*time.Millisecond, 2*time.Millisecond)

	// A delta event explicitly deleting task 2 stops it; task 1, unmentioned,
	// keeps running untouched — a Tasks event is a delta, not a full resend.
	events <- control.Event{Kind: control.EventTasks, Tasks: &control.Tasks{
		Groups: []control.Group{{Company: 1, Device: 2, Tasks: []control.TaskSpec{
			deletedSpec(2),
		}}},
	}}
	require.Eventually(t, func() bool { return e.Running() == 1 }, 100*time.Millisecond, 2*time.Millisecond)

	cancel()
	<-done
}

func TestExecutorRejectsUnsupportedConfigKind(t *testing.T) {
	envoy := &collector{}
	e := newExecutor(envoy)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	events := make(chan control.Event, 16)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, events) }()

	events <- control.Event{Kind: control.EventTasks, Tasks: &control.Tasks{
		Groups: []control.Group{{Company: 1, Device: 2, Tasks: []control.TaskSpec{
			{TaskID: 9, State: control.TaskCreated, Config: task.Config{Kind: task.ConfigUnknown}},
		}}},
	}}

	// Give reconcile a moment to process the event, then confirm nothing spawned.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, e.Running())

	cancel()
	<-done
}

func TestExecutorRejectsFailingDeviceValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer srv.Close()

	envoy := &collector{}
	e := newExecutor(envoy)
	e.SetDeviceValidator(func(company, device uint64) error {
		return fmt.Errorf("device %d missing required column", device)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	events := make(chan control.Event, 16)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, events) }()

	events <- control.Event{Kind: control.EventTasks, Tasks: &control.Tasks{
		Groups: []control.Group{{Company: 1, Device: 2, Tasks: []control.TaskSpec{
			fetchSpec(1, srv.URL, time.Hour),
		}}},
	}}

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, e.Running())

	cancel()
	<-done
}

func TestExecutorReportDoesNotPanic(t *testing.T) {
	e := newExecutor(&collector{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	events := make(chan control.Event, 16)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, events) }()

	events <- control.Event{Kind: control.EventReport}
	cancel()
	<-done
}
