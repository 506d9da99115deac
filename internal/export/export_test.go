package export

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/task"
)

// recordingSink captures every batch handed to Send, for assertion.
type recordingSink struct {
	mu     sync.Mutex
	sent   [][]byte
	encode func(target *Target, records []task.Record) ([]byte, error)
}

func (s *recordingSink) Encode(target *Target, records []task.Record) ([]byte, error) {
	if s.encode != nil {
		return s.encode(target, records)
	}
	return []byte{byte(len(records))}, nil
}

func (s *recordingSink) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, payload)
	return nil
}

func (s *recordingSink) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

func TestQueuePublishGroupsByTarget(t *testing.T) {
	q := NewQueue()
	a := &Target{Company: 1, Device: Device{ID: 10}}
	b := &Target{Company: 1, Device: Device{ID: 20}}

	for i := 0; i < 5; i++ {
		q.Publish(a, task.Record{TaskID: uint64(i)})
		q.Publish(b, task.Record{TaskID: uint64(i) + 100})
	}

	stats := q.Snapshot()
	require.Equal(t, 2, stats.Batches)
	require.Equal(t, 10, stats.Records)

	batches := q.drain()
	require.Len(t, batches, 2)
	require.Len(t, batches[KeyFor(a)].Records, 5)
	require.Len(t, batches[KeyFor(b)].Records, 5)
	for i, r := range batches[KeyFor(a)].Records {
		require.Equal(t, uint64(i), r.TaskID)
	}

	// queue was swapped out, not merely copied
	require.Equal(t, Stats{}, q.Snapshot())
}

func TestFlusherDispatchesOneBatchPerTarget(t *testing.T) {
	q := NewQueue()
	sink := &recordingSink{}
	f := &Flusher{Queue: q, Sink: sink, Interval: 5 * time.Millisecond}

	a := &Target{Company: 1, Device: Device{ID: 10}}
	b := &Target{Company: 2, Device: Device{ID: 20}}
	for i := 0; i < 5; i++ {
		q.Publish(a, task.Record{TaskID: uint64(i)})
		q.Publish(b, task.Record{TaskID: uint64(i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Millisecond)
	defer cancel()
	f.Run(ctx)

	sent := sink.snapshot()
	require.Len(t, sent, 2)
	for _, payload := range sent {
		require.Equal(t, byte(5), payload[0])
	}
	require.Equal(t, Stats{}, q.Snapshot())
}

func TestFlusherDropsBatchOnEncodeFailure(t *testing.T) {
	q := NewQueue()
	sink := &recordingSink{encode: func(target *Target, records []task.Record) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}}
	f := &Flusher{Queue: q, Sink: sink, Interval: 5 * time.Millisecond}

	q.Publish(&Target{Company: 1, Device: Device{ID: 1}}, task.Record{})

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Millisecond)
	defer cancel()
	f.Run(ctx)

	require.Empty(t, sink.snapshot())
}
