package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticWatcherEmitsResetThenTasks(t *testing.T) {
	w := NewStaticWatcher([]Group{{Company: 1, Device: 2}}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	first := <-w.Events()
	require.Equal(t, EventReset, first.Kind)

	second := <-w.Events()
	require.Equal(t, EventTasks, second.Kind)
	require.Len(t, second.Tasks.Groups, 1)
	require.Equal(t, uint64(1), second.Tasks.Groups[0].Company)

	cancel()
	<-done
}

func TestStaticWatcherRetriesBeforeConnecting(t *testing.T) {
	w := NewStaticWatcher([]Group{{Company: 9}}, 0)
	w.FailFirst = 2

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	first := <-w.Events()
	require.Equal(t, EventReset, first.Kind)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	cancel()
	<-done
}

func TestStaticWatcherRepeatsOnInterval(t *testing.T) {
	w := NewStaticWatcher([]Group{{Company: 3}}, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	<-w.Events() // reset
	<-w.Events() // first tasks
	<-w.Events() // second tasks (on tick)

	cancel()
	<-done
}
