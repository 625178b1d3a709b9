package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met")
}

func TestTickerRunsJob(t *testing.T) {
	s := New(nil)
	var runs atomic.Int64
	require.NoError(t, s.Register(KindCleanup, 20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	waitFor(t, func() bool { return runs.Load() >= 2 })
	st := s.Status()[KindCleanup]
	require.False(t, st.LastSuccess.IsZero())
	require.Empty(t, st.LastError)
}

func TestTriggerRunsImmediately(t *testing.T) {
	s := New(nil)
	var runs atomic.Int64
	require.NoError(t, s.Register(KindFull, time.Hour, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.True(t, s.Trigger(KindFull))
	waitFor(t, func() bool { return runs.Load() == 1 })
}

func TestTriggerUnknownKind(t *testing.T) {
	s := New(nil)
	require.False(t, s.Trigger(Kind("nope")))
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	s := New(nil)
	var started atomic.Int64
	block := make(chan struct{})
	require.NoError(t, s.Register(KindFull, 10*time.Millisecond, func(context.Context) error {
		started.Add(1)
		<-block
		return nil
	}))
	require.NoError(t, s.Start(context.Background()))

	waitFor(t, func() bool { return started.Load() == 1 })
	// Ticks keep firing while the job blocks; none may start a second run.
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int64(1), started.Load())
	require.False(t, s.Trigger(KindFull), "trigger must refuse while running")

	close(block)
	s.Stop()
}

func TestJobErrorIsReported(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register(KindCleanup, time.Hour, func(context.Context) error {
		return errors.New("disk full")
	}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.True(t, s.Trigger(KindCleanup))
	waitFor(t, func() bool { return s.Status()[KindCleanup].LastError == "disk full" })
	require.True(t, s.Status()[KindCleanup].LastSuccess.IsZero())
}

func TestRegisterValidation(t *testing.T) {
	s := New(nil)
	require.Error(t, s.Register(KindFull, 0, func(context.Context) error { return nil }))
	require.Error(t, s.Register(KindFull, time.Second, nil))
	require.NoError(t, s.Register(KindFull, time.Second, func(context.Context) error { return nil }))
	require.Error(t, s.Register(KindFull, time.Second, func(context.Context) error { return nil }))
}

func TestStopWaitsForInflight(t *testing.T) {
	s := New(nil)
	done := make(chan struct{})
	require.NoError(t, s.Register(KindFull, time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return ctx.Err()
	}))
	require.NoError(t, s.Start(context.Background()))
	require.True(t, s.Trigger(KindFull))
	time.Sleep(20 * time.Millisecond)

	s.Stop()
	select {
	case <-done:
	default:
		t.Fatalf("Stop returned before job finished")
	}
}
