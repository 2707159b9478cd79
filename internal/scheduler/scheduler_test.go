package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "locate-gateway/internal/common/errors"
)

func TestNew_RejectsBadInterval(t *testing.T) {
	_, err := New(Config{Interval: 0}, func(ctx context.Context, grace time.Duration) (int, error) {
		return 0, nil
	}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestScheduler_RunNow(t *testing.T) {
	var gotGrace time.Duration
	s, err := New(Config{Interval: time.Hour, Grace: 5 * time.Minute}, func(ctx context.Context, grace time.Duration) (int, error) {
		gotGrace = grace
		return 7, nil
	}, nil)
	require.NoError(t, err)

	removed, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, removed)
	assert.Equal(t, 5*time.Minute, gotGrace, "the sweep passes the configured grace")

	stats := s.Stats()
	assert.Equal(t, 7, stats["last_removed"])
}

func TestScheduler_RunNow_PropagatesError(t *testing.T) {
	s, err := New(Config{Interval: time.Hour}, func(ctx context.Context, grace time.Duration) (int, error) {
		return 0, apperrors.StoreError("backend unreachable", nil)
	}, nil)
	require.NoError(t, err)

	_, err = s.RunNow(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStore))
}

func TestScheduler_SweepsOnSchedule(t *testing.T) {
	var calls int32
	s, err := New(Config{Interval: 50 * time.Millisecond}, func(ctx context.Context, grace time.Duration) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 2*time.Second, 10*time.Millisecond, "the sweep fires repeatedly on the interval")
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	s, err := New(Config{Interval: time.Hour}, func(ctx context.Context, grace time.Duration) (int, error) {
		return 0, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	err = s.Start()
	require.Error(t, err)
}

func TestScheduler_StopDuringSweepReturns(t *testing.T) {
	sweepStarted := make(chan struct{})
	var calls int32
	s, err := New(Config{Interval: 20 * time.Millisecond}, func(ctx context.Context, grace time.Duration) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(sweepStarted)
		}
		time.Sleep(300 * time.Millisecond)
		return 1, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())

	select {
	case <-sweepStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never started")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return while a sweep was in flight")
	}

	stats := s.Stats()
	assert.Equal(t, false, stats["running"])
	assert.Contains(t, stats, "last_run", "Stop waits for the in-flight sweep to record its result")
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s, err := New(Config{Interval: time.Hour}, func(ctx context.Context, grace time.Duration) (int, error) {
		return 0, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()

	stats := s.Stats()
	assert.Equal(t, false, stats["running"])
}
