package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "petitchat/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/10 * * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "every", raw: "every:5m", kind: SpecInterval, source: "duration", duration: 5 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
		{name: "every hhmm", raw: "EVERY: 00:10", kind: SpecInterval, source: "hhmm", duration: 10 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.kind, got.Kind)
			require.Equal(t, tt.source, got.Source)
			if tt.kind == SpecInterval {
				require.Equal(t, tt.duration, got.Every)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "every:", "every:-5m", "0s", "00:00", "01:75", "cron:"} {
		_, err := ParseSchedule(raw)
		require.Error(t, err, raw)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	job := func(context.Context) {}
	_, err := New(Config{Schedule: "61 * * * *"}, job, logx.Nop())
	require.Error(t, err)

	_, err = New(Config{Schedule: "10m", Timezone: "Mars/Olympus"}, job, logx.Nop())
	require.Error(t, err)

	_, err = New(Config{Schedule: "10m"}, nil, logx.Nop())
	require.Error(t, err)
}

func TestCronNextHonoursTimezone(t *testing.T) {
	l, err := New(Config{Schedule: "0 9 * * *", Timezone: "UTC"}, func(context.Context) {}, logx.Nop())
	require.NoError(t, err)

	from := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	want := time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)
	got := l.Next(from)
	require.True(t, want.Equal(got), "next = %v, want %v", got, want)
}

func TestIntervalLoopRunsWithoutOverlap(t *testing.T) {
	var runs, active, maxActive int32
	job := func(ctx context.Context) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&runs, 1)
	}

	l, err := New(Config{Schedule: "10ms", RunOnStart: true}, job, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestRunOnStartDisabledWaitsForFirstTick(t *testing.T) {
	var runs int32
	l, err := New(Config{Schedule: "1h"}, func(context.Context) { atomic.AddInt32(&runs, 1) }, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Run(ctx), context.DeadlineExceeded)
	require.Zero(t, atomic.LoadInt32(&runs))
}

func TestCronLoopStopsOnCancel(t *testing.T) {
	var runs int32
	l, err := New(Config{Schedule: "@every 1h", RunOnStart: true}, func(context.Context) { atomic.AddInt32(&runs, 1) }, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Run(ctx), context.DeadlineExceeded)
	require.Equal(t, int32(1), atomic.LoadInt32(&runs))
}
