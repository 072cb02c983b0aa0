package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStart_WithoutReportFunction(t *testing.T) {
	s := New("", time.UTC, zap.NewNop())
	require.NoError(t, s.Start())
	require.False(t, s.IsRunning())
	s.Stop()
}

func TestStartStop(t *testing.T) {
	s := New(DefaultSpec, time.UTC, zap.NewNop())
	s.SetReportFunction(func(ctx context.Context) error { return nil })

	require.NoError(t, s.Start())
	require.True(t, s.IsRunning())
	require.Len(t, s.cron.Entries(), 1)

	s.Stop()
	require.False(t, s.IsRunning())
}

func TestStart_InvalidSpec(t *testing.T) {
	s := New("every evening", time.UTC, zap.NewNop())
	s.SetReportFunction(func(ctx context.Context) error { return nil })

	require.Error(t, s.Start())
	require.False(t, s.IsRunning())
	s.Stop()
}

func TestTrigger_PassesSchedulerContext(t *testing.T) {
	s := New("", nil, nil)
	var calls int
	var got context.Context
	s.SetReportFunction(func(ctx context.Context) error {
		calls++
		got = ctx
		return errors.New("send failed")
	})

	s.trigger()
	require.Equal(t, 1, calls)
	require.NoError(t, got.Err())

	s.Stop()
	require.Error(t, got.Err())
}
