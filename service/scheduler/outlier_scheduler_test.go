package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"redcap-outlier-service/service/distributed_lock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutlierScheduler_StartStop(t *testing.T) {
	s := NewOutlierScheduler(func(ctx context.Context, trigger string) error { return nil },
		distributed_lock.NewLocalLock(), "covid", time.Minute)

	assert.Nil(t, s.NextRun())
	require.NoError(t, s.Start("0 0 3 * * *"))
	assert.Error(t, s.Start("0 0 3 * * *"))

	next := s.NextRun()
	require.NotNil(t, next)
	assert.Equal(t, 3, next.Hour())

	s.Stop()
	assert.Nil(t, s.NextRun())
}

func TestOutlierScheduler_InvalidSpec(t *testing.T) {
	s := NewOutlierScheduler(func(ctx context.Context, trigger string) error { return nil },
		distributed_lock.NewLocalLock(), "covid", time.Minute)

	err := s.Start("every day")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron表达式无效")
}

func TestOutlierScheduler_RunScheduled(t *testing.T) {
	var triggers []string
	runErr := errors.New("redcap unavailable")
	s := NewOutlierScheduler(func(ctx context.Context, trigger string) error {
		triggers = append(triggers, trigger)
		return runErr
	}, distributed_lock.NewLocalLock(), "covid", time.Minute)

	s.runScheduled()
	assert.Equal(t, []string{TriggerSchedule}, triggers)
	lastRun, err := s.LastResult()
	assert.False(t, lastRun.IsZero())
	assert.ErrorIs(t, err, runErr)
}

func TestOutlierScheduler_SkipsWhenLockHeld(t *testing.T) {
	lock := distributed_lock.NewLocalLock()
	_, err := lock.TryLock(context.Background(), "project:covid", time.Minute)
	require.NoError(t, err)

	called := false
	s := NewOutlierScheduler(func(ctx context.Context, trigger string) error {
		called = true
		return nil
	}, lock, "covid", time.Minute)

	s.runScheduled()
	assert.False(t, called)
	lastRun, _ := s.LastResult()
	assert.True(t, lastRun.IsZero())
}
