package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestRunJobNow(t *testing.T) {
	s := newTestScheduler(t)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddCronJob("sweep", "Receipt sweep", "0 3 * * *", func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))
	s.Start()

	info, ok := s.GetJob("sweep")
	require.True(t, ok)
	assert.Equal(t, JobStatusScheduled, info.Status)

	require.NoError(t, s.RunJobNow("sweep"))
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	require.Eventually(t, func() bool {
		info, _ := s.GetJob("sweep")
		return info.Status == JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	info, _ = s.GetJob("sweep")
	assert.Equal(t, 1, info.RunCount)
	assert.Zero(t, info.ErrorCount)
}

func TestFailingJob(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.AddCronJob("broken", "Broken", "0 3 * * *", func(ctx context.Context) error {
		return errors.New("boom")
	}))
	s.Start()

	require.NoError(t, s.RunJobNow("broken"))
	require.Eventually(t, func() bool {
		info, _ := s.GetJob("broken")
		return info.Status == JobStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	info, _ := s.GetJob("broken")
	assert.Equal(t, 1, info.ErrorCount)
	assert.Equal(t, "boom", info.LastError)
}

func TestAddCronJobErrors(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.AddCronJob("bad", "Bad", "not a cron", noop))
	_, ok := s.GetJob("bad")
	assert.False(t, ok)

	require.NoError(t, s.AddCronJob("job", "Job", "*/5 * * * *", noop))
	assert.Error(t, s.AddCronJob("job", "Job", "*/5 * * * *", noop))

	assert.Error(t, s.RunJobNow("missing"))
}
