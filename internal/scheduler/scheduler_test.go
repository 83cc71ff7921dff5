package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmuraoka/kabuto/pkg/logger"
)

type fakeJob struct {
	name string
	spec string

	mu   sync.Mutex
	errs []error // consumed per invocation, nil afterwards
	runs int
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.spec }

func (j *fakeJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var err error
	if j.runs < len(j.errs) {
		err = j.errs[j.runs]
	}
	j.runs++
	return err
}

func (j *fakeJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func lastResult(t *testing.T, s *Scheduler, name string) Result {
	t.Helper()
	h, err := s.JobHistory(name)
	require.NoError(t, err)
	last, ok := h.Last()
	require.True(t, ok)
	return last
}

func TestAddRejectsDuplicateAndBadSpec(t *testing.T) {
	s := New(logger.Nop())

	require.NoError(t, s.Add(&fakeJob{name: "a", spec: "0 0 12 * * *"}))
	err := s.Add(&fakeJob{name: "a", spec: "0 0 13 * * *"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = s.Add(&fakeJob{name: "b", spec: "not a cron spec"})
	require.Error(t, err)

	assert.Equal(t, []string{"a"}, s.Jobs())

	_, err = s.JobHistory("missing")
	require.Error(t, err)
}

func TestRunNowRecordsSuccess(t *testing.T) {
	s := New(logger.Nop()).WithRetry(0, time.Millisecond)
	job := &fakeJob{name: "daily", spec: "0 30 18 * * 1-5"}
	require.NoError(t, s.Add(job))

	require.NoError(t, s.RunNow("daily"))
	require.Eventually(t, func() bool { return job.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		h, err := s.JobHistory("daily")
		return err == nil && len(h.Results) == 1
	}, 2*time.Second, 5*time.Millisecond)

	last := lastResult(t, s, "daily")
	assert.True(t, last.Success)
	assert.Equal(t, 1, last.Attempts)
	assert.Empty(t, last.Error)

	stats := s.Stats()["daily"]
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 1.0, stats.SuccessRate)
	require.NotNil(t, stats.LastRun)

	require.Error(t, s.RunNow("missing"))
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	s := New(logger.Nop()).WithRetry(2, time.Millisecond)
	job := &fakeJob{name: "flaky", spec: "0 0 12 * * *", errs: []error{fmt.Errorf("boom"), nil}}
	require.NoError(t, s.Add(job))

	require.NoError(t, s.RunNow("flaky"))
	require.Eventually(t, func() bool {
		h, err := s.JobHistory("flaky")
		return err == nil && len(h.Results) == 1
	}, 2*time.Second, 5*time.Millisecond)

	last := lastResult(t, s, "flaky")
	assert.True(t, last.Success)
	assert.Equal(t, 2, last.Attempts)
	assert.Equal(t, 2, job.count())
}

func TestFailureAfterAllRetries(t *testing.T) {
	s := New(logger.Nop()).WithRetry(2, time.Millisecond)
	errs := []error{fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down")}
	job := &fakeJob{name: "broken", spec: "0 0 12 * * *", errs: errs}
	require.NoError(t, s.Add(job))

	require.NoError(t, s.RunNow("broken"))
	require.Eventually(t, func() bool {
		h, err := s.JobHistory("broken")
		return err == nil && len(h.Results) == 1
	}, 2*time.Second, 5*time.Millisecond)

	last := lastResult(t, s, "broken")
	assert.False(t, last.Success)
	assert.Equal(t, 3, last.Attempts)
	assert.Equal(t, "down", last.Error)

	stats := s.Stats()["broken"]
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Equal(t, "down", stats.LastError)
}

func TestHistoryCapAndRecent(t *testing.T) {
	h := &History{}
	for i := 0; i < historyCap+10; i++ {
		h.Add(Result{Job: "x", Attempts: i, Success: i%2 == 0})
	}

	assert.Len(t, h.Results, historyCap)
	// 先頭の10件は押し出されている
	assert.Equal(t, 10, h.Results[0].Attempts)

	recent := h.Recent(5)
	require.Len(t, recent, 5)
	assert.Equal(t, historyCap+9, recent[4].Attempts)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, historyCap+9, last.Attempts)
}
