// Package scheduler runs the daily pipeline and housekeeping jobs on
// cron schedules, with bounded retry and an in-memory run history.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Minute
)

// Scheduler owns the cron loop. Schedules are interpreted in JST;
// the trading day the jobs serve is defined there.
// ⭐ SSOT: ジョブの登録と実行はここだけ
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger

	mu      sync.RWMutex
	jobs    map[string]Job
	history map[string]*History

	maxRetries int
	retryDelay time.Duration
}

// New creates an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(calendar.JST)),
		log:        log.WithComponent("scheduler"),
		jobs:       make(map[string]Job),
		history:    make(map[string]*History),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// WithRetry overrides the retry policy.
func (s *Scheduler) WithRetry(maxRetries int, delay time.Duration) *Scheduler {
	s.maxRetries = maxRetries
	s.retryDelay = delay
	return s
}

// Add registers a job under its schedule. Job names must be unique.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	if _, err := s.cron.AddFunc(job.Schedule(), func() { s.runJob(job) }); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.history[name] = &History{}

	s.log.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job registered")
	return nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.log.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts the schedules and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.log.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// RunNow fires a job immediately, off-schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job %s not registered", name)
	}
	go s.runJob(job)
	return nil
}

// runJob executes one invocation with bounded retry and records the
// outcome.
func (s *Scheduler) runJob(job Job) {
	name := job.Name()
	started := time.Now()

	s.log.WithField("job", name).Info("Job started")

	var lastErr error
	attempts := 0
	success := false
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		attempts++
		if err := job.Run(context.Background()); err == nil {
			success = true
			break
		} else {
			lastErr = err
		}

		s.log.WithFields(map[string]interface{}{
			"job":     name,
			"attempt": attempts,
			"error":   lastErr.Error(),
		}).Warn("Job attempt failed")

		if attempt < s.maxRetries {
			time.Sleep(s.retryDelay)
		}
	}

	finished := time.Now()
	result := Result{
		Job:        name,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		Attempts:   attempts,
		Success:    success,
	}
	if !success && lastErr != nil {
		result.Error = lastErr.Error()
	}

	s.mu.Lock()
	if h, ok := s.history[name]; ok {
		h.Add(result)
	}
	s.mu.Unlock()

	if success {
		s.log.WithFields(map[string]interface{}{
			"job":        name,
			"attempts":   attempts,
			"elapsed_ms": result.Duration.Milliseconds(),
		}).Info("Job completed")
		return
	}
	s.log.WithFields(map[string]interface{}{
		"job":        name,
		"attempts":   attempts,
		"elapsed_ms": result.Duration.Milliseconds(),
		"error":      result.Error,
	}).Error("Job failed after all retries")
}

// Jobs lists the registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobHistory returns a copy of one job's result history.
func (s *Scheduler) JobHistory(name string) (*History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not registered", name)
	}
	return &History{Results: append([]Result(nil), h.Results...)}, nil
}

// JobStats summarizes one job for the status surface.
type JobStats struct {
	Job         string     `json:"job"`
	Schedule    string     `json:"schedule"`
	Runs        int        `json:"runs"`
	Failures    int        `json:"failures"`
	SuccessRate float64    `json:"success_rate"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Stats summarizes every registered job.
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, h := range s.history {
		st := JobStats{
			Job:         name,
			Schedule:    s.jobs[name].Schedule(),
			Runs:        len(h.Results),
			SuccessRate: h.SuccessRate(),
		}
		for _, r := range h.Results {
			if !r.Success {
				st.Failures++
			}
		}
		if last, ok := h.Last(); ok {
			t := last.StartedAt
			st.LastRun = &t
			if !last.Success {
				st.LastError = last.Error
			}
		}
		stats[name] = st
	}
	return stats
}
