package scheduler

import (
	"context"
	"time"
)

// historyCap bounds the in-memory result history per job.
const historyCap = 50

// Job is one schedulable unit of work.
// ⭐ SSOT: スケジュール対象の形はここだけ
type Job interface {
	// Name identifies the job in history and stats.
	Name() string

	// Schedule returns the cron expression, with a seconds field.
	Schedule() string

	// Run executes one invocation. Returning nil includes the case
	// where the job decided there was nothing to do.
	Run(ctx context.Context) error
}

// Result records one job invocation.
type Result struct {
	Job        string        `json:"job"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
}

// History keeps the most recent results of one job, newest last.
type History struct {
	Results []Result
}

// Add appends a result, dropping the oldest past the cap.
func (h *History) Add(r Result) {
	h.Results = append(h.Results, r)
	if len(h.Results) > historyCap {
		h.Results = h.Results[len(h.Results)-historyCap:]
	}
}

// Recent returns the latest n results, oldest first.
func (h *History) Recent(n int) []Result {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	return append([]Result(nil), h.Results[len(h.Results)-n:]...)
}

// Last returns the most recent result, if any.
func (h *History) Last() (Result, bool) {
	if len(h.Results) == 0 {
		return Result{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// SuccessRate reports the fraction of retained results that succeeded.
func (h *History) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0
	}
	ok := 0
	for _, r := range h.Results {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(h.Results))
}
