package scheduler

import (
	"context"
	"time"
)

// Job is one schedulable unit of work.
type Job interface {
	// Name identifies the job in logs and history.
	Name() string

	// Run executes the job. The context carries the per-run timeout.
	Run(ctx context.Context) error

	// Schedule returns the cron expression (with seconds field),
	// e.g. "0 30 17 * * 1-5" for 17:30 on weekdays.
	Schedule() string
}

// JobResult records one job execution.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps a bounded window of recent results per job.
type JobHistory struct {
	Results []JobResult
}

const historyLimit = 100

// AddResult appends a result, trimming to the history limit.
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// Latest returns the most recent result, if any.
func (h *JobHistory) Latest() (JobResult, bool) {
	if len(h.Results) == 0 {
		return JobResult{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// SuccessRate returns the fraction of recorded runs that succeeded.
func (h *JobHistory) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0.0
	}
	ok := 0
	for _, r := range h.Results {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(h.Results))
}
