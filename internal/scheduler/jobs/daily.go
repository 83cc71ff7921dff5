// Package jobs holds the concrete scheduled jobs.
package jobs

import (
	"context"
	"errors"

	"github.com/hmuraoka/kabuto/internal/pipeline"
	"github.com/hmuraoka/kabuto/internal/store"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// defaultDailySpec fires at 18:30 JST on weekdays, after the vendor
// has published the day's quotes.
const defaultDailySpec = "0 30 18 * * 1-5"

// DailyPipelineJob runs the full gated pipeline once per trading day.
// ⭐ SSOT: 日次実行のトリガーはこの Job だけ
type DailyPipelineJob struct {
	runner *pipeline.Runner
	spec   string
	log    *logger.Logger
}

// NewDailyPipelineJob binds the job to a runner. An empty spec uses
// the default evening schedule.
func NewDailyPipelineJob(runner *pipeline.Runner, spec string, log *logger.Logger) *DailyPipelineJob {
	if spec == "" {
		spec = defaultDailySpec
	}
	return &DailyPipelineJob{
		runner: runner,
		spec:   spec,
		log:    log.WithComponent("jobs.daily"),
	}
}

// Name returns the job name.
func (j *DailyPipelineJob) Name() string { return "daily_pipeline" }

// Schedule returns the cron expression.
func (j *DailyPipelineJob) Schedule() string { return j.spec }

// Run refreshes the vendor tail and executes the pipeline. A held
// trade-date lock means another process already owns today's run, so
// the invocation is a no-op, not a failure.
func (j *DailyPipelineJob) Run(ctx context.Context) error {
	result, err := j.runner.Run(ctx, pipeline.RunOptions{Refresh: true})
	if err != nil {
		if errors.Is(err, store.ErrRunLocked) {
			j.log.Info("Trade date already owned by another runner, skipping")
			return nil
		}
		return err
	}

	j.log.WithFields(map[string]interface{}{
		"run_id":     result.RunID,
		"trade_date": result.TradeDate,
		"action":     string(result.Action),
	}).Info("Daily pipeline finished")
	return nil
}
