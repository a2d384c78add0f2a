// Package jobs holds the concrete scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/seolwon/ivscreen/internal/pipeline"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// ScreeningJob runs the screening pipeline every weekday after the
// close, once the day's volatility snapshot has been ingested.
type ScreeningJob struct {
	orchestrator *pipeline.Orchestrator
	snapshotRef  string
	log          *logger.Logger
}

// NewScreeningJob creates the daily screening job. snapshotRef is the
// standing location of the day's candidate snapshot.
func NewScreeningJob(orchestrator *pipeline.Orchestrator, snapshotRef string, log *logger.Logger) *ScreeningJob {
	return &ScreeningJob{
		orchestrator: orchestrator,
		snapshotRef:  snapshotRef,
		log:          log,
	}
}

func (j *ScreeningJob) Name() string {
	return "daily_screening"
}

// Schedule fires at 16:45 local on weekdays, after the ingest job.
func (j *ScreeningJob) Schedule() string {
	return "0 45 16 * * 1-5"
}

func (j *ScreeningJob) Run(ctx context.Context) error {
	result, err := j.orchestrator.Run(ctx, pipeline.RunConfig{
		SnapshotRef: j.snapshotRef,
		AsOf:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("scheduled screening run: %w", err)
	}

	j.log.WithFields(map[string]interface{}{
		"run_id":   result.RunID,
		"selected": result.Summary.SelectedCount,
	}).Info("Scheduled screening run completed")
	return nil
}
