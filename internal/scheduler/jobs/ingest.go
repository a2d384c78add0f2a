package jobs

import (
	"context"
	"fmt"

	"github.com/seolwon/ivscreen/internal/ingest"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// IngestJob pulls the day's volatility snapshot into the history store
// ahead of the screening run.
type IngestJob struct {
	fetcher *ingest.Fetcher
	url     string
	log     *logger.Logger
}

// NewIngestJob creates the daily snapshot ingestion job.
func NewIngestJob(fetcher *ingest.Fetcher, url string, log *logger.Logger) *IngestJob {
	return &IngestJob{fetcher: fetcher, url: url, log: log}
}

func (j *IngestJob) Name() string {
	return "daily_snapshot_ingest"
}

// Schedule fires at 16:30 local on weekdays, before the screening job.
func (j *IngestJob) Schedule() string {
	return "0 30 16 * * 1-5"
}

func (j *IngestJob) Run(ctx context.Context) error {
	report, err := j.fetcher.Fetch(ctx, j.url)
	if err != nil {
		return fmt.Errorf("scheduled snapshot ingest: %w", err)
	}

	j.log.WithFields(map[string]interface{}{
		"written":    report.Written,
		"malformed":  report.SkippedMalformed,
		"duplicates": report.SkippedDuplicates,
	}).Info("Scheduled snapshot ingest completed")
	return nil
}
