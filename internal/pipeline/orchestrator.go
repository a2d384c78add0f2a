// Package pipeline coordinates the four-stage screening run:
// S0 snapshot intake, S1 volatility enrichment, S2 classification,
// S3 selection and sizing. Stages are pure with respect to each other;
// invariant gates run between adjacent stages and double as cooperative
// cancellation checkpoints.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seolwon/ivscreen/internal/classify"
	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/invariant"
	"github.com/seolwon/ivscreen/internal/ivrank"
	"github.com/seolwon/ivscreen/internal/selection"
	"github.com/seolwon/ivscreen/pkg/logger"
	"github.com/seolwon/ivscreen/pkg/metrics"
)

// Orchestrator wires the stage components together. Pipeline
// coordination happens here and nowhere else.
type Orchestrator struct {
	loader     SnapshotLoader
	engine     *ivrank.Engine
	classifier *classify.Classifier
	selector   *selection.Engine

	repo     RunRepository
	recorder *metrics.Recorder
	log      *logger.Logger

	// workers bounds the S2 fan-out; 1 means sequential.
	workers int
}

// Options configures optional orchestrator collaborators.
type Options struct {
	// Repo persists run output; nil disables persistence.
	Repo RunRepository
	// Recorder exposes funnel metrics; nil disables them.
	Recorder *metrics.Recorder
	// Workers is the S2 classification fan-out width; values < 1
	// default to 1.
	Workers int
}

// NewOrchestrator creates the run coordinator.
func NewOrchestrator(
	loader SnapshotLoader,
	engine *ivrank.Engine,
	classifier *classify.Classifier,
	selector *selection.Engine,
	opts Options,
	log *logger.Logger,
) *Orchestrator {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		loader:     loader,
		engine:     engine,
		classifier: classifier,
		selector:   selector,
		repo:       opts.Repo,
		recorder:   opts.Recorder,
		log:        log,
		workers:    workers,
	}
}

// RunConfig holds the per-run inputs. All fields are required; there is
// no implicit account balance or default snapshot.
type RunConfig struct {
	RunID       string
	SnapshotRef string
	AsOf        time.Time
}

// Validate rejects runs with missing required inputs before any
// computation starts.
func (c RunConfig) Validate() error {
	if c.SnapshotRef == "" {
		return fmt.Errorf("snapshot reference is required")
	}
	if c.AsOf.IsZero() {
		return fmt.Errorf("as-of date is required")
	}
	return nil
}

// RunResult is the outcome of one pipeline run. Success is conditioned
// on usable output existing; an aborted run never reports partial
// results as complete.
type RunResult struct {
	RunID      string
	Classified []contracts.ClassifiedCandidate
	Report     contracts.SelectionReport
	Summary    contracts.FunnelSummary
	Success    bool
	Duration   time.Duration
}

// Run executes S0 → S3 with invariant gates between stages.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	result := &RunResult{RunID: cfg.RunID}
	summary := &contracts.FunnelSummary{
		RunID:        cfg.RunID,
		SnapshotRef:  cfg.SnapshotRef,
		Timestamp:    start.Unix(),
		StatusCounts: make(map[contracts.Status]int),
	}
	result.Summary = *summary

	log := o.log.WithFields(map[string]interface{}{
		"run_id":       cfg.RunID,
		"snapshot_ref": cfg.SnapshotRef,
		"as_of":        cfg.AsOf.Format("2006-01-02"),
	})
	log.Info("Starting screening run")

	fail := func(stage contracts.Stage, err error) (*RunResult, error) {
		wrapped := fmt.Errorf("%s: %w", stage.ShortName(), err)
		log.WithError(wrapped).Error("Screening run aborted")
		result.Duration = time.Since(start)
		result.Summary = *summary
		o.record("aborted", summary)
		return result, wrapped
	}

	// S0: snapshot intake.
	batch, stage, err := o.runSnapshot(ctx, cfg, log)
	summary.Stages = append(summary.Stages, stage)
	if err != nil {
		return fail(contracts.StageSnapshot, err)
	}
	summary.CandidateCount = len(batch.Candidates)
	summary.SkippedRecords = batch.Skipped

	if err := o.gate(ctx, "upstream-success",
		invariant.Check("upstream-success", invariant.UpstreamSuccess, invariant.CandidateID, batch.Candidates)); err != nil {
		return fail(contracts.StageSnapshot, err)
	}

	// S1: volatility enrichment.
	enriched, stage, err := o.runVolatility(ctx, cfg, batch.Candidates, log)
	summary.Stages = append(summary.Stages, stage)
	if err != nil {
		return fail(contracts.StageVolatility, err)
	}

	if err := o.gate(ctx, "volatility-stamped",
		invariant.Check("volatility-stamped",
			invariant.VolatilityStamped(o.engine.Config().MinHistoryDays),
			invariant.CandidateID, enriched)); err != nil {
		return fail(contracts.StageVolatility, err)
	}

	// S2: classification, optionally fanned out.
	classified, stage := o.runClassify(ctx, enriched, log)
	summary.Stages = append(summary.Stages, stage)
	result.Classified = classified
	for i := range classified {
		summary.StatusCounts[classified[i].Result.Status]++
	}

	if err := o.gate(ctx, "ready-implies-evaluable",
		invariant.Check("ready-implies-evaluable", invariant.ReadyImpliesEvaluable, invariant.ClassifiedID, classified)); err != nil {
		return fail(contracts.StageClassify, err)
	}
	if err := o.gate(ctx, "reason-present",
		invariant.Check("reason-present", invariant.ReasonPresent, invariant.ClassifiedID, classified)); err != nil {
		return fail(contracts.StageClassify, err)
	}
	// Downstream consistency: hard gates must still hold for READY_NOW
	// immediately before selection consumes them.
	if err := o.gate(ctx, "downstream-consistency",
		invariant.Check("downstream-consistency", o.gatesStillClear, invariant.ClassifiedID, classified)); err != nil {
		return fail(contracts.StageClassify, err)
	}

	// S3: selection and sizing.
	report, stage := o.runSelection(classified, log)
	summary.Stages = append(summary.Stages, stage)
	result.Report = report
	summary.SelectedCount = len(report.ValidSelections())

	summary.Completed = true
	result.Success = true
	result.Duration = time.Since(start)
	result.Summary = *summary

	if o.repo != nil {
		if err := o.repo.SaveRun(ctx, result); err != nil {
			// Persistence failure after a completed run is surfaced but
			// does not retroactively invalidate the computed output.
			log.WithError(err).Error("Failed to persist run output")
			return result, fmt.Errorf("persist run %s: %w", cfg.RunID, err)
		}
	}
	o.record("completed", summary)

	log.WithFields(map[string]interface{}{
		"candidates": summary.CandidateCount,
		"ready_now":  summary.StatusCounts[contracts.StatusReadyNow],
		"selected":   summary.SelectedCount,
		"skipped":    summary.SkippedRecords,
		"duration":   result.Duration.Seconds(),
	}).Info("Screening run completed")

	return result, nil
}

// gate is the invariant checkpoint between stages: first a cooperative
// cancellation check, then the violation verdict. Violations are fatal;
// nothing is repaired or filtered.
func (o *Orchestrator) gate(ctx context.Context, name string, v *invariant.Violation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled at gate %q: %w", name, err)
	}
	if v != nil {
		if o.recorder != nil {
			o.recorder.RecordViolation(v.Name)
		}
		return v
	}
	return nil
}

func (o *Orchestrator) gatesStillClear(cc *contracts.ClassifiedCandidate) bool {
	if cc.Result.Status != contracts.StatusReadyNow {
		return true
	}
	return o.classifier.GatesClear(&cc.Candidate)
}

func (o *Orchestrator) runSnapshot(ctx context.Context, cfg RunConfig, log *logger.Logger) (SnapshotBatch, contracts.StageResult, error) {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StageSnapshot}

	batch, err := o.loader.Load(ctx, cfg.SnapshotRef)
	stage.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		stage.Error = err.Error()
		return SnapshotBatch{}, stage, err
	}

	stage.Success = true
	stage.InputCount = len(batch.Candidates) + batch.Skipped
	stage.OutputCount = len(batch.Candidates)
	stage.Skipped = batch.Skipped
	o.observeStage(&stage)

	log.WithFields(map[string]interface{}{
		"candidates": len(batch.Candidates),
		"skipped":    batch.Skipped,
	}).Info("S0 snapshot intake completed")
	return batch, stage, nil
}

func (o *Orchestrator) runVolatility(ctx context.Context, cfg RunConfig, candidates []contracts.Candidate, log *logger.Logger) ([]contracts.Candidate, contracts.StageResult, error) {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StageVolatility, InputCount: len(candidates)}

	enriched, err := o.engine.EnrichBatch(ctx, candidates, cfg.AsOf)
	stage.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		stage.Error = err.Error()
		return nil, stage, err
	}

	stage.Success = true
	stage.OutputCount = len(enriched)
	o.observeStage(&stage)

	available := 0
	for i := range enriched {
		if enriched[i].Volatility.Available {
			available++
		}
	}
	log.WithFields(map[string]interface{}{
		"candidates":   len(enriched),
		"iv_available": available,
	}).Info("S1 volatility enrichment completed")
	return enriched, stage, nil
}

// runClassify fans classification out across workers when configured.
// Output order always matches input order; the invariant gate runs only
// after the whole stage completes.
func (o *Orchestrator) runClassify(ctx context.Context, candidates []contracts.Candidate, log *logger.Logger) ([]contracts.ClassifiedCandidate, contracts.StageResult) {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StageClassify, InputCount: len(candidates)}

	var classified []contracts.ClassifiedCandidate
	if o.workers <= 1 || len(candidates) < o.workers {
		classified = o.classifier.ClassifyAll(candidates)
	} else {
		classified = o.classifyParallel(ctx, candidates)
	}

	stage.Success = true
	stage.OutputCount = len(classified)
	stage.DurationMS = time.Since(start).Milliseconds()
	o.observeStage(&stage)

	log.WithField("candidates", len(classified)).Info("S2 classification completed")
	return classified, stage
}

// classifyParallel splits the batch into contiguous chunks so each
// worker writes disjoint slots of the output slice.
func (o *Orchestrator) classifyParallel(ctx context.Context, candidates []contracts.Candidate) []contracts.ClassifiedCandidate {
	out := make([]contracts.ClassifiedCandidate, len(candidates))
	chunk := (len(candidates) + o.workers - 1) / o.workers

	var wg sync.WaitGroup
	for lo := 0; lo < len(candidates); lo += chunk {
		hi := lo + chunk
		if hi > len(candidates) {
			hi = len(candidates)
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					// Stop producing; the gate after the stage reports
					// the cancellation.
					return
				}
				out[i] = contracts.ClassifiedCandidate{
					Candidate: candidates[i],
					Result:    o.classifier.Classify(&candidates[i]),
				}
			}
		}(lo, hi)
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) runSelection(classified []contracts.ClassifiedCandidate, log *logger.Logger) (contracts.SelectionReport, contracts.StageResult) {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StageSelect, InputCount: len(classified)}

	report := o.selector.SelectAndSize(classified)

	stage.Success = true
	stage.OutputCount = len(report.Selections)
	stage.DurationMS = time.Since(start).Milliseconds()
	o.observeStage(&stage)

	log.WithFields(map[string]interface{}{
		"selections": len(report.Selections),
		"valid":      len(report.ValidSelections()),
		"excluded":   len(report.Excluded),
	}).Info("S3 selection completed")
	return report, stage
}

func (o *Orchestrator) observeStage(stage *contracts.StageResult) {
	if o.recorder != nil {
		o.recorder.RecordStageDuration(stage.Stage.String(), float64(stage.DurationMS)/1000.0)
	}
}

// record pushes the end-of-run funnel counters to Prometheus.
func (o *Orchestrator) record(outcome string, summary *contracts.FunnelSummary) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordRun(outcome)
	o.recorder.RecordSkipped(summary.SkippedRecords)
	for status, count := range summary.StatusCounts {
		o.recorder.RecordStatusCount(string(status), count)
	}
	o.recorder.RecordSelected(summary.SelectedCount)
}
