package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolwon/ivscreen/internal/classify"
	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/history"
	"github.com/seolwon/ivscreen/internal/ivrank"
	"github.com/seolwon/ivscreen/internal/selection"
	"github.com/seolwon/ivscreen/pkg/logger"
)

var testAsOf = time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

// seedHistory writes n business-day observations ending just before asOf
// with IVs cycling through a small spread around base.
func seedHistory(t *testing.T, store history.Store, symbol string, n int, base float64) {
	t.Helper()
	observations := make([]contracts.VolatilityObservation, 0, n)
	for i := 0; i < n; i++ {
		observations = append(observations, contracts.VolatilityObservation{
			Symbol:    symbol,
			Date:      testAsOf.AddDate(0, 0, -(i + 1)),
			IVByTenor: map[int]float64{30: base + float64(i%10)*0.01},
			Source:    "test",
			Quality:   contracts.QualityFull,
		})
	}
	res, err := store.Append(context.Background(), observations)
	require.NoError(t, err)
	require.Equal(t, n, res.Written)
}

func snapshotCandidate(symbol string, score float64) contracts.Candidate {
	return contracts.Candidate{
		ID:                 symbol + "-1",
		Symbol:             symbol,
		Family:             contracts.FamilyDirectional,
		Strategy:           "bull_put_spread",
		Expiration:         testAsOf.AddDate(0, 2, 0),
		Strikes:            []float64{95, 100},
		CurrentIV:          0.5,
		ComparisonScore:    score,
		EstimatedCost:      400,
		MaxLossPerContract: 450,
		Structural: contracts.StructuralEvidence{
			Score:              score,
			Trend:              contracts.TrendUp,
			TrendStrength:      0.7,
			Bias:               contracts.DirectionLong,
			Week52Position:     0.5,
			FetchOK:            true,
			ReadyForEvaluation: true,
		},
		Execution: contracts.ExecutionEvidence{
			Depth:        contracts.DepthUnknown,
			Balance:      contracts.BalanceUnknown,
			Quality:      contracts.ExecUnknown,
			DividendRisk: contracts.DividendUnknown,
		},
	}
}

func writeSnapshot(t *testing.T, candidates []contracts.Candidate) string {
	t.Helper()
	data, err := json.Marshal(candidates)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestOrchestrator(t *testing.T, store history.Store, workers int) *Orchestrator {
	t.Helper()
	log := logger.Nop()

	engine, err := ivrank.NewEngine(store, ivrank.DefaultConfig(), log)
	require.NoError(t, err)

	classifier, err := classify.New(classify.DefaultConfig())
	require.NoError(t, err)

	selCfg := selection.DefaultConfig()
	selCfg.AccountBalance = 100_000
	selector, err := selection.NewEngine(selCfg)
	require.NoError(t, err)

	return NewOrchestrator(NewFileSnapshotLoader(log), engine, classifier, selector,
		Options{Workers: workers}, log)
}

func TestRunHappyPath(t *testing.T) {
	store := history.NewMemoryStore()
	seedHistory(t, store, "AAPL", 252, 0.30)
	seedHistory(t, store, "MSFT", 252, 0.28)

	o := newTestOrchestrator(t, store, 1)
	ref := writeSnapshot(t, []contracts.Candidate{
		snapshotCandidate("AAPL", 85),
		snapshotCandidate("MSFT", 75),
	})

	result, err := o.Run(context.Background(), RunConfig{SnapshotRef: ref, AsOf: testAsOf})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.True(t, result.Summary.Completed)
	assert.Equal(t, 2, result.Summary.CandidateCount)
	assert.Equal(t, 2, result.Summary.StatusCounts[contracts.StatusReadyNow])
	assert.Equal(t, 2, result.Summary.SelectedCount)
	require.Len(t, result.Summary.Stages, 4)
	for _, stage := range result.Summary.Stages {
		assert.True(t, stage.Success, stage.Stage)
	}
}

func TestRunMixedStatuses(t *testing.T) {
	store := history.NewMemoryStore()
	seedHistory(t, store, "AAPL", 252, 0.30)
	seedHistory(t, store, "IPOX", 4, 0.30) // too short to rank

	o := newTestOrchestrator(t, store, 1)

	young := snapshotCandidate("IPOX", 75)
	// Above the directional score floor (45) but below the acceptance
	// threshold (60): the WAIT path, not an AVOID gate.
	waiting := snapshotCandidate("LOWS", 50)
	broken := snapshotCandidate("FAIL", 90)
	broken.Structural.FetchOK = false
	broken.Structural.ReadyForEvaluation = false
	broken.Structural.FetchFailedStage = "chain_fetch"

	ref := writeSnapshot(t, []contracts.Candidate{
		snapshotCandidate("AAPL", 85), young, waiting, broken,
	})

	result, err := o.Run(context.Background(), RunConfig{SnapshotRef: ref, AsOf: testAsOf})
	require.NoError(t, err)

	counts := result.Summary.StatusCounts
	assert.Equal(t, 1, counts[contracts.StatusReadyNow])
	assert.Equal(t, 1, counts[contracts.StatusStructurallyReady])
	assert.Equal(t, 1, counts[contracts.StatusWait])
	assert.Equal(t, 1, counts[contracts.StatusIncomplete])
	assert.Equal(t, 1, result.Summary.SelectedCount)
	require.Len(t, result.Report.Selections, 1)
	assert.Equal(t, "AAPL", result.Report.Selections[0].Symbol)
}

func TestRunSkipsMalformedSnapshotRecords(t *testing.T) {
	store := history.NewMemoryStore()
	seedHistory(t, store, "AAPL", 252, 0.30)

	o := newTestOrchestrator(t, store, 1)

	noSymbol := snapshotCandidate("", 80)
	noStrikes := snapshotCandidate("MSFT", 80)
	noStrikes.Strikes = nil
	duplicate := snapshotCandidate("AAPL", 85)

	ref := writeSnapshot(t, []contracts.Candidate{
		snapshotCandidate("AAPL", 85), noSymbol, noStrikes, duplicate,
	})

	result, err := o.Run(context.Background(), RunConfig{SnapshotRef: ref, AsOf: testAsOf})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Summary.CandidateCount)
	assert.Equal(t, 3, result.Summary.SkippedRecords)
	assert.True(t, result.Success)
}

func TestRunFailsOnMissingInputs(t *testing.T) {
	o := newTestOrchestrator(t, history.NewMemoryStore(), 1)

	_, err := o.Run(context.Background(), RunConfig{AsOf: testAsOf})
	assert.ErrorContains(t, err, "snapshot reference is required")

	_, err = o.Run(context.Background(), RunConfig{SnapshotRef: "x.json"})
	assert.ErrorContains(t, err, "as-of date is required")
}

func TestRunAbortsOnMissingSnapshotFile(t *testing.T) {
	o := newTestOrchestrator(t, history.NewMemoryStore(), 1)

	result, err := o.Run(context.Background(), RunConfig{
		SnapshotRef: filepath.Join(t.TempDir(), "absent.json"),
		AsOf:        testAsOf,
	})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Summary.Completed)
}

func TestRunAbortsOnInvariantViolation(t *testing.T) {
	store := history.NewMemoryStore()
	seedHistory(t, store, "AAPL", 252, 0.30)

	o := newTestOrchestrator(t, store, 1)

	// Fetch succeeded but the ready flag was never stamped: the
	// upstream-success gate must kill the run, not filter the record.
	bad := snapshotCandidate("AAPL", 85)
	bad.Structural.ReadyForEvaluation = false
	bad.Structural.FetchOK = true
	ref := writeSnapshot(t, []contracts.Candidate{bad})

	result, err := o.Run(context.Background(), RunConfig{SnapshotRef: ref, AsOf: testAsOf})
	require.Error(t, err)
	assert.ErrorContains(t, err, "upstream-success")
	assert.False(t, result.Success)
	assert.False(t, result.Summary.Completed)
}

func TestRunCancellationAtGate(t *testing.T) {
	store := history.NewMemoryStore()
	seedHistory(t, store, "AAPL", 252, 0.30)

	o := newTestOrchestrator(t, store, 1)
	ref := writeSnapshot(t, []contracts.Candidate{snapshotCandidate("AAPL", 85)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Run(ctx, RunConfig{SnapshotRef: ref, AsOf: testAsOf})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Success)
}

func TestRunParallelClassifyMatchesSequential(t *testing.T) {
	store := history.NewMemoryStore()
	var candidates []contracts.Candidate
	for i := 0; i < 40; i++ {
		symbol := fmt.Sprintf("SYM%02d", i)
		seedHistory(t, store, symbol, 252, 0.25+float64(i)*0.001)
		candidates = append(candidates, snapshotCandidate(symbol, float64(50+i)))
	}
	ref := writeSnapshot(t, candidates)

	seq, err := newTestOrchestrator(t, store, 1).Run(context.Background(),
		RunConfig{RunID: "seq", SnapshotRef: ref, AsOf: testAsOf})
	require.NoError(t, err)

	par, err := newTestOrchestrator(t, store, 8).Run(context.Background(),
		RunConfig{RunID: "par", SnapshotRef: ref, AsOf: testAsOf})
	require.NoError(t, err)

	require.Equal(t, len(seq.Classified), len(par.Classified))
	for i := range seq.Classified {
		assert.Equal(t, seq.Classified[i].Result, par.Classified[i].Result)
	}
	assert.Equal(t, seq.Report, par.Report)
}

func TestFileSnapshotLoaderRejectsBadFile(t *testing.T) {
	loader := NewFileSnapshotLoader(logger.Nop())
	path := filepath.Join(t.TempDir(), "garbage.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := loader.Load(context.Background(), path)
	assert.ErrorContains(t, err, "decode snapshot")
}
