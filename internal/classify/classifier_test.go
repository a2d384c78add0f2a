package classify

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolwon/ivscreen/internal/contracts"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	cl, err := New(DefaultConfig())
	require.NoError(t, err)
	return cl
}

// evaluable returns a candidate that, untouched, lands in READY_NOW.
func evaluable(symbol string, family contracts.StrategyFamily) contracts.Candidate {
	return contracts.Candidate{
		ID:         symbol + "-1",
		Symbol:     symbol,
		Family:     family,
		Strategy:   "bull_put_spread",
		Expiration: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		Strikes:    []float64{95, 100},
		CurrentIV:  0.32,
		Structural: contracts.StructuralEvidence{
			Score:              80,
			Trend:              contracts.TrendUp,
			TrendStrength:      0.65,
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
		Volatility: contracts.VolatilityEvidence{
			IVRank:        71.4,
			IVHistoryDays: 252,
			Available:     true,
			Source:        contracts.RankSourceHistorical,
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero threshold", func(c *Config) { c.AcceptanceThreshold = 0 }, true},
		{"threshold above 100", func(c *Config) { c.AcceptanceThreshold = 101 }, true},
		{"zero min history", func(c *Config) { c.MinHistoryDays = 0 }, true},
		{"floor above threshold", func(c *Config) { c.Gates.Income.MinScore = 95 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassifyReadyNow(t *testing.T) {
	cl := newTestClassifier(t)
	c := evaluable("AAPL", contracts.FamilyDirectional)

	result := cl.Classify(&c)

	assert.Equal(t, contracts.StatusReadyNow, result.Status)
	assert.Equal(t, contracts.ConfidenceHigh, result.Confidence)
	assert.False(t, result.Terminal())
	assert.Contains(t, result.Reason, "iv rank 71.4")
	assert.Equal(t, "long_with_trend", result.DirectionalBias)
}

func TestClassifyDowngradesOnShortHistory(t *testing.T) {
	cl := newTestClassifier(t)
	c := evaluable("IPOX", contracts.FamilyDirectional)
	c.Structural.Score = 75
	c.Volatility = contracts.VolatilityEvidence{
		IVRank:        math.NaN(),
		IVHistoryDays: 4,
		Available:     false,
		Source:        contracts.RankSourceInsufficient,
	}

	result := cl.Classify(&c)

	assert.Equal(t, contracts.StatusStructurallyReady, result.Status)
	assert.Contains(t, result.Reason, "4 of 120 days")
	assert.Contains(t, result.Reason, "~116 days to maturation")
}

func TestClassifyNeverPromotesOnMissingEvidence(t *testing.T) {
	// The downgrade law cuts one way only: missing volatility evidence
	// cannot rescue a candidate below the acceptance threshold.
	cl := newTestClassifier(t)
	c := evaluable("LOWS", contracts.FamilyDirectional)
	c.Structural.Score = 52
	c.Volatility = contracts.VolatilityEvidence{
		IVRank:        math.NaN(),
		IVHistoryDays: 10,
		Available:     false,
		Source:        contracts.RankSourceInsufficient,
	}

	result := cl.Classify(&c)

	assert.Equal(t, contracts.StatusWait, result.Status)
	assert.Contains(t, result.Reason, "below acceptance threshold")
}

func TestClassifyIncompletePrecedesEverything(t *testing.T) {
	cl := newTestClassifier(t)

	// A fetch failure wins even over a gate violation and a perfect score.
	c := evaluable("FAIL", contracts.FamilyDirectional)
	c.Structural.Score = 99
	c.Structural.Trend = contracts.TrendDown
	c.Structural.TrendStrength = 0.9
	c.Structural.FetchOK = false
	c.Structural.FetchFailedStage = "chain_fetch"

	result := cl.Classify(&c)

	assert.Equal(t, contracts.StatusIncomplete, result.Status)
	assert.Contains(t, result.Reason, "chain_fetch")
	assert.True(t, result.Terminal())
}

func TestClassifyIncompleteWhenNotReadyForEvaluation(t *testing.T) {
	cl := newTestClassifier(t)
	c := evaluable("HALF", contracts.FamilyIncome)
	c.Structural.ReadyForEvaluation = false

	result := cl.Classify(&c)

	assert.Equal(t, contracts.StatusIncomplete, result.Status)
}

func TestClassifyAvoidPrecedesBaseDecision(t *testing.T) {
	cl := newTestClassifier(t)
	c := evaluable("CNTR", contracts.FamilyDirectional)
	c.Structural.Trend = contracts.TrendDown // against the LONG thesis
	c.Structural.TrendStrength = 0.8

	result := cl.Classify(&c)

	assert.Equal(t, contracts.StatusAvoid, result.Status)
	assert.Equal(t, contracts.ConfidenceLow, result.Confidence)
	assert.Contains(t, result.Reason, "trend_contra")
}

func TestClassifyUnknownFamilyRefuses(t *testing.T) {
	cl := newTestClassifier(t)
	c := evaluable("ODD", contracts.StrategyFamily("ARBITRAGE"))

	result := cl.Classify(&c)

	assert.Equal(t, contracts.StatusAvoid, result.Status)
	assert.Contains(t, result.Reason, "unknown strategy family")
}

func TestClassifyUnknownExecutionIsNeutral(t *testing.T) {
	cl := newTestClassifier(t)

	base := evaluable("NEUT", contracts.FamilyDirectional)
	unknown := cl.Classify(&base)

	known := evaluable("NEUT", contracts.FamilyDirectional)
	known.Execution = contracts.ExecutionEvidence{
		Depth:        contracts.DepthModerate,
		Balance:      contracts.BalanceEven,
		Quality:      contracts.ExecFair,
		DividendRisk: contracts.DividendNone,
	}
	fair := cl.Classify(&known)

	// UNKNOWN behaves exactly like neutral known evidence.
	assert.Equal(t, fair.Status, unknown.Status)
	assert.Equal(t, fair.Confidence, unknown.Confidence)
}

func TestClassifyPoorExecutionLowersConfidence(t *testing.T) {
	cl := newTestClassifier(t)
	c := evaluable("THIN", contracts.FamilyDirectional)
	c.Structural.TrendStrength = 0.4 // aligned but not strong enough for a boost
	c.Execution.Quality = contracts.ExecPoor

	result := cl.Classify(&c)

	assert.Equal(t, contracts.StatusReadyNow, result.Status)
	assert.Equal(t, contracts.ConfidenceMedium, result.Confidence)
}

func TestClassifyDoesNotMutateInput(t *testing.T) {
	cl := newTestClassifier(t)
	c := evaluable("PURE", contracts.FamilyVolatility)
	c.Structural.Compression = true
	before := c

	_ = cl.Classify(&c)

	assert.Equal(t, before, c)
}

func TestClassifyDeterministic(t *testing.T) {
	cl := newTestClassifier(t)
	c := evaluable("SAME", contracts.FamilyIncome)
	c.Structural.Trend = contracts.TrendSideway
	c.Structural.TrendStrength = 0.1

	first := cl.Classify(&c)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, cl.Classify(&c))
	}
}

func TestClassifyAllPreservesOrder(t *testing.T) {
	cl := newTestClassifier(t)
	batch := []contracts.Candidate{
		evaluable("AAA", contracts.FamilyDirectional),
		evaluable("BBB", contracts.FamilyIncome),
		evaluable("CCC", contracts.FamilyVolatility),
	}
	batch[1].Structural.Trend = contracts.TrendSideway
	batch[2].Structural.Compression = true

	classified := cl.ClassifyAll(batch)

	require.Len(t, classified, 3)
	for i, cc := range classified {
		assert.Equal(t, batch[i].Symbol, cc.Result.Symbol)
		assert.Equal(t, batch[i].ID, cc.Result.CandidateID)
	}
}
