package selection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolwon/ivscreen/internal/contracts"
)

func TestFixedFractionalSizing(t *testing.T) {
	// Balance 100k, 2% per trade -> 2000 risk budget; max loss 450 per
	// contract -> 4 contracts, 1800 at risk.
	e := newTestEngine(t, testConfig())

	report := e.SelectAndSize([]contracts.ClassifiedCandidate{
		ready("AAPL", contracts.FamilyDirectional, 90, 320, 450),
	})

	require.Len(t, report.Selections, 1)
	sel := report.Selections[0]
	assert.True(t, sel.PositionValid)
	assert.Equal(t, 4, sel.ContractCount)
	assert.InDelta(t, 1800, sel.MaxRisk, 1e-9)
	assert.InDelta(t, 1280, sel.DollarAllocation, 1e-9)
	assert.InDelta(t, 1.0, sel.PortfolioWeight, 1e-9)
}

func TestKellySizingIsCapped(t *testing.T) {
	cfg := testConfig()
	cfg.SizingMethod = contracts.SizingKelly
	cfg.KellyCap = 0.25
	e := newTestEngine(t, cfg)

	// Perfect score still caps at 25% of the 2000 trade budget -> 500;
	// max loss 120 -> 4 contracts.
	cc := ready("AAPL", contracts.FamilyDirectional, 90, 100, 120)
	cc.Candidate.Structural.Score = 100

	report := e.SelectAndSize([]contracts.ClassifiedCandidate{cc})

	require.Len(t, report.Selections, 1)
	sel := report.Selections[0]
	assert.True(t, sel.PositionValid)
	assert.Equal(t, 4, sel.ContractCount)
	assert.InDelta(t, 480, sel.MaxRisk, 1e-9)
}

func TestKellyNegativeEdgeExcludes(t *testing.T) {
	cfg := testConfig()
	cfg.SizingMethod = contracts.SizingKelly
	e := newTestEngine(t, cfg)

	// LOW confidence halves the win probability: no edge, no position.
	cc := ready("WEAK", contracts.FamilyDirectional, 70, 100, 120)
	cc.Candidate.Structural.Score = 62
	cc.Result.Confidence = contracts.ConfidenceLow

	report := e.SelectAndSize([]contracts.ClassifiedCandidate{cc})

	require.Len(t, report.Selections, 1)
	sel := report.Selections[0]
	assert.False(t, sel.PositionValid)
	assert.Contains(t, sel.ExclusionReason, "below one contract")
}

func TestVolatilityScaledSizing(t *testing.T) {
	cfg := testConfig()
	cfg.SizingMethod = contracts.SizingVolatilityScaled
	e := newTestEngine(t, cfg)

	// INCOME multiplier 0.8 with HIGH confidence: 2000 * 1.0 / 0.8 =
	// 2500, clamped back to the 2000 per-trade ceiling.
	income := ready("INC", contracts.FamilyIncome, 90, 300, 450)
	// VOLATILITY multiplier 1.25 with MEDIUM confidence:
	// 2000 * 0.75 / 1.25 = 1200 -> 2 contracts at 450.
	vol := ready("VOL", contracts.FamilyVolatility, 85, 300, 450)
	vol.Result.Confidence = contracts.ConfidenceMedium

	report := e.SelectAndSize([]contracts.ClassifiedCandidate{income, vol})

	require.Len(t, report.Selections, 2)
	bySymbol := map[string]contracts.FinalSelection{}
	for _, s := range report.Selections {
		bySymbol[s.Symbol] = s
	}
	assert.Equal(t, 4, bySymbol["INC"].ContractCount)
	assert.Equal(t, 2, bySymbol["VOL"].ContractCount)
}

func TestEqualWeightSizing(t *testing.T) {
	cfg := testConfig()
	cfg.SizingMethod = contracts.SizingEqualWeight
	cfg.MaxTradeRisk = 0.05
	e := newTestEngine(t, cfg)

	// Portfolio budget 10k over 4 positions -> 2500 each; max loss 600
	// -> 4 contracts each.
	classified := []contracts.ClassifiedCandidate{
		ready("AAA", contracts.FamilyDirectional, 90, 400, 600),
		ready("BBB", contracts.FamilyIncome, 88, 400, 600),
		ready("CCC", contracts.FamilyVolatility, 86, 400, 600),
		ready("DDD", contracts.FamilyDirectional, 84, 400, 600),
	}

	report := e.SelectAndSize(classified)

	require.Len(t, report.Selections, 4)
	for _, sel := range report.Selections {
		assert.True(t, sel.PositionValid)
		assert.Equal(t, 4, sel.ContractCount)
		assert.InDelta(t, 0.25, sel.PortfolioWeight, 1e-9)
	}
}

func TestUnsizableEmitsAuditRecord(t *testing.T) {
	e := newTestEngine(t, testConfig())

	noLoss := ready("BROK", contracts.FamilyDirectional, 90, 500, 0)
	nanLoss := ready("NANL", contracts.FamilyIncome, 85, 500, math.NaN())
	tooBig := ready("HUGE", contracts.FamilyVolatility, 80, 500, 5_000)

	report := e.SelectAndSize([]contracts.ClassifiedCandidate{noLoss, nanLoss, tooBig})

	require.Len(t, report.Selections, 3)
	for _, sel := range report.Selections {
		assert.False(t, sel.PositionValid, sel.Symbol)
		assert.NotEmpty(t, sel.ExclusionReason, sel.Symbol)
		assert.Zero(t, sel.ContractCount)
	}
	assert.Empty(t, report.ValidSelections())
}

func TestPortfolioRiskCapScalesProportionally(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTradeRisk = 0.08
	cfg.MaxPortfolioRisk = 0.10
	e := newTestEngine(t, cfg)

	// Two positions of 8 contracts x 1000 = 16k aggregate risk against
	// a 10k cap: factor 0.625 scales both to 5 contracts, 10k total.
	classified := []contracts.ClassifiedCandidate{
		ready("AAA", contracts.FamilyDirectional, 90, 800, 1000),
		ready("BBB", contracts.FamilyIncome, 85, 800, 1000),
	}

	report := e.SelectAndSize(classified)

	require.Len(t, report.Selections, 2)
	for _, sel := range report.Selections {
		assert.True(t, sel.PositionValid)
		assert.Equal(t, 5, sel.ContractCount)
		assert.InDelta(t, 5000, sel.MaxRisk, 1e-9)
		assert.InDelta(t, 4000, sel.DollarAllocation, 1e-9)
	}
	assert.LessOrEqual(t, report.TotalRisk(), cfg.AccountBalance*cfg.MaxPortfolioRisk+1e-9)
}

func TestScaleDownBelowOneContractExcludes(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTradeRisk = 0.08
	cfg.MaxPortfolioRisk = 0.10
	e := newTestEngine(t, cfg)

	// A single-contract position scaled by 0.625 floors to zero and
	// must flip to an audited exclusion, not a fractional contract.
	big := ready("BIG", contracts.FamilyDirectional, 90, 700, 1000) // 8 contracts
	tiny := ready("TINY", contracts.FamilyIncome, 85, 5_000, 8_000) // 1 contract
	report := e.SelectAndSize([]contracts.ClassifiedCandidate{big, tiny})

	require.Len(t, report.Selections, 2)
	bySymbol := map[string]contracts.FinalSelection{}
	for _, s := range report.Selections {
		bySymbol[s.Symbol] = s
	}
	assert.True(t, bySymbol["BIG"].PositionValid)
	assert.False(t, bySymbol["TINY"].PositionValid)
	assert.Contains(t, bySymbol["TINY"].ExclusionReason, "scale-down")
}
