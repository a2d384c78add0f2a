package selection

import (
	"fmt"
	"math"

	"github.com/seolwon/ivscreen/internal/contracts"
)

// familyRiskMultiplier scales the volatility_scaled budget by the
// structural riskiness of each strategy family.
var familyRiskMultiplier = map[contracts.StrategyFamily]float64{
	contracts.FamilyDirectional: 1.0,
	contracts.FamilyIncome:      0.8,
	contracts.FamilyVolatility:  1.25,
}

var confidenceWeight = map[contracts.Confidence]float64{
	contracts.ConfidenceHigh:   1.0,
	contracts.ConfidenceMedium: 0.75,
	contracts.ConfidenceLow:    0.5,
}

// size allocates capital to the surviving candidates and appends the
// outcome to the report. Every survivor produces exactly one record:
// sized and valid, or PositionValid=false with the reason.
func (e *Engine) size(survivors []contracts.ClassifiedCandidate, report *contracts.SelectionReport) {
	for i := range survivors {
		report.Selections = append(report.Selections, e.sizeOne(&survivors[i], len(survivors)))
	}
	e.scaleToPortfolioCap(report)
	e.stampWeights(report)
}

// sizeOne computes one position's allocation under the configured method.
func (e *Engine) sizeOne(cc *contracts.ClassifiedCandidate, positionCount int) contracts.FinalSelection {
	c := &cc.Candidate
	sel := contracts.FinalSelection{
		CandidateID: c.ID,
		Symbol:      c.Symbol,
		Family:      c.Family,
	}

	if math.IsNaN(c.MaxLossPerContract) || c.MaxLossPerContract <= 0 {
		sel.ExclusionReason = fmt.Sprintf("max loss per contract %.2f not positive", c.MaxLossPerContract)
		return sel
	}
	if math.IsNaN(c.EstimatedCost) || c.EstimatedCost < 0 {
		sel.ExclusionReason = fmt.Sprintf("estimated cost %.2f not usable", c.EstimatedCost)
		return sel
	}

	tradeBudget := e.cfg.AccountBalance * e.cfg.MaxTradeRisk

	var riskTarget float64
	switch e.cfg.SizingMethod {
	case contracts.SizingFixedFractional:
		riskTarget = tradeBudget
	case contracts.SizingKelly:
		riskTarget = tradeBudget * e.kellyFraction(cc)
	case contracts.SizingVolatilityScaled:
		riskTarget = tradeBudget * confidenceWeight[cc.Result.Confidence] / familyRiskMultiplier[c.Family]
	case contracts.SizingEqualWeight:
		riskTarget = e.cfg.AccountBalance * e.cfg.MaxPortfolioRisk / float64(positionCount)
	}
	// Per-position ceiling applies regardless of method.
	if riskTarget > tradeBudget {
		riskTarget = tradeBudget
	}

	count := int(math.Floor(riskTarget / c.MaxLossPerContract))
	if count < 1 {
		sel.ExclusionReason = fmt.Sprintf("risk budget %.2f below one contract (max loss %.2f)",
			riskTarget, c.MaxLossPerContract)
		return sel
	}

	sel.ContractCount = count
	sel.MaxRisk = float64(count) * c.MaxLossPerContract
	sel.DollarAllocation = float64(count) * c.EstimatedCost
	sel.PositionValid = true
	return sel
}

// kellyFraction derives a crude edge from the structural score and
// confidence band, capped so one position can never dominate.
func (e *Engine) kellyFraction(cc *contracts.ClassifiedCandidate) float64 {
	// Map score 60..100 onto win probability 0.5..0.7, shaded by the
	// confidence band, against even payoff odds: f = 2p − 1.
	p := 0.5 + (cc.Candidate.Structural.Score-60)/200
	p *= confidenceWeight[cc.Result.Confidence]
	f := 2*p - 1
	if f < 0 {
		return 0
	}
	if f > e.cfg.KellyCap {
		return e.cfg.KellyCap
	}
	return f
}

// scaleToPortfolioCap scales every valid position down proportionally
// when aggregate risk exceeds balance × MaxPortfolioRisk. The cap
// bounds aggregate max risk, not aggregate allocation: when a
// structure's estimated cost exceeds its max loss per contract, total
// allocation can sit above the cap while total risk stays within it.
// Contract counts floor toward zero; a position scaled below one
// contract flips to an audited exclusion.
func (e *Engine) scaleToPortfolioCap(report *contracts.SelectionReport) {
	riskCap := e.cfg.AccountBalance * e.cfg.MaxPortfolioRisk
	total := report.TotalRisk()
	if total <= riskCap {
		return
	}
	factor := riskCap / total

	for i := range report.Selections {
		sel := &report.Selections[i]
		if !sel.PositionValid || sel.ContractCount == 0 {
			continue
		}
		perContractRisk := sel.MaxRisk / float64(sel.ContractCount)
		perContractCost := sel.DollarAllocation / float64(sel.ContractCount)

		scaled := int(math.Floor(float64(sel.ContractCount) * factor))
		if scaled < 1 {
			sel.PositionValid = false
			sel.ContractCount = 0
			sel.MaxRisk = 0
			sel.DollarAllocation = 0
			sel.ExclusionReason = fmt.Sprintf("portfolio risk cap scale-down (factor %.2f) left no whole contract", factor)
			continue
		}
		sel.ContractCount = scaled
		sel.MaxRisk = float64(scaled) * perContractRisk
		sel.DollarAllocation = float64(scaled) * perContractCost
	}
}

// stampWeights fills PortfolioWeight as each valid position's share of
// the total allocation.
func (e *Engine) stampWeights(report *contracts.SelectionReport) {
	total := report.TotalAllocation()
	if total <= 0 {
		return
	}
	for i := range report.Selections {
		if report.Selections[i].PositionValid {
			report.Selections[i].PortfolioWeight = report.Selections[i].DollarAllocation / total
		}
	}
}
