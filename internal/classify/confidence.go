package classify

import (
	"github.com/seolwon/ivscreen/internal/contracts"
)

// Confidence banding: the base band comes from the structural score,
// then per-family weighting and execution evidence shift it by at most
// one band each way. UNKNOWN execution evidence is neutral; it never
// moves the band.

const (
	highScoreBand   = 80.0
	mediumScoreBand = 65.0
)

// familyWeight maps each family to the signal it weighs when shading
// confidence within a band.
var familyWeight = map[contracts.StrategyFamily]func(c *contracts.Candidate) int{
	contracts.FamilyDirectional: directionalWeight,
	contracts.FamilyIncome:      incomeWeight,
	contracts.FamilyVolatility:  volatilityWeight,
}

func confidenceFor(c *contracts.Candidate, status contracts.Status) contracts.Confidence {
	// Terminal negatives do not deserve graded conviction.
	if status == contracts.StatusAvoid {
		return contracts.ConfidenceLow
	}

	band := 0 // 0 = LOW, 1 = MEDIUM, 2 = HIGH
	switch {
	case c.Structural.Score >= highScoreBand:
		band = 2
	case c.Structural.Score >= mediumScoreBand:
		band = 1
	}

	if weigh, ok := familyWeight[c.Family]; ok {
		band += weigh(c)
	}
	band += executionAdjustment(&c.Execution)

	// A downgrade for missing volatility evidence also caps conviction.
	if status == contracts.StatusStructurallyReady && band > 1 {
		band = 1
	}

	switch {
	case band >= 2:
		return contracts.ConfidenceHigh
	case band == 1:
		return contracts.ConfidenceMedium
	default:
		return contracts.ConfidenceLow
	}
}

// directionalWeight rewards a strong trend aligned with the thesis.
func directionalWeight(c *contracts.Candidate) int {
	s := &c.Structural
	if s.Trend == contracts.TrendUnknown || s.Bias == contracts.DirectionNeutral {
		return 0
	}
	aligned := (s.Bias == contracts.DirectionLong && s.Trend == contracts.TrendUp) ||
		(s.Bias == contracts.DirectionShort && s.Trend == contracts.TrendDown)
	if aligned && s.TrendStrength >= 0.6 {
		return 1
	}
	if !aligned && s.Trend != contracts.TrendSideway {
		return -1
	}
	return 0
}

// incomeWeight rewards a quiet tape: sideways trend, no open gap.
func incomeWeight(c *contracts.Candidate) int {
	s := &c.Structural
	if s.Trend == contracts.TrendSideway && s.GapPct == 0 {
		return 1
	}
	if s.Trend != contracts.TrendUnknown && s.Trend != contracts.TrendSideway &&
		s.TrendStrength >= 0.5 {
		return -1
	}
	return 0
}

// volatilityWeight rewards compression, the family's core setup.
func volatilityWeight(c *contracts.Candidate) int {
	if c.Structural.Compression {
		return 1
	}
	return 0
}

// executionAdjustment shifts the band on known execution quality.
// POOR quality or a THIN book drops a band; GOOD quality on a DEEP book
// raises one. All UNKNOWN variants are neutral.
func executionAdjustment(e *contracts.ExecutionEvidence) int {
	if e.Quality == contracts.ExecPoor || e.Depth == contracts.DepthThin {
		return -1
	}
	if e.Quality == contracts.ExecGood && e.Depth == contracts.DepthDeep {
		return 1
	}
	return 0
}
