package classify

import (
	"fmt"
	"math"

	"github.com/seolwon/ivscreen/internal/contracts"
)

// GateViolation names one hard-gate rule a candidate violated. AVOID
// reasons enumerate every violation, not just the first.
type GateViolation struct {
	Rule   string
	Detail string
}

func (v GateViolation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
}

// FamilyGates holds the hard-gate thresholds for one strategy family.
// The gate predicates differ per family; the acceptance state machine
// shape does not.
type FamilyGates struct {
	// MinScore is the structural score floor below which the candidate
	// is rejected outright rather than parked in WAIT.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// ContraTrendStrength (directional): a known trend opposing the
	// strategy's thesis at or above this strength fires the gate.
	ContraTrendStrength float64 `yaml:"contra_trend_strength" json:"contra_trend_strength"`

	// StrongTrendStrength (income): any known trend at or above this
	// strength contradicts a range-bound income thesis.
	StrongTrendStrength float64 `yaml:"strong_trend_strength" json:"strong_trend_strength"`

	// MaxGapPct (income): overnight gaps beyond this fraction signal
	// instability income strategies must not sell into.
	MaxGapPct float64 `yaml:"max_gap_pct" json:"max_gap_pct"`

	// RequireCompression (volatility): expansion entries need a
	// compressed base; a strong trend without compression fires.
	RequireCompression bool    `yaml:"require_compression" json:"require_compression"`
	TrendWithoutBase   float64 `yaml:"trend_without_base" json:"trend_without_base"`

	// MaxEntryIVRank (volatility): an already-elevated IV rank
	// contradicts a volatility-expansion thesis. Only evaluated when
	// volatility evidence is available; UNKNOWN never fires a gate.
	MaxEntryIVRank float64 `yaml:"max_entry_iv_rank" json:"max_entry_iv_rank"`
}

// GateConfig maps each strategy family to its hard gates. The family set
// is closed; lookups on unknown families fail loudly in Classify.
type GateConfig struct {
	Directional FamilyGates `yaml:"directional" json:"directional"`
	Income      FamilyGates `yaml:"income" json:"income"`
	Volatility  FamilyGates `yaml:"volatility" json:"volatility"`
}

// DefaultGateConfig returns the stock gate thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Directional: FamilyGates{
			MinScore:            45,
			ContraTrendStrength: 0.6,
		},
		Income: FamilyGates{
			MinScore:            40,
			StrongTrendStrength: 0.8,
			MaxGapPct:           0.06,
		},
		Volatility: FamilyGates{
			MinScore:           35,
			RequireCompression: true,
			TrendWithoutBase:   0.7,
			MaxEntryIVRank:     85,
		},
	}
}

// gateFunc evaluates one family's hard gates against a candidate.
type gateFunc func(c *contracts.Candidate, g FamilyGates) []GateViolation

// gateTable is the closed family → predicate lookup.
var gateTable = map[contracts.StrategyFamily]gateFunc{
	contracts.FamilyDirectional: directionalGates,
	contracts.FamilyIncome:      incomeGates,
	contracts.FamilyVolatility:  volatilityGates,
}

// forFamily returns the gates for a family.
func (g GateConfig) forFamily(family contracts.StrategyFamily) FamilyGates {
	switch family {
	case contracts.FamilyDirectional:
		return g.Directional
	case contracts.FamilyIncome:
		return g.Income
	default:
		return g.Volatility
	}
}

func scoreFloor(c *contracts.Candidate, g FamilyGates) []GateViolation {
	if c.Structural.Score < g.MinScore {
		return []GateViolation{{
			Rule:   "score_floor",
			Detail: fmt.Sprintf("structural score %.1f below family floor %.1f", c.Structural.Score, g.MinScore),
		}}
	}
	return nil
}

// directionalGates rejects entries whose trend contradicts the thesis.
func directionalGates(c *contracts.Candidate, g FamilyGates) []GateViolation {
	violations := scoreFloor(c, g)

	s := &c.Structural
	if s.Trend == contracts.TrendUnknown || s.Bias == contracts.DirectionNeutral {
		return violations
	}

	contra := (s.Bias == contracts.DirectionLong && s.Trend == contracts.TrendDown) ||
		(s.Bias == contracts.DirectionShort && s.Trend == contracts.TrendUp)
	if contra && s.TrendStrength >= g.ContraTrendStrength {
		violations = append(violations, GateViolation{
			Rule: "trend_contra",
			Detail: fmt.Sprintf("%s trend (strength %.2f) against %s thesis",
				s.Trend, s.TrendStrength, s.Bias),
		})
	}

	return violations
}

// incomeGates rejects entries the range-bound income thesis cannot hold.
func incomeGates(c *contracts.Candidate, g FamilyGates) []GateViolation {
	violations := scoreFloor(c, g)

	s := &c.Structural
	if s.Trend != contracts.TrendUnknown && s.Trend != contracts.TrendSideway &&
		s.TrendStrength >= g.StrongTrendStrength {
		violations = append(violations, GateViolation{
			Rule: "strong_trend",
			Detail: fmt.Sprintf("strong %s trend (strength %.2f) against range-bound thesis",
				s.Trend, s.TrendStrength),
		})
	}

	if g.MaxGapPct > 0 && math.Abs(s.GapPct) > g.MaxGapPct {
		violations = append(violations, GateViolation{
			Rule:   "gap_risk",
			Detail: fmt.Sprintf("open gap %.1f%% exceeds %.1f%% limit", s.GapPct*100, g.MaxGapPct*100),
		})
	}

	return violations
}

// volatilityGates rejects expansion entries without a compressed base or
// with IV already elevated.
func volatilityGates(c *contracts.Candidate, g FamilyGates) []GateViolation {
	violations := scoreFloor(c, g)

	s := &c.Structural
	if g.RequireCompression && !s.Compression &&
		s.Trend != contracts.TrendUnknown && s.TrendStrength >= g.TrendWithoutBase {
		violations = append(violations, GateViolation{
			Rule: "expansion_without_compression",
			Detail: fmt.Sprintf("trending entry (strength %.2f) without volatility compression",
				s.TrendStrength),
		})
	}

	// Conflicting-signal rule on available evidence only. An unknown
	// rank is neutral and never fires a gate.
	if g.MaxEntryIVRank > 0 && c.Volatility.Available && c.Volatility.IVRank > g.MaxEntryIVRank {
		violations = append(violations, GateViolation{
			Rule: "iv_already_elevated",
			Detail: fmt.Sprintf("iv rank %.1f above %.1f entry ceiling for expansion",
				c.Volatility.IVRank, g.MaxEntryIVRank),
		})
	}

	return violations
}
