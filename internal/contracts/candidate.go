package contracts

import (
	"math"
	"time"
)

// StrategyFamily is the closed set of strategy families. Hard-gate
// predicates and confidence weighting vary per family; the acceptance
// state machine shape does not.
type StrategyFamily string

const (
	FamilyDirectional StrategyFamily = "DIRECTIONAL"
	FamilyIncome      StrategyFamily = "INCOME"
	FamilyVolatility  StrategyFamily = "VOLATILITY"
)

// IsValidFamily checks whether a family string is one of the known families.
func IsValidFamily(s string) bool {
	switch StrategyFamily(s) {
	case FamilyDirectional, FamilyIncome, FamilyVolatility:
		return true
	}
	return false
}

// DirectionTag is a strategy's directional thesis.
type DirectionTag string

const (
	DirectionLong    DirectionTag = "LONG"
	DirectionShort   DirectionTag = "SHORT"
	DirectionNeutral DirectionTag = "NEUTRAL"
)

// TrendTag is the price trend read from structural analysis.
// TrendUnknown means the upstream indicator could not be computed; it is
// never defaulted to a neutral reading.
type TrendTag string

const (
	TrendUp      TrendTag = "UP"
	TrendDown    TrendTag = "DOWN"
	TrendSideway TrendTag = "SIDEWAYS"
	TrendUnknown TrendTag = "UNKNOWN"
)

// StructuralEvidence carries entry-structure signals computed upstream.
// Read-only to the core: the classifier consumes, never writes.
type StructuralEvidence struct {
	Score          float64      `json:"score"`           // 0 .. 100 quality score
	Compression    bool         `json:"compression"`     // volatility compression at entry
	GapPct         float64      `json:"gap_pct"`         // open gap vs prior close
	Week52Position float64      `json:"week52_position"` // 0 = 52w low, 1 = 52w high
	Trend          TrendTag     `json:"trend"`
	TrendStrength  float64      `json:"trend_strength"` // 0 .. 1, meaningless when Trend is UNKNOWN
	Bias           DirectionTag `json:"bias"`           // strategy's directional thesis

	// Upstream contract flags. FetchOK reports whether the contract
	// fetch/selection stage succeeded; ReadyForEvaluation is the terminal
	// validation flag that same stage must stamp on success.
	FetchOK            bool   `json:"fetch_ok"`
	FetchFailedStage   string `json:"fetch_failed_stage,omitempty"`
	ReadyForEvaluation bool   `json:"ready_for_evaluation"`
}

// Tri-state execution-quality signals. UNKNOWN is an explicit variant,
// never a zero-value accident, and downstream logic treats it as neutral.

// BookDepth classifies order book depth for the candidate's contracts.
type BookDepth string

const (
	DepthDeep     BookDepth = "DEEP"
	DepthModerate BookDepth = "MODERATE"
	DepthThin     BookDepth = "THIN"
	DepthUnknown  BookDepth = "UNKNOWN"
)

// BookBalance classifies bid/ask balance.
type BookBalance string

const (
	BalanceEven     BookBalance = "BALANCED"
	BalanceBidHeavy BookBalance = "BID_HEAVY"
	BalanceAskHeavy BookBalance = "ASK_HEAVY"
	BalanceUnknown  BookBalance = "UNKNOWN"
)

// ExecQuality is the overall execution-quality classification.
type ExecQuality string

const (
	ExecGood    ExecQuality = "GOOD"
	ExecFair    ExecQuality = "FAIR"
	ExecPoor    ExecQuality = "POOR"
	ExecUnknown ExecQuality = "UNKNOWN"
)

// DividendRisk flags early-assignment exposure around ex-dividend dates.
type DividendRisk string

const (
	DividendNone    DividendRisk = "NONE"
	DividendPresent DividendRisk = "PRESENT"
	DividendUnknown DividendRisk = "UNKNOWN"
)

// ExecutionEvidence carries execution-quality signals for the specific
// tradable contracts. Read-only to the core.
type ExecutionEvidence struct {
	Depth        BookDepth    `json:"depth"`
	Balance      BookBalance  `json:"balance"`
	Quality      ExecQuality  `json:"execution_quality"`
	DividendRisk DividendRisk `json:"dividend_risk"`
}

// VolatilityEvidence is produced by the IV percentile engine.
// Invariant: IVRank is NaN and Available is false if and only if
// IVHistoryDays < the configured minimum history days.
type VolatilityEvidence struct {
	IVRank        float64    `json:"iv_rank"` // 0 .. 100, NaN when unavailable
	IVHistoryDays int        `json:"iv_history_days"`
	Available     bool       `json:"availability"`
	Source        RankSource `json:"iv_rank_source"`
}

// Consistent reports whether the NaN/availability coupling holds for a
// given minimum history requirement.
func (v *VolatilityEvidence) Consistent(minHistoryDays int) bool {
	short := v.IVHistoryDays < minHistoryDays
	if short {
		return !v.Available && math.IsNaN(v.IVRank) && v.Source == RankSourceInsufficient
	}
	return v.Available && !math.IsNaN(v.IVRank) && v.Source == RankSourceHistorical
}

// Candidate is one evaluable trade structure: a symbol plus a strategy
// shape plus expiration/strike selection, with its three evidence bundles.
type Candidate struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Family     StrategyFamily `json:"family"`
	Strategy   string         `json:"strategy"` // template name, e.g. "bull_put_spread"
	Expiration time.Time      `json:"expiration"`
	Strikes    []float64      `json:"strikes"`

	// CurrentIV is the raw current implied volatility; NaN when the
	// upstream quote did not carry one.
	CurrentIV float64 `json:"current_iv"`

	// ComparisonScore ranks candidates within a symbol and across the
	// batch; EstimatedCost is the documented secondary tie-break key.
	ComparisonScore float64 `json:"comparison_score"`
	EstimatedCost   float64 `json:"estimated_cost"`

	// MaxLossPerContract bounds per-contract risk for sizing.
	MaxLossPerContract float64 `json:"max_loss_per_contract"`

	Structural StructuralEvidence `json:"structural"`
	Execution  ExecutionEvidence  `json:"execution"`
	Volatility VolatilityEvidence `json:"volatility"`
}

// HasCurrentIV reports whether the candidate carries a usable current IV.
func (c *Candidate) HasCurrentIV() bool {
	return !math.IsNaN(c.CurrentIV) && c.CurrentIV > 0
}
