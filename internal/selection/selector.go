// Package selection implements the final pipeline stage: pick at most
// one READY_NOW candidate per symbol, enforce portfolio-shape limits,
// and size every surviving position. Nothing is dropped silently; every
// exclusion leaves a PositionValid=false audit record.
package selection

import (
	"fmt"
	"sort"

	"github.com/seolwon/ivscreen/internal/contracts"
)

// Config holds the portfolio-shape and sizing parameters. Validated
// fail-fast before any selection work runs.
type Config struct {
	// MaxPositions caps the number of sized positions per run.
	MaxPositions int `yaml:"max_positions" json:"max_positions"`

	// DiversificationLimit caps positions per strategy family.
	DiversificationLimit int `yaml:"diversification_limit" json:"diversification_limit"`

	SizingMethod contracts.SizingMethod `yaml:"sizing_method" json:"sizing_method"`

	// AccountBalance is the run's account equity in dollars.
	AccountBalance float64 `yaml:"account_balance" json:"account_balance"`

	// MaxTradeRisk is the per-position risk budget as a fraction of
	// balance; MaxPortfolioRisk bounds the aggregate the same way.
	MaxTradeRisk     float64 `yaml:"max_trade_risk" json:"max_trade_risk"`
	MaxPortfolioRisk float64 `yaml:"max_portfolio_risk" json:"max_portfolio_risk"`

	// KellyCap bounds the kelly fraction of the per-trade budget.
	KellyCap float64 `yaml:"kelly_cap" json:"kelly_cap"`
}

// DefaultConfig returns the stock portfolio limits. AccountBalance has
// no default: a run without an explicit balance must fail.
func DefaultConfig() Config {
	return Config{
		MaxPositions:         5,
		DiversificationLimit: 3,
		SizingMethod:         contracts.SizingFixedFractional,
		MaxTradeRisk:         0.02,
		MaxPortfolioRisk:     0.10,
		KellyCap:             0.25,
	}
}

// Validate fails fast on parameters that would corrupt sizing math.
func (c Config) Validate() error {
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be > 0, got %d", c.MaxPositions)
	}
	if c.DiversificationLimit <= 0 {
		return fmt.Errorf("diversification_limit must be > 0, got %d", c.DiversificationLimit)
	}
	if !contracts.IsValidSizingMethod(string(c.SizingMethod)) {
		return fmt.Errorf("unknown sizing method %q", c.SizingMethod)
	}
	if c.AccountBalance <= 0 {
		return fmt.Errorf("account_balance must be > 0, got %.2f", c.AccountBalance)
	}
	if c.MaxTradeRisk <= 0 || c.MaxTradeRisk > 1 {
		return fmt.Errorf("max_trade_risk %.4f out of (0, 1]", c.MaxTradeRisk)
	}
	if c.MaxPortfolioRisk <= 0 || c.MaxPortfolioRisk > 1 {
		return fmt.Errorf("max_portfolio_risk %.4f out of (0, 1]", c.MaxPortfolioRisk)
	}
	if c.MaxTradeRisk > c.MaxPortfolioRisk {
		return fmt.Errorf("max_trade_risk %.4f exceeds max_portfolio_risk %.4f",
			c.MaxTradeRisk, c.MaxPortfolioRisk)
	}
	if c.SizingMethod == contracts.SizingKelly && (c.KellyCap <= 0 || c.KellyCap > 1) {
		return fmt.Errorf("kelly_cap %.4f out of (0, 1]", c.KellyCap)
	}
	return nil
}

// Engine runs selection and sizing. Stateless beyond its config.
type Engine struct {
	cfg Config
}

// NewEngine constructs an Engine, rejecting invalid config.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("selection config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// SelectAndSize picks the final portfolio from classified candidates.
// Deterministic for identical input: ordering is comparison score
// descending, then estimated cost ascending, then symbol ascending.
func (e *Engine) SelectAndSize(classified []contracts.ClassifiedCandidate) contracts.SelectionReport {
	report := contracts.SelectionReport{}

	ready := filterReady(classified)
	perSymbol := bestPerSymbol(ready)
	sortCandidates(perSymbol)

	survivors := e.applyLimits(perSymbol, &report)
	e.size(survivors, &report)
	return report
}

func filterReady(classified []contracts.ClassifiedCandidate) []contracts.ClassifiedCandidate {
	out := make([]contracts.ClassifiedCandidate, 0, len(classified))
	for i := range classified {
		if classified[i].Result.Status == contracts.StatusReadyNow {
			out = append(out, classified[i])
		}
	}
	return out
}

// bestPerSymbol keeps the single strongest candidate per symbol.
func bestPerSymbol(candidates []contracts.ClassifiedCandidate) []contracts.ClassifiedCandidate {
	best := make(map[string]contracts.ClassifiedCandidate, len(candidates))
	for _, cc := range candidates {
		cur, seen := best[cc.Candidate.Symbol]
		if !seen || candidateLess(&cc.Candidate, &cur.Candidate) {
			best[cc.Candidate.Symbol] = cc
		}
	}
	out := make([]contracts.ClassifiedCandidate, 0, len(best))
	for _, cc := range best {
		out = append(out, cc)
	}
	return out
}

// candidateLess orders a before b: higher comparison score first, lower
// estimated cost on ties, then symbol, then ID for full determinism.
func candidateLess(a, b *contracts.Candidate) bool {
	if a.ComparisonScore != b.ComparisonScore {
		return a.ComparisonScore > b.ComparisonScore
	}
	if a.EstimatedCost != b.EstimatedCost {
		return a.EstimatedCost < b.EstimatedCost
	}
	if a.Symbol != b.Symbol {
		return a.Symbol < b.Symbol
	}
	return a.ID < b.ID
}

func sortCandidates(candidates []contracts.ClassifiedCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidateLess(&candidates[i].Candidate, &candidates[j].Candidate)
	})
}

// applyLimits truncates to MaxPositions by descending score, then
// enforces the per-family diversification cap within the truncated set,
// emitting audit exclusions for everything cut. The order matters: a
// family-capped drop never reopens a position slot for a weaker
// candidate below the cut line. Input must already be sorted
// strongest-first.
func (e *Engine) applyLimits(candidates []contracts.ClassifiedCandidate, report *contracts.SelectionReport) []contracts.ClassifiedCandidate {
	seated := candidates
	if len(candidates) > e.cfg.MaxPositions {
		seated = candidates[:e.cfg.MaxPositions]
		for i := e.cfg.MaxPositions; i < len(candidates); i++ {
			report.Excluded = append(report.Excluded, excludedRecord(&candidates[i].Candidate,
				fmt.Sprintf("max positions limit %d reached", e.cfg.MaxPositions)))
		}
	}

	kept := make([]contracts.ClassifiedCandidate, 0, len(seated))
	familyCount := make(map[contracts.StrategyFamily]int)
	for _, cc := range seated {
		c := &cc.Candidate
		if familyCount[c.Family] >= e.cfg.DiversificationLimit {
			report.Excluded = append(report.Excluded, excludedRecord(c,
				fmt.Sprintf("family %s at diversification limit %d", c.Family, e.cfg.DiversificationLimit)))
			continue
		}
		familyCount[c.Family]++
		kept = append(kept, cc)
	}
	return kept
}

func excludedRecord(c *contracts.Candidate, reason string) contracts.FinalSelection {
	return contracts.FinalSelection{
		CandidateID:     c.ID,
		Symbol:          c.Symbol,
		Family:          c.Family,
		PositionValid:   false,
		ExclusionReason: reason,
	}
}
