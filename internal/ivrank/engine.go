package ivrank

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/history"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// Config holds the percentile engine thresholds. Validated fail-fast
// before any computation starts.
type Config struct {
	LookbackDays       int `yaml:"lookback_days" json:"lookback_days"`
	MinHistoryDays     int `yaml:"min_history_days" json:"min_history_days"`
	ReferenceTenorDays int `yaml:"reference_tenor_days" json:"reference_tenor_days"`
}

// DefaultConfig returns the standard one-year lookback configuration.
func DefaultConfig() Config {
	return Config{
		LookbackDays:       252,
		MinHistoryDays:     120,
		ReferenceTenorDays: 30,
	}
}

// Validate rejects configurations that would make every rank meaningless.
func (c Config) Validate() error {
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback_days must be > 0, got %d", c.LookbackDays)
	}
	if c.MinHistoryDays <= 0 {
		return fmt.Errorf("min_history_days must be > 0, got %d", c.MinHistoryDays)
	}
	if c.MinHistoryDays > c.LookbackDays {
		return fmt.Errorf("min_history_days (%d) must not exceed lookback_days (%d)",
			c.MinHistoryDays, c.LookbackDays)
	}
	if c.ReferenceTenorDays <= 0 {
		return fmt.Errorf("reference_tenor_days must be > 0, got %d", c.ReferenceTenorDays)
	}
	return nil
}

// Result is the output of one percentile computation.
type Result struct {
	Rank        float64              `json:"rank"` // 0 .. 100, NaN when insufficient
	HistoryDays int                  `json:"history_days"`
	Source      contracts.RankSource `json:"source"`
}

// Evidence converts the result into candidate volatility evidence.
func (r Result) Evidence() contracts.VolatilityEvidence {
	return contracts.VolatilityEvidence{
		IVRank:        r.Rank,
		IVHistoryDays: r.HistoryDays,
		Available:     r.Source == contracts.RankSourceHistorical,
		Source:        r.Source,
	}
}

// Engine computes per-symbol IV percentile ranks against the volatility
// history store. It is read-only against the store and fully
// deterministic: identical window contents and current IV always produce
// identical output.
type Engine struct {
	store history.Store
	cfg   Config
	log   *logger.Logger
}

// NewEngine creates an engine, validating the configuration.
func NewEngine(store history.Store, cfg Config, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ivrank config: %w", err)
	}
	return &Engine{store: store, cfg: cfg, log: log}, nil
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ComputeRank computes the percentile rank of currentIV against the
// symbol's trailing window ending at asOf.
//
// An unknown current IV (NaN) or a window shorter than MinHistoryDays
// yields (NaN, actualDays, insufficient_data). A default is never
// substituted for a missing rank: unknown propagates as unknown.
func (e *Engine) ComputeRank(ctx context.Context, symbol string, currentIV float64, asOf time.Time) (Result, error) {
	from := asOf.AddDate(0, 0, -e.cfg.LookbackDays)

	observations, err := e.store.Range(ctx, symbol, from, asOf)
	if err != nil {
		return Result{}, err
	}

	window := history.BuildWindow(symbol, observations, asOf, e.cfg.LookbackDays)
	if window.Rejected > 0 {
		e.log.WithFields(map[string]interface{}{
			"symbol":   symbol,
			"rejected": window.Rejected,
		}).Warn("Rejected corrupt history observations while building window")
	}

	return e.rankInWindow(&window, currentIV), nil
}

// rankInWindow is the pure core shared with the batch path.
func (e *Engine) rankInWindow(window *history.Window, currentIV float64) Result {
	ivs := window.ReferenceIVs(e.cfg.ReferenceTenorDays)
	historyDays := len(ivs)

	if math.IsNaN(currentIV) || historyDays < e.cfg.MinHistoryDays {
		return Result{
			Rank:        math.NaN(),
			HistoryDays: historyDays,
			Source:      contracts.RankSourceInsufficient,
		}
	}

	atOrBelow := 0
	for _, iv := range ivs {
		if iv <= currentIV {
			atOrBelow++
		}
	}

	return Result{
		Rank:        100.0 * float64(atOrBelow) / float64(historyDays),
		HistoryDays: historyDays,
		Source:      contracts.RankSourceHistorical,
	}
}
