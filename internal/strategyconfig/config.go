// Package strategyconfig loads the immutable screening threshold
// document. The YAML file is the single source of truth for thresholds;
// a run records the document's hash so any result can be traced back to
// the exact configuration that produced it.
package strategyconfig

import (
	"time"

	"github.com/seolwon/ivscreen/internal/classify"
	"github.com/seolwon/ivscreen/internal/ivrank"
)

// Config is the full screening strategy configuration.
type Config struct {
	Meta       Meta            `yaml:"meta" json:"meta"`
	Volatility ivrank.Config   `yaml:"volatility" json:"volatility"`
	Acceptance classify.Config `yaml:"acceptance" json:"acceptance"`
	Portfolio  Portfolio       `yaml:"portfolio" json:"portfolio"`
}

// Meta identifies the strategy document.
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
	Timezone   string `yaml:"timezone" json:"timezone"`
}

// Portfolio holds the portfolio-shape limits. Account balance and the
// sizing method are per-run inputs, never part of the document.
type Portfolio struct {
	MaxPositions         int     `yaml:"max_positions" json:"max_positions"`
	DiversificationLimit int     `yaml:"diversification_limit" json:"diversification_limit"`
	MaxTradeRisk         float64 `yaml:"max_trade_risk" json:"max_trade_risk"`
	MaxPortfolioRisk     float64 `yaml:"max_portfolio_risk" json:"max_portfolio_risk"`
	KellyCap             float64 `yaml:"kelly_cap" json:"kelly_cap"`
}

// DecisionSnapshot records which configuration produced a run.
type DecisionSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
}
