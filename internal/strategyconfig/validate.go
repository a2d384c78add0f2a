package strategyconfig

import (
	"fmt"
	"time"
)

// ValidationError aborts the program; a strategy document with a bad
// threshold must never reach the pipeline.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the whole document. Component configs carry their own
// Validate; this adds the document-level constraints.
func Validate(cfg *Config) error {
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Meta.Version == "" {
		return ValidationError{"meta.version", "required"}
	}
	if cfg.Meta.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Meta.Timezone); err != nil {
			return ValidationError{"meta.timezone", err.Error()}
		}
	}

	if err := cfg.Volatility.Validate(); err != nil {
		return ValidationError{"volatility", err.Error()}
	}
	if err := cfg.Acceptance.Validate(); err != nil {
		return ValidationError{"acceptance", err.Error()}
	}

	// The classifier's history floor and the rank engine's must agree,
	// otherwise downgrade reasons would state the wrong deficit.
	if cfg.Acceptance.MinHistoryDays != cfg.Volatility.MinHistoryDays {
		return ValidationError{"acceptance.min_history_days",
			fmt.Sprintf("must match volatility.min_history_days (%d vs %d)",
				cfg.Acceptance.MinHistoryDays, cfg.Volatility.MinHistoryDays)}
	}

	p := cfg.Portfolio
	if p.MaxPositions <= 0 {
		return ValidationError{"portfolio.max_positions", "must be > 0"}
	}
	if p.DiversificationLimit <= 0 {
		return ValidationError{"portfolio.diversification_limit", "must be > 0"}
	}
	if p.MaxTradeRisk <= 0 || p.MaxTradeRisk > 1 {
		return ValidationError{"portfolio.max_trade_risk", "must be in (0, 1]"}
	}
	if p.MaxPortfolioRisk <= 0 || p.MaxPortfolioRisk > 1 {
		return ValidationError{"portfolio.max_portfolio_risk", "must be in (0, 1]"}
	}
	if p.MaxTradeRisk > p.MaxPortfolioRisk {
		return ValidationError{"portfolio.max_trade_risk", "must not exceed max_portfolio_risk"}
	}
	if p.KellyCap <= 0 || p.KellyCap > 1 {
		return ValidationError{"portfolio.kelly_cap", "must be in (0, 1]"}
	}

	return nil
}
