package commands

import (
	"context"
	"fmt"

	"github.com/seolwon/ivscreen/internal/classify"
	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/history"
	"github.com/seolwon/ivscreen/internal/ivrank"
	"github.com/seolwon/ivscreen/internal/selection"
	"github.com/seolwon/ivscreen/internal/strategyconfig"
	"github.com/seolwon/ivscreen/pkg/clickhouse"
	"github.com/seolwon/ivscreen/pkg/config"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// initDeps loads environment config and builds the logger. Every
// command starts here.
func initDeps() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Options{
		Level:  level,
		Format: cfg.LogFormat,
		Env:    cfg.Env,
	})

	return cfg, log, nil
}

// loadStrategy reads and validates the strategy document named by the
// global --strategy flag.
func loadStrategy() (*strategyconfig.Config, []byte, error) {
	strategy, raw, err := strategyconfig.Load(strategyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load strategy %q: %w", strategyPath, err)
	}
	return strategy, raw, nil
}

// openHistoryStore connects the volatility history store. useMemory
// swaps in the in-process store for local runs without ClickHouse; the
// returned close func is a no-op in that case.
func openHistoryStore(ctx context.Context, cfg *config.Config, log *logger.Logger, useMemory bool) (history.Store, func(), error) {
	if useMemory {
		return history.NewMemoryStore(), func() {}, nil
	}

	client, err := clickhouse.New(clickhouse.Config{
		Host:     cfg.ClickHouse.Host,
		Port:     cfg.ClickHouse.Port,
		Database: cfg.ClickHouse.Database,
		User:     cfg.ClickHouse.User,
		Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	store, err := history.NewClickHouseStore(ctx, client, log)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	return store, func() { client.Close() }, nil
}

// selectionConfig assembles the run's selection parameters: portfolio
// shape from the strategy document, balance and sizing method from the
// per-run flags. maxPortfolioRisk > 0 overrides the document's cap for
// this run.
func selectionConfig(strategy *strategyconfig.Config, balance float64, method string, maxPortfolioRisk float64) selection.Config {
	cfg := selection.Config{
		MaxPositions:         strategy.Portfolio.MaxPositions,
		DiversificationLimit: strategy.Portfolio.DiversificationLimit,
		SizingMethod:         contracts.SizingMethod(method),
		AccountBalance:       balance,
		MaxTradeRisk:         strategy.Portfolio.MaxTradeRisk,
		MaxPortfolioRisk:     strategy.Portfolio.MaxPortfolioRisk,
		KellyCap:             strategy.Portfolio.KellyCap,
	}
	if maxPortfolioRisk > 0 {
		cfg.MaxPortfolioRisk = maxPortfolioRisk
	}
	return cfg
}

// buildEngines constructs the rank engine and classifier from the
// strategy document.
func buildEngines(store history.Store, strategy *strategyconfig.Config, log *logger.Logger) (*ivrank.Engine, *classify.Classifier, error) {
	engine, err := ivrank.NewEngine(store, strategy.Volatility, log)
	if err != nil {
		return nil, nil, fmt.Errorf("rank engine: %w", err)
	}

	classifier, err := classify.New(strategy.Acceptance)
	if err != nil {
		return nil, nil, fmt.Errorf("classifier: %w", err)
	}

	return engine, classifier, nil
}
