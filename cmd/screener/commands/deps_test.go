package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/strategyconfig"
)

func testStrategy() *strategyconfig.Config {
	return &strategyconfig.Config{
		Portfolio: strategyconfig.Portfolio{
			MaxPositions:         5,
			DiversificationLimit: 3,
			MaxTradeRisk:         0.02,
			MaxPortfolioRisk:     0.10,
			KellyCap:             0.25,
		},
	}
}

func TestSelectionConfigUsesDocumentRiskByDefault(t *testing.T) {
	cfg := selectionConfig(testStrategy(), 100_000, "kelly", 0)

	assert.Equal(t, 0.10, cfg.MaxPortfolioRisk)
	assert.Equal(t, 100_000.0, cfg.AccountBalance)
	assert.Equal(t, contracts.SizingKelly, cfg.SizingMethod)
	assert.Equal(t, 5, cfg.MaxPositions)
	assert.Equal(t, 0.25, cfg.KellyCap)
}

func TestSelectionConfigFlagOverridesPortfolioRisk(t *testing.T) {
	cfg := selectionConfig(testStrategy(), 100_000, "fixed_fractional", 0.05)

	assert.Equal(t, 0.05, cfg.MaxPortfolioRisk)
	// Only the risk cap is overridden; the rest stays on the document.
	assert.Equal(t, 0.02, cfg.MaxTradeRisk)
	assert.Equal(t, 3, cfg.DiversificationLimit)
}
