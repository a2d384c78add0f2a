package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seolwon/ivscreen/internal/contracts"
)

func TestDirectionalGates(t *testing.T) {
	g := DefaultGateConfig().Directional

	tests := []struct {
		name      string
		structure contracts.StructuralEvidence
		wantRules []string
	}{
		{
			name: "clean long with uptrend",
			structure: contracts.StructuralEvidence{
				Score: 70, Trend: contracts.TrendUp, TrendStrength: 0.7,
				Bias: contracts.DirectionLong,
			},
		},
		{
			name: "strong downtrend against long",
			structure: contracts.StructuralEvidence{
				Score: 70, Trend: contracts.TrendDown, TrendStrength: 0.8,
				Bias: contracts.DirectionLong,
			},
			wantRules: []string{"trend_contra"},
		},
		{
			name: "weak contra trend passes",
			structure: contracts.StructuralEvidence{
				Score: 70, Trend: contracts.TrendDown, TrendStrength: 0.4,
				Bias: contracts.DirectionLong,
			},
		},
		{
			name: "unknown trend never fires",
			structure: contracts.StructuralEvidence{
				Score: 70, Trend: contracts.TrendUnknown, TrendStrength: 0.9,
				Bias: contracts.DirectionShort,
			},
		},
		{
			name: "score floor and contra stack",
			structure: contracts.StructuralEvidence{
				Score: 30, Trend: contracts.TrendUp, TrendStrength: 0.9,
				Bias: contracts.DirectionShort,
			},
			wantRules: []string{"score_floor", "trend_contra"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := contracts.Candidate{Family: contracts.FamilyDirectional, Structural: tt.structure}
			violations := directionalGates(&c, g)
			assert.Len(t, violations, len(tt.wantRules))
			for i, rule := range tt.wantRules {
				assert.Equal(t, rule, violations[i].Rule)
			}
		})
	}
}

func TestIncomeGates(t *testing.T) {
	g := DefaultGateConfig().Income

	t.Run("strong trend fires", func(t *testing.T) {
		c := contracts.Candidate{
			Family: contracts.FamilyIncome,
			Structural: contracts.StructuralEvidence{
				Score: 60, Trend: contracts.TrendUp, TrendStrength: 0.85,
			},
		}
		violations := incomeGates(&c, g)
		assert.Len(t, violations, 1)
		assert.Equal(t, "strong_trend", violations[0].Rule)
	})

	t.Run("gap beyond limit fires", func(t *testing.T) {
		c := contracts.Candidate{
			Family: contracts.FamilyIncome,
			Structural: contracts.StructuralEvidence{
				Score: 60, Trend: contracts.TrendSideway, GapPct: -0.08,
			},
		}
		violations := incomeGates(&c, g)
		assert.Len(t, violations, 1)
		assert.Equal(t, "gap_risk", violations[0].Rule)
	})

	t.Run("sideways quiet tape passes", func(t *testing.T) {
		c := contracts.Candidate{
			Family: contracts.FamilyIncome,
			Structural: contracts.StructuralEvidence{
				Score: 60, Trend: contracts.TrendSideway, GapPct: 0.01,
			},
		}
		assert.Empty(t, incomeGates(&c, g))
	})
}

func TestVolatilityGates(t *testing.T) {
	g := DefaultGateConfig().Volatility

	t.Run("trend without compression fires", func(t *testing.T) {
		c := contracts.Candidate{
			Family: contracts.FamilyVolatility,
			Structural: contracts.StructuralEvidence{
				Score: 60, Compression: false,
				Trend: contracts.TrendUp, TrendStrength: 0.8,
			},
		}
		violations := volatilityGates(&c, g)
		assert.Len(t, violations, 1)
		assert.Equal(t, "expansion_without_compression", violations[0].Rule)
	})

	t.Run("elevated iv rank fires only when evidence available", func(t *testing.T) {
		c := contracts.Candidate{
			Family: contracts.FamilyVolatility,
			Structural: contracts.StructuralEvidence{
				Score: 60, Compression: true,
			},
			Volatility: contracts.VolatilityEvidence{
				IVRank: 92, IVHistoryDays: 200, Available: true,
				Source: contracts.RankSourceHistorical,
			},
		}
		violations := volatilityGates(&c, g)
		assert.Len(t, violations, 1)
		assert.Equal(t, "iv_already_elevated", violations[0].Rule)

		// Same rank value without availability is neutral.
		c.Volatility.Available = false
		assert.Empty(t, volatilityGates(&c, g))
	})

	t.Run("compressed base passes", func(t *testing.T) {
		c := contracts.Candidate{
			Family: contracts.FamilyVolatility,
			Structural: contracts.StructuralEvidence{
				Score: 60, Compression: true,
				Trend: contracts.TrendUp, TrendStrength: 0.9,
			},
		}
		assert.Empty(t, volatilityGates(&c, g))
	})
}
