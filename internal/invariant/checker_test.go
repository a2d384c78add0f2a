package invariant

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolwon/ivscreen/internal/contracts"
)

func TestCheckAllPass(t *testing.T) {
	records := []contracts.Candidate{
		{ID: "a", Structural: contracts.StructuralEvidence{FetchOK: true, ReadyForEvaluation: true}},
		{ID: "b", Structural: contracts.StructuralEvidence{FetchOK: false}},
	}
	v := Check("upstream-success", UpstreamSuccess, CandidateID, records)
	assert.Nil(t, v)
	assert.NoError(t, v.AsError())
}

func TestCheckReportsExactCountAndBoundedSample(t *testing.T) {
	var records []contracts.Candidate
	for i := 0; i < 12; i++ {
		records = append(records, contracts.Candidate{
			ID: fmt.Sprintf("bad-%02d", i),
			// Fetch succeeded but the ready flag was never stamped.
			Structural: contracts.StructuralEvidence{FetchOK: true},
		})
	}

	v := Check("upstream-success", UpstreamSuccess, CandidateID, records)
	require.NotNil(t, v)
	assert.Equal(t, 12, v.OffendingCount)
	assert.Len(t, v.Sample, SampleLimit)
	assert.Equal(t, []string{"bad-00", "bad-01", "bad-02", "bad-03", "bad-04"}, v.Sample)
	assert.Contains(t, v.Error(), `invariant "upstream-success" violated by 12 record(s)`)
}

func TestCheckDoesNotFilter(t *testing.T) {
	records := []contracts.Candidate{
		{ID: "ok", Structural: contracts.StructuralEvidence{FetchOK: true, ReadyForEvaluation: true}},
		{ID: "bad", Structural: contracts.StructuralEvidence{FetchOK: true}},
	}
	before := len(records)

	_ = Check("upstream-success", UpstreamSuccess, CandidateID, records)

	assert.Len(t, records, before)
	assert.Equal(t, "bad", records[1].ID)
}

func TestVolatilityStamped(t *testing.T) {
	pred := VolatilityStamped(120)

	consistent := contracts.Candidate{
		ID: "c1",
		Volatility: contracts.VolatilityEvidence{
			IVRank: 55, IVHistoryDays: 200, Available: true,
			Source: contracts.RankSourceHistorical,
		},
	}
	assert.True(t, pred(&consistent))

	// A rank fabricated despite short history must be caught.
	fabricated := contracts.Candidate{
		ID: "c2",
		Volatility: contracts.VolatilityEvidence{
			IVRank: 50, IVHistoryDays: 10, Available: true,
			Source: contracts.RankSourceHistorical,
		},
	}
	assert.False(t, pred(&fabricated))

	short := contracts.Candidate{
		ID: "c3",
		Volatility: contracts.VolatilityEvidence{
			IVRank: math.NaN(), IVHistoryDays: 10, Available: false,
			Source: contracts.RankSourceInsufficient,
		},
	}
	assert.True(t, pred(&short))
}

func TestReadyImpliesEvaluable(t *testing.T) {
	ready := contracts.ClassifiedCandidate{
		Candidate: contracts.Candidate{
			ID: "r1",
			Structural: contracts.StructuralEvidence{
				FetchOK: true, ReadyForEvaluation: true,
			},
			Volatility: contracts.VolatilityEvidence{Available: true, IVRank: 70},
		},
		Result: contracts.AcceptanceResult{Status: contracts.StatusReadyNow},
	}
	assert.True(t, ReadyImpliesEvaluable(&ready))

	// READY_NOW without volatility evidence is a contract breach, not a
	// record to quietly drop.
	breach := ready
	breach.Candidate.Volatility.Available = false
	assert.False(t, ReadyImpliesEvaluable(&breach))

	// Non-READY statuses are exempt.
	waiting := breach
	waiting.Result.Status = contracts.StatusWait
	assert.True(t, ReadyImpliesEvaluable(&waiting))
}

func TestNilViolationAsError(t *testing.T) {
	var v *Violation
	assert.NoError(t, v.AsError())
}
