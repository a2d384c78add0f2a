package invariant

import (
	"github.com/seolwon/ivscreen/internal/contracts"
)

// Canonical cross-stage predicates. Each is a pure read of the record;
// composing them with stage-local rules (gate re-checks, config-derived
// thresholds) is the orchestrator's job.

// UpstreamSuccess holds when a successful contract fetch also stamped
// the ready-for-evaluation flag. A fetch that failed is exempt: the
// classifier routes it to INCOMPLETE instead.
func UpstreamSuccess(c *contracts.Candidate) bool {
	return !c.Structural.FetchOK || c.Structural.ReadyForEvaluation
}

// VolatilityStamped returns the predicate that every candidate leaving
// the enrichment stage carries an internally consistent volatility
// evidence bundle for the given minimum history.
func VolatilityStamped(minHistoryDays int) func(*contracts.Candidate) bool {
	return func(c *contracts.Candidate) bool {
		return c.Volatility.Consistent(minHistoryDays)
	}
}

// ReadyImpliesEvaluable holds when a READY_NOW classification sits on a
// candidate whose upstream flags actually support it.
func ReadyImpliesEvaluable(cc *contracts.ClassifiedCandidate) bool {
	if cc.Result.Status != contracts.StatusReadyNow {
		return true
	}
	return cc.Candidate.Structural.FetchOK &&
		cc.Candidate.Structural.ReadyForEvaluation &&
		cc.Candidate.Volatility.Available
}

// ReasonPresent holds when every terminal status carries a non-empty
// specific reason.
func ReasonPresent(cc *contracts.ClassifiedCandidate) bool {
	return cc.Result.Reason != ""
}

// CandidateID extracts the record identity for violation samples.
func CandidateID(c *contracts.Candidate) string { return c.ID }

// ClassifiedID extracts the record identity for violation samples.
func ClassifiedID(cc *contracts.ClassifiedCandidate) string { return cc.Candidate.ID }
