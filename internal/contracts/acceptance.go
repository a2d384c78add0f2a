package contracts

// Status is the five-way terminal classification produced by the
// acceptance classifier, in precedence order.
type Status string

const (
	// StatusIncomplete: the upstream contract fetch/selection failed;
	// the candidate never reached evaluability.
	StatusIncomplete Status = "INCOMPLETE"

	// StatusAvoid: a strategy hard gate or conflicting-signal rule fired.
	StatusAvoid Status = "AVOID"

	// StatusReadyNow: structural score passes and volatility evidence is
	// available. The only status selection may consume.
	StatusReadyNow Status = "READY_NOW"

	// StatusStructurallyReady: structural score passes but volatility
	// evidence is unavailable. The ceiling when IV history is short.
	StatusStructurallyReady Status = "STRUCTURALLY_READY"

	// StatusWait: nothing disqualifying, structural score below threshold.
	StatusWait Status = "WAIT"
)

// Confidence is the coarse confidence band attached to a classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// AcceptanceResult is attached to a candidate once per pipeline run.
// A re-run produces a new result, never a patch of an old one.
type AcceptanceResult struct {
	CandidateID     string     `json:"candidate_id"`
	Symbol          string     `json:"symbol"`
	Status          Status     `json:"status"`
	Confidence      Confidence `json:"confidence"`
	Reason          string     `json:"reason"`
	DirectionalBias string     `json:"directional_bias"`
	StructureBias   string     `json:"structure_bias"`
}

// Terminal reports whether the status blocks further pipeline progress
// for this candidate (everything except READY_NOW does).
func (r *AcceptanceResult) Terminal() bool {
	return r.Status != StatusReadyNow
}

// ClassifiedCandidate pairs a candidate with its acceptance result for
// hand-off from S2 to S3.
type ClassifiedCandidate struct {
	Candidate Candidate        `json:"candidate"`
	Result    AcceptanceResult `json:"result"`
}
