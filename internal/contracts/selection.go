package contracts

// SizingMethod selects the per-trade capital allocation algorithm.
type SizingMethod string

const (
	SizingFixedFractional  SizingMethod = "fixed_fractional"
	SizingKelly            SizingMethod = "kelly"
	SizingVolatilityScaled SizingMethod = "volatility_scaled"
	SizingEqualWeight      SizingMethod = "equal_weight"
)

// IsValidSizingMethod checks whether a method string is one of the known
// sizing methods.
func IsValidSizingMethod(s string) bool {
	switch SizingMethod(s) {
	case SizingFixedFractional, SizingKelly, SizingVolatilityScaled, SizingEqualWeight:
		return true
	}
	return false
}

// FinalSelection is the terminal record for one selected symbol. At most
// one per symbol per run, created only from READY_NOW candidates.
// PositionValid=false records an audited exclusion, never a silent drop.
type FinalSelection struct {
	CandidateID      string         `json:"candidate_id"`
	Symbol           string         `json:"symbol"`
	Family           StrategyFamily `json:"family"`
	DollarAllocation float64        `json:"dollar_allocation"`
	ContractCount    int            `json:"contract_count"`
	MaxRisk          float64        `json:"max_risk"`
	PortfolioWeight  float64        `json:"portfolio_weight"`
	PositionValid    bool           `json:"position_valid"`
	ExclusionReason  string         `json:"exclusion_reason,omitempty"`
}

// SelectionReport is the S3 output: sized positions plus the audit trail
// of everything that was considered and excluded.
type SelectionReport struct {
	Selections []FinalSelection `json:"selections"`
	Excluded   []FinalSelection `json:"excluded"`
}

// ValidSelections returns only the selections that could be sized within
// constraints.
func (r *SelectionReport) ValidSelections() []FinalSelection {
	out := make([]FinalSelection, 0, len(r.Selections))
	for _, s := range r.Selections {
		if s.PositionValid {
			out = append(out, s)
		}
	}
	return out
}

// TotalAllocation returns the aggregate dollar allocation of valid
// selections.
func (r *SelectionReport) TotalAllocation() float64 {
	total := 0.0
	for _, s := range r.Selections {
		if s.PositionValid {
			total += s.DollarAllocation
		}
	}
	return total
}

// TotalRisk returns the aggregate max risk of valid selections.
func (r *SelectionReport) TotalRisk() float64 {
	total := 0.0
	for _, s := range r.Selections {
		if s.PositionValid {
			total += s.MaxRisk
		}
	}
	return total
}
