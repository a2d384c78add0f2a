package contracts

import "testing"

func TestStage_ShortName(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageSnapshot, "S0"},
		{StageVolatility, "S1"},
		{StageClassify, "S2"},
		{StageSelect, "S3"},
		{Stage("S9_BOGUS"), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.stage.ShortName(); got != tt.want {
			t.Errorf("ShortName(%s) = %s, want %s", tt.stage, got, tt.want)
		}
	}
}

func TestAllStages_Order(t *testing.T) {
	stages := AllStages()
	if len(stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(stages))
	}
	if stages[0] != StageSnapshot || stages[3] != StageSelect {
		t.Errorf("stage order wrong: %v", stages)
	}
}

func TestFunnelSummary_Rates(t *testing.T) {
	f := &FunnelSummary{
		CandidateCount: 40,
		SelectedCount:  5,
		StatusCounts: map[Status]int{
			StatusReadyNow:          10,
			StatusStructurallyReady: 8,
			StatusWait:              15,
			StatusAvoid:             5,
			StatusIncomplete:        2,
		},
	}

	if got := f.ReadyRate(); got != 0.25 {
		t.Errorf("ReadyRate() = %v, want 0.25", got)
	}
	if got := f.SelectionRate(); got != 0.125 {
		t.Errorf("SelectionRate() = %v, want 0.125", got)
	}

	empty := &FunnelSummary{}
	if empty.ReadyRate() != 0 || empty.SelectionRate() != 0 {
		t.Error("empty funnel must report zero rates")
	}
}

func TestSelectionReport_Totals(t *testing.T) {
	r := &SelectionReport{
		Selections: []FinalSelection{
			{Symbol: "AAPL", DollarAllocation: 5000, MaxRisk: 1000, PositionValid: true},
			{Symbol: "MSFT", DollarAllocation: 3000, MaxRisk: 600, PositionValid: true},
			{Symbol: "TSLA", DollarAllocation: 0, PositionValid: false, ExclusionReason: "cannot size within max trade risk"},
		},
	}

	if got := r.TotalAllocation(); got != 8000 {
		t.Errorf("TotalAllocation() = %v, want 8000", got)
	}
	if got := r.TotalRisk(); got != 1600 {
		t.Errorf("TotalRisk() = %v, want 1600", got)
	}
	if got := len(r.ValidSelections()); got != 2 {
		t.Errorf("ValidSelections() len = %d, want 2", got)
	}
}
