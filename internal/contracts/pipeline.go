package contracts

// Pipeline stage definitions. Every log line, funnel summary and DB row
// that references a stage must use these constants.
//
// Pipeline flow:
//   S0 → S1 → S2 → S3
//   Snapshot  Volatility  Classify  Selection
//
// Invariant gates run between adjacent stages; they are cross-cutting
// checks, not stages themselves.

// Stage represents a pipeline stage.
type Stage string

const (
	// StageSnapshot S0: candidate snapshot intake.
	// Responsibility: load the candidate batch, reject malformed records.
	StageSnapshot Stage = "S0_SNAPSHOT"

	// StageVolatility S1: IV rank enrichment.
	// Responsibility: stamp iv_rank / iv_history_days / iv_rank_source
	// from the volatility history store.
	StageVolatility Stage = "S1_VOLATILITY"

	// StageClassify S2: acceptance classification.
	// Responsibility: fuse structural, execution and volatility evidence
	// into a terminal status with reason.
	StageClassify Stage = "S2_CLASSIFY"

	// StageSelect S3: selection and sizing.
	// Responsibility: one pick per symbol, portfolio caps, allocation.
	StageSelect Stage = "S3_SELECTION"
)

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// ShortName returns the abbreviated stage name (e.g. "S0").
func (s Stage) ShortName() string {
	switch s {
	case StageSnapshot:
		return "S0"
	case StageVolatility:
		return "S1"
	case StageClassify:
		return "S2"
	case StageSelect:
		return "S3"
	default:
		return "UNKNOWN"
	}
}

// AllStages returns all pipeline stages in execution order.
func AllStages() []Stage {
	return []Stage{StageSnapshot, StageVolatility, StageClassify, StageSelect}
}

// IsValidStage checks whether a stage string is one of the known stages.
func IsValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}

// StageResult records the outcome of one pipeline stage execution.
type StageResult struct {
	Stage       Stage  `json:"stage"`
	Success     bool   `json:"success"`
	InputCount  int    `json:"input_count"`
	OutputCount int    `json:"output_count"`
	Skipped     int    `json:"skipped"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// FunnelSummary is the per-run pipeline-health object produced for
// observability. Completed is conditioned on usable output existing,
// not merely on the absence of errors.
type FunnelSummary struct {
	RunID          string         `json:"run_id"`
	SnapshotRef    string         `json:"snapshot_ref"`
	Timestamp      int64          `json:"timestamp"`
	Stages         []StageResult  `json:"stages"`
	StatusCounts   map[Status]int `json:"status_counts"`
	CandidateCount int            `json:"candidate_count"`
	SelectedCount  int            `json:"selected_count"`
	SkippedRecords int            `json:"skipped_records"`
	Completed      bool           `json:"completed"`
}

// ReadyRate returns the fraction of candidates that reached READY_NOW.
func (f *FunnelSummary) ReadyRate() float64 {
	if f.CandidateCount == 0 {
		return 0.0
	}
	return float64(f.StatusCounts[StatusReadyNow]) / float64(f.CandidateCount)
}

// SelectionRate returns the fraction of candidates that survived selection.
func (f *FunnelSummary) SelectionRate() float64 {
	if f.CandidateCount == 0 {
		return 0.0
	}
	return float64(f.SelectedCount) / float64(f.CandidateCount)
}
