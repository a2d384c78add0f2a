// Package classify implements the acceptance state machine: each
// candidate is mapped to exactly one of the five terminal statuses by a
// fixed precedence chain, with a confidence band and descriptive bias
// tags attached. Classification is a pure function of the candidate's
// evidence bundles; the classifier never mutates its input and never
// performs I/O.
package classify

import (
	"fmt"
	"math"
	"strings"

	"github.com/seolwon/ivscreen/internal/contracts"
)

// Config holds the classifier thresholds. Zero-value configs are
// rejected at construction; there are no silent defaults at decision
// time.
type Config struct {
	// AcceptanceThreshold is the structural score at or above which a
	// candidate is considered structurally acceptable.
	AcceptanceThreshold float64 `yaml:"acceptance_threshold" json:"acceptance_threshold"`

	// MinHistoryDays mirrors the IV engine's minimum so downgrade
	// reasons can state the exact history deficit.
	MinHistoryDays int `yaml:"min_history_days" json:"min_history_days"`

	Gates GateConfig `yaml:"gates" json:"gates"`
}

// DefaultConfig returns the stock classifier thresholds.
func DefaultConfig() Config {
	return Config{
		AcceptanceThreshold: 60,
		MinHistoryDays:      120,
		Gates:               DefaultGateConfig(),
	}
}

// Validate fails fast on thresholds that would make the state machine
// degenerate.
func (c Config) Validate() error {
	if c.AcceptanceThreshold <= 0 || c.AcceptanceThreshold > 100 {
		return fmt.Errorf("acceptance_threshold %.1f out of (0, 100]", c.AcceptanceThreshold)
	}
	if c.MinHistoryDays <= 0 {
		return fmt.Errorf("min_history_days must be > 0, got %d", c.MinHistoryDays)
	}
	for family, gates := range map[contracts.StrategyFamily]FamilyGates{
		contracts.FamilyDirectional: c.Gates.Directional,
		contracts.FamilyIncome:      c.Gates.Income,
		contracts.FamilyVolatility:  c.Gates.Volatility,
	} {
		if gates.MinScore < 0 || gates.MinScore > 100 {
			return fmt.Errorf("%s min_score %.1f out of [0, 100]", family, gates.MinScore)
		}
		if gates.MinScore > c.AcceptanceThreshold {
			return fmt.Errorf("%s min_score %.1f above acceptance_threshold %.1f",
				family, gates.MinScore, c.AcceptanceThreshold)
		}
	}
	return nil
}

// Classifier applies the acceptance state machine. Safe for concurrent
// use: all state is immutable after construction.
type Classifier struct {
	cfg Config
}

// New constructs a Classifier, rejecting invalid thresholds.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("classifier config: %w", err)
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify maps one candidate to its acceptance result. Precedence is
// fixed: INCOMPLETE, then AVOID, then the READY_NOW / STRUCTURALLY_READY
// / WAIT base decision. Missing volatility evidence can only downgrade
// READY_NOW to STRUCTURALLY_READY, never promote or reject.
func (cl *Classifier) Classify(c *contracts.Candidate) contracts.AcceptanceResult {
	result := contracts.AcceptanceResult{
		CandidateID:     c.ID,
		Symbol:          c.Symbol,
		DirectionalBias: directionalBias(c),
		StructureBias:   structureBias(c),
	}

	// 1. Upstream fetch failure: the candidate never became evaluable.
	if !c.Structural.FetchOK || !c.Structural.ReadyForEvaluation {
		result.Status = contracts.StatusIncomplete
		result.Confidence = contracts.ConfidenceLow
		result.Reason = incompleteReason(&c.Structural)
		return result
	}

	// 2. Family hard gates and conflicting-signal rules.
	gates, ok := gateTable[c.Family]
	if !ok {
		// Closed enum; an unknown family is corrupt input, not a new
		// strategy. Refuse rather than guess.
		result.Status = contracts.StatusAvoid
		result.Confidence = contracts.ConfidenceLow
		result.Reason = fmt.Sprintf("unknown strategy family %q", c.Family)
		return result
	}
	if violations := gates(c, cl.cfg.Gates.forFamily(c.Family)); len(violations) > 0 {
		result.Status = contracts.StatusAvoid
		result.Confidence = confidenceFor(c, contracts.StatusAvoid)
		result.Reason = joinViolations(violations)
		return result
	}

	// 3. Base decision on the structural score.
	if c.Structural.Score < cl.cfg.AcceptanceThreshold {
		result.Status = contracts.StatusWait
		result.Confidence = confidenceFor(c, contracts.StatusWait)
		result.Reason = fmt.Sprintf("structural score %.1f below acceptance threshold %.1f",
			c.Structural.Score, cl.cfg.AcceptanceThreshold)
		return result
	}

	// 4. Downgrade law: structurally acceptable but without usable
	// volatility evidence caps out at STRUCTURALLY_READY.
	if !c.Volatility.Available || math.IsNaN(c.Volatility.IVRank) {
		result.Status = contracts.StatusStructurallyReady
		result.Confidence = confidenceFor(c, contracts.StatusStructurallyReady)
		result.Reason = downgradeReason(c.Volatility.IVHistoryDays, cl.cfg.MinHistoryDays)
		return result
	}

	result.Status = contracts.StatusReadyNow
	result.Confidence = confidenceFor(c, contracts.StatusReadyNow)
	result.Reason = fmt.Sprintf("structural score %.1f at or above threshold %.1f; iv rank %.1f from %d days of history",
		c.Structural.Score, cl.cfg.AcceptanceThreshold, c.Volatility.IVRank, c.Volatility.IVHistoryDays)
	return result
}

// GatesClear re-evaluates the family hard gates for a candidate. The
// selection gate uses it to re-validate READY_NOW results immediately
// before sizing.
func (cl *Classifier) GatesClear(c *contracts.Candidate) bool {
	gates, ok := gateTable[c.Family]
	if !ok {
		return false
	}
	return len(gates(c, cl.cfg.Gates.forFamily(c.Family))) == 0
}

// ClassifyAll classifies a batch in input order. Pure per element; the
// orchestrator decides whether to fan out.
func (cl *Classifier) ClassifyAll(candidates []contracts.Candidate) []contracts.ClassifiedCandidate {
	out := make([]contracts.ClassifiedCandidate, 0, len(candidates))
	for i := range candidates {
		out = append(out, contracts.ClassifiedCandidate{
			Candidate: candidates[i],
			Result:    cl.Classify(&candidates[i]),
		})
	}
	return out
}

// downgradeReason states the exact history deficit so operators can see
// how far the symbol is from maturation.
func downgradeReason(historyDays, minDays int) string {
	remaining := minDays - historyDays
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("iv history %d of %d days, ~%d days to maturation",
		historyDays, minDays, remaining)
}

func incompleteReason(s *contracts.StructuralEvidence) string {
	stage := s.FetchFailedStage
	if stage == "" {
		stage = "contract fetch/selection"
	}
	if !s.FetchOK {
		return fmt.Sprintf("upstream failure at %s", stage)
	}
	return "contract selection did not mark candidate ready for evaluation"
}

func joinViolations(violations []GateViolation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

// directionalBias is a descriptive tag pairing the thesis with the
// observed trend. It never feeds back into the status decision.
func directionalBias(c *contracts.Candidate) string {
	s := &c.Structural
	if s.Bias == contracts.DirectionNeutral {
		return "neutral"
	}
	side := strings.ToLower(string(s.Bias))
	switch s.Trend {
	case contracts.TrendUnknown:
		return side + "_trend_unknown"
	case contracts.TrendSideway:
		return side + "_in_range"
	}
	aligned := (s.Bias == contracts.DirectionLong && s.Trend == contracts.TrendUp) ||
		(s.Bias == contracts.DirectionShort && s.Trend == contracts.TrendDown)
	if aligned {
		return side + "_with_trend"
	}
	return side + "_against_trend"
}

// structureBias names the dominant structural signal.
func structureBias(c *contracts.Candidate) string {
	s := &c.Structural
	switch {
	case s.Compression:
		return "compression"
	case math.Abs(s.GapPct) >= 0.03:
		return "gap"
	case s.Week52Position <= 0.15:
		return "near_52w_low"
	case s.Week52Position >= 0.85:
		return "near_52w_high"
	default:
		return "balanced"
	}
}
