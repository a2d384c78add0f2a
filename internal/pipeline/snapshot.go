package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// SnapshotLoader resolves a snapshot reference into the candidate batch
// for a run. There is no fallback: an unresolvable reference fails the
// run instead of substituting another data source.
type SnapshotLoader interface {
	Load(ctx context.Context, ref string) (SnapshotBatch, error)
}

// SnapshotBatch is the S0 output: accepted candidates plus the count of
// records rejected at intake.
type SnapshotBatch struct {
	Candidates []contracts.Candidate
	Skipped    int
}

// FileSnapshotLoader reads a candidate snapshot from a JSON file (an
// array of candidates). Malformed records are skipped with a logged
// reason and counted; a malformed file fails the run.
type FileSnapshotLoader struct {
	log *logger.Logger
}

// NewFileSnapshotLoader creates a file-based snapshot loader.
func NewFileSnapshotLoader(log *logger.Logger) *FileSnapshotLoader {
	return &FileSnapshotLoader{log: log}
}

func (l *FileSnapshotLoader) Load(ctx context.Context, ref string) (SnapshotBatch, error) {
	if err := ctx.Err(); err != nil {
		return SnapshotBatch{}, err
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return SnapshotBatch{}, fmt.Errorf("read snapshot %q: %w", ref, err)
	}

	var raw []contracts.Candidate
	if err := json.Unmarshal(data, &raw); err != nil {
		return SnapshotBatch{}, fmt.Errorf("decode snapshot %q: %w", ref, err)
	}

	batch := SnapshotBatch{Candidates: make([]contracts.Candidate, 0, len(raw))}
	seen := make(map[string]bool, len(raw))

	for i := range raw {
		if reason := validateCandidate(&raw[i]); reason != "" {
			l.log.WithFields(map[string]interface{}{
				"index":  i,
				"id":     raw[i].ID,
				"symbol": raw[i].Symbol,
				"reason": reason,
			}).Warn("Skipping malformed snapshot record")
			batch.Skipped++
			continue
		}
		if seen[raw[i].ID] {
			l.log.WithField("id", raw[i].ID).Warn("Skipping duplicate candidate id")
			batch.Skipped++
			continue
		}
		seen[raw[i].ID] = true
		batch.Candidates = append(batch.Candidates, raw[i])
	}

	return batch, nil
}

// validateCandidate returns a non-empty reason for records the pipeline
// must not process. Missing evidence values are not input errors; those
// propagate as NaN/UNKNOWN downstream.
func validateCandidate(c *contracts.Candidate) string {
	switch {
	case c.ID == "":
		return "missing candidate id"
	case c.Symbol == "":
		return "missing symbol"
	case c.Family != contracts.FamilyDirectional &&
		c.Family != contracts.FamilyIncome &&
		c.Family != contracts.FamilyVolatility:
		return fmt.Sprintf("unknown strategy family %q", c.Family)
	case c.Strategy == "":
		return "missing strategy template"
	case c.Expiration.IsZero():
		return "missing expiration"
	case len(c.Strikes) == 0:
		return "missing strikes"
	}
	return ""
}
