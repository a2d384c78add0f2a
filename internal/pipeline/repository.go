package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seolwon/ivscreen/internal/contracts"
)

// ErrRunNotFound is returned when no run exists for the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunRepository persists run output. Runs are written once, keyed by
// run_id, and never retroactively edited.
type RunRepository interface {
	SaveRun(ctx context.Context, result *RunResult) error
	GetSummary(ctx context.Context, runID string) (*contracts.FunnelSummary, error)
	LatestSummary(ctx context.Context) (*contracts.FunnelSummary, error)
	GetSelections(ctx context.Context, runID string) (*contracts.SelectionReport, error)
	GetResults(ctx context.Context, runID string) ([]contracts.AcceptanceResult, error)
}

// PostgresRunRepository stores run output in Postgres. Run output is
// written inside one transaction so a persisted run is always whole.
type PostgresRunRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRunRepository creates the repository.
func NewPostgresRunRepository(pool *pgxpool.Pool) *PostgresRunRepository {
	return &PostgresRunRepository{pool: pool}
}

// RunSchema is the DDL for the run output tables, applied by the
// migrate command.
const RunSchema = `
CREATE TABLE IF NOT EXISTS screening_runs (
    run_id          TEXT PRIMARY KEY,
    snapshot_ref    TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed       BOOLEAN NOT NULL,
    summary         JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS acceptance_results (
    run_id           TEXT NOT NULL REFERENCES screening_runs(run_id),
    candidate_id     TEXT NOT NULL,
    symbol           TEXT NOT NULL,
    status           TEXT NOT NULL,
    confidence       TEXT NOT NULL,
    reason           TEXT NOT NULL,
    directional_bias TEXT NOT NULL,
    structure_bias   TEXT NOT NULL,
    PRIMARY KEY (run_id, candidate_id)
);

CREATE TABLE IF NOT EXISTS final_selections (
    run_id            TEXT NOT NULL REFERENCES screening_runs(run_id),
    candidate_id      TEXT NOT NULL,
    symbol            TEXT NOT NULL,
    family            TEXT NOT NULL,
    dollar_allocation DOUBLE PRECISION NOT NULL,
    contract_count    INTEGER NOT NULL,
    max_risk          DOUBLE PRECISION NOT NULL,
    portfolio_weight  DOUBLE PRECISION NOT NULL,
    position_valid    BOOLEAN NOT NULL,
    exclusion_reason  TEXT NOT NULL DEFAULT '',
    audit_only        BOOLEAN NOT NULL DEFAULT false,
    PRIMARY KEY (run_id, candidate_id, audit_only)
);

CREATE INDEX IF NOT EXISTS idx_acceptance_results_symbol ON acceptance_results(symbol);
CREATE INDEX IF NOT EXISTS idx_screening_runs_created ON screening_runs(created_at DESC);
`

// InitSchema applies the run output DDL.
func (r *PostgresRunRepository) InitSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, RunSchema); err != nil {
		return fmt.Errorf("apply run schema: %w", err)
	}
	return nil
}

// SaveRun writes the summary, acceptance results and selections for one
// run atomically.
func (r *PostgresRunRepository) SaveRun(ctx context.Context, result *RunResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin run save: %w", err)
	}
	defer tx.Rollback(ctx)

	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("encode funnel summary: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO screening_runs (run_id, snapshot_ref, created_at, completed, summary)
		VALUES ($1, $2, $3, $4, $5)`,
		result.RunID, result.Summary.SnapshotRef,
		time.Unix(result.Summary.Timestamp, 0).UTC(), result.Summary.Completed, summaryJSON)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", result.RunID, err)
	}

	for i := range result.Classified {
		res := &result.Classified[i].Result
		_, err = tx.Exec(ctx, `
			INSERT INTO acceptance_results
				(run_id, candidate_id, symbol, status, confidence, reason, directional_bias, structure_bias)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			result.RunID, res.CandidateID, res.Symbol, res.Status, res.Confidence,
			res.Reason, res.DirectionalBias, res.StructureBias)
		if err != nil {
			return fmt.Errorf("insert acceptance result %s: %w", res.CandidateID, err)
		}
	}

	insertSelection := func(sel *contracts.FinalSelection, auditOnly bool) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO final_selections
				(run_id, candidate_id, symbol, family, dollar_allocation, contract_count,
				 max_risk, portfolio_weight, position_valid, exclusion_reason, audit_only)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			result.RunID, sel.CandidateID, sel.Symbol, sel.Family,
			sel.DollarAllocation, sel.ContractCount, sel.MaxRisk, sel.PortfolioWeight,
			sel.PositionValid, sel.ExclusionReason, auditOnly)
		return err
	}
	for i := range result.Report.Selections {
		if err := insertSelection(&result.Report.Selections[i], false); err != nil {
			return fmt.Errorf("insert selection %s: %w", result.Report.Selections[i].CandidateID, err)
		}
	}
	for i := range result.Report.Excluded {
		if err := insertSelection(&result.Report.Excluded[i], true); err != nil {
			return fmt.Errorf("insert exclusion %s: %w", result.Report.Excluded[i].CandidateID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run %s: %w", result.RunID, err)
	}
	return nil
}

// GetSummary loads one run's funnel summary.
func (r *PostgresRunRepository) GetSummary(ctx context.Context, runID string) (*contracts.FunnelSummary, error) {
	return r.scanSummary(r.pool.QueryRow(ctx,
		`SELECT summary FROM screening_runs WHERE run_id = $1`, runID))
}

// LatestSummary loads the most recent run's funnel summary.
func (r *PostgresRunRepository) LatestSummary(ctx context.Context) (*contracts.FunnelSummary, error) {
	return r.scanSummary(r.pool.QueryRow(ctx,
		`SELECT summary FROM screening_runs ORDER BY created_at DESC LIMIT 1`))
}

func (r *PostgresRunRepository) scanSummary(row pgx.Row) (*contracts.FunnelSummary, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("scan run summary: %w", err)
	}
	var summary contracts.FunnelSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decode run summary: %w", err)
	}
	return &summary, nil
}

// GetSelections loads selections and audit exclusions for one run.
func (r *PostgresRunRepository) GetSelections(ctx context.Context, runID string) (*contracts.SelectionReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT candidate_id, symbol, family, dollar_allocation, contract_count,
		       max_risk, portfolio_weight, position_valid, exclusion_reason, audit_only
		FROM final_selections
		WHERE run_id = $1
		ORDER BY dollar_allocation DESC, symbol`, runID)
	if err != nil {
		return nil, fmt.Errorf("query selections for run %s: %w", runID, err)
	}
	defer rows.Close()

	report := &contracts.SelectionReport{}
	for rows.Next() {
		var sel contracts.FinalSelection
		var auditOnly bool
		if err := rows.Scan(&sel.CandidateID, &sel.Symbol, &sel.Family,
			&sel.DollarAllocation, &sel.ContractCount, &sel.MaxRisk,
			&sel.PortfolioWeight, &sel.PositionValid, &sel.ExclusionReason, &auditOnly); err != nil {
			return nil, fmt.Errorf("scan selection row: %w", err)
		}
		if auditOnly {
			report.Excluded = append(report.Excluded, sel)
		} else {
			report.Selections = append(report.Selections, sel)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate selection rows: %w", err)
	}
	return report, nil
}

// GetResults loads all acceptance results for one run.
func (r *PostgresRunRepository) GetResults(ctx context.Context, runID string) ([]contracts.AcceptanceResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT candidate_id, symbol, status, confidence, reason, directional_bias, structure_bias
		FROM acceptance_results
		WHERE run_id = $1
		ORDER BY symbol, candidate_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []contracts.AcceptanceResult
	for rows.Next() {
		var res contracts.AcceptanceResult
		if err := rows.Scan(&res.CandidateID, &res.Symbol, &res.Status, &res.Confidence,
			&res.Reason, &res.DirectionalBias, &res.StructureBias); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return results, nil
}
