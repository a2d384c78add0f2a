package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/pkg/clickhouse"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// Fixed tenor/window columns in the columnar layout. Observations may
// carry a subset; absent values are stored as NULL, never defaulted.
var (
	ivTenors  = []int{30, 60, 90}
	hvWindows = []int{20, 60, 120}
)

// Schema holds the DDL for the history dataset. MergeTree ordered by
// (symbol, date) gives efficient range scans per symbol.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS volatility_observations (
		symbol    LowCardinality(String),
		date      Date,
		iv_t30    Nullable(Float64),
		iv_t60    Nullable(Float64),
		iv_t90    Nullable(Float64),
		hv_w20    Nullable(Float64),
		hv_w60    Nullable(Float64),
		hv_w120   Nullable(Float64),
		source    LowCardinality(String),
		quality   LowCardinality(String),
		ingested  DateTime DEFAULT now()
	) ENGINE = MergeTree()
	ORDER BY (symbol, date)`,
}

// ClickHouseStore is the persistent, columnar Store implementation.
type ClickHouseStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewClickHouseStore creates the store and ensures the schema exists.
func NewClickHouseStore(ctx context.Context, client *clickhouse.Client, log *logger.Logger) (*ClickHouseStore, error) {
	if err := client.InitSchema(ctx, Schema); err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return &ClickHouseStore{db: client.DB(), log: log}, nil
}

// Append inserts observations, skipping records whose (symbol, date) key
// already exists. First write wins; the store is never updated in place.
func (s *ClickHouseStore) Append(ctx context.Context, observations []contracts.VolatilityObservation) (AppendResult, error) {
	var result AppendResult
	if len(observations) == 0 {
		return result, nil
	}

	valid := make([]contracts.VolatilityObservation, 0, len(observations))
	for i := range observations {
		if err := ValidateObservation(&observations[i]); err != nil {
			result.SkippedInvalid++
			s.log.WithError(err).Warn("Rejected malformed observation")
			continue
		}
		valid = append(valid, observations[i])
	}
	if len(valid) == 0 {
		return result, nil
	}

	existing, err := s.existingKeys(ctx, valid)
	if err != nil {
		return result, fmt.Errorf("check existing keys: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO volatility_observations
		(symbol, date, iv_t30, iv_t60, iv_t90, hv_w20, hv_w60, hv_w120, source, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return result, fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	seen := make(map[string]bool, len(valid))
	for i := range valid {
		o := &valid[i]
		key := o.Symbol + "/" + DateKey(o.Date)
		if existing[key] || seen[key] {
			result.SkippedDuplicates++
			continue
		}
		seen[key] = true

		args := []interface{}{o.Symbol, o.Date.UTC()}
		for _, tenor := range ivTenors {
			args = append(args, nullable(o.IVByTenor, tenor))
		}
		for _, window := range hvWindows {
			args = append(args, nullable(o.HVByWindow, window))
		}
		args = append(args, o.Source, string(o.Quality))

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return result, fmt.Errorf("append %s@%s: %w", o.Symbol, DateKey(o.Date), err)
		}
		result.Written++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit batch: %w", err)
	}
	return result, nil
}

// existingKeys returns the (symbol, date) keys already present for the
// batch's date range, per symbol.
func (s *ClickHouseStore) existingKeys(ctx context.Context, observations []contracts.VolatilityObservation) (map[string]bool, error) {
	minDate, maxDate := observations[0].Date, observations[0].Date
	symbolSet := make(map[string]bool)
	for i := range observations {
		o := &observations[i]
		symbolSet[o.Symbol] = true
		if o.Date.Before(minDate) {
			minDate = o.Date
		}
		if o.Date.After(maxDate) {
			maxDate = o.Date
		}
	}

	existing := make(map[string]bool)
	for symbol := range symbolSet {
		rows, err := s.db.QueryContext(ctx,
			`SELECT date FROM volatility_observations WHERE symbol = ? AND date >= ? AND date <= ?`,
			symbol, minDate.UTC(), maxDate.UTC())
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var date time.Time
			if err := rows.Scan(&date); err != nil {
				rows.Close()
				return nil, err
			}
			existing[symbol+"/"+DateKey(date)] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

// Range returns observations for a symbol within [from, to], date ascending.
func (s *ClickHouseStore) Range(ctx context.Context, symbol string, from, to time.Time) ([]contracts.VolatilityObservation, error) {
	var total uint64
	if err := s.db.QueryRowContext(ctx, `SELECT count() FROM volatility_observations`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count observations: %w", err)
	}
	if total == 0 {
		return nil, ErrStoreEmpty
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, iv_t30, iv_t60, iv_t90, hv_w20, hv_w60, hv_w120, source, quality
		FROM volatility_observations
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.VolatilityObservation, 0, 300)
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Coverage reports counts, date bounds and quality mix for one symbol.
func (s *ClickHouseStore) Coverage(ctx context.Context, symbol string) (Coverage, error) {
	cov := Coverage{
		Symbol:        symbol,
		QualityCounts: make(map[contracts.QualityTag]int),
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT count(), min(date), max(date)
		FROM volatility_observations
		WHERE symbol = ?`, symbol)

	var count uint64
	var earliest, latest sql.NullTime
	if err := row.Scan(&count, &earliest, &latest); err != nil {
		return cov, fmt.Errorf("coverage query: %w", err)
	}
	cov.ObservationCount = int(count)
	if count == 0 {
		return cov, nil
	}
	cov.EarliestDate = earliest.Time
	cov.LatestDate = latest.Time

	rows, err := s.db.QueryContext(ctx, `
		SELECT quality, count()
		FROM volatility_observations
		WHERE symbol = ?
		GROUP BY quality`, symbol)
	if err != nil {
		return cov, fmt.Errorf("quality counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var quality string
		var qcount uint64
		if err := rows.Scan(&quality, &qcount); err != nil {
			return cov, fmt.Errorf("scan quality: %w", err)
		}
		cov.QualityCounts[contracts.QualityTag(quality)] = int(qcount)
	}
	return cov, rows.Err()
}

// Symbols lists all symbols with at least one observation.
func (s *ClickHouseStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM volatility_observations ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("symbols query: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

func nullable(values map[int]float64, key int) interface{} {
	if v, ok := values[key]; ok {
		return v
	}
	return nil
}

func scanObservation(rows *sql.Rows) (contracts.VolatilityObservation, error) {
	var (
		o       contracts.VolatilityObservation
		date    time.Time
		ivs     = make([]sql.NullFloat64, len(ivTenors))
		hvs     = make([]sql.NullFloat64, len(hvWindows))
		quality string
	)

	dest := []interface{}{&o.Symbol, &date}
	for i := range ivs {
		dest = append(dest, &ivs[i])
	}
	for i := range hvs {
		dest = append(dest, &hvs[i])
	}
	dest = append(dest, &o.Source, &quality)

	if err := rows.Scan(dest...); err != nil {
		return o, err
	}

	o.Date = date
	o.Quality = contracts.QualityTag(quality)
	o.IVByTenor = make(map[int]float64)
	o.HVByWindow = make(map[int]float64)
	for i, tenor := range ivTenors {
		if ivs[i].Valid {
			o.IVByTenor[tenor] = ivs[i].Float64
		}
	}
	for i, window := range hvWindows {
		if hvs[i].Valid {
			o.HVByWindow[window] = hvs[i].Float64
		}
	}
	return o, nil
}

var _ Store = (*ClickHouseStore)(nil)
