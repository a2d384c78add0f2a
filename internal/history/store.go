package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seolwon/ivscreen/internal/contracts"
)

// ErrStoreEmpty is returned when the history store holds no observations
// at all. Callers log it once per batch rather than once per symbol.
var ErrStoreEmpty = errors.New("volatility history store is empty")

// Store is the volatility history store: an append-only time series of
// per-symbol volatility observations keyed by (symbol, date).
//
// Writers (ingestion) and readers (percentile engine) never run
// concurrently against the same key range; observations are immutable
// once written, so a point-in-time read is always consistent.
type Store interface {
	// Append writes observations, enforcing first-write-wins on
	// (symbol, date). Malformed observations are skipped and counted,
	// never fail the batch.
	Append(ctx context.Context, observations []contracts.VolatilityObservation) (AppendResult, error)

	// Range returns observations for one symbol within [from, to],
	// ordered by date ascending.
	Range(ctx context.Context, symbol string, from, to time.Time) ([]contracts.VolatilityObservation, error)

	// Coverage reports per-symbol observation counts and date bounds.
	Coverage(ctx context.Context, symbol string) (Coverage, error)

	// Symbols lists all symbols with at least one observation.
	Symbols(ctx context.Context) ([]string, error)
}

// AppendResult reports what an Append call actually wrote.
type AppendResult struct {
	Written           int `json:"written"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	SkippedInvalid    int `json:"skipped_invalid"`
}

// Coverage describes how much history exists for a symbol.
type Coverage struct {
	Symbol           string                       `json:"symbol"`
	ObservationCount int                          `json:"observation_count"`
	EarliestDate     time.Time                    `json:"earliest_date"`
	LatestDate       time.Time                    `json:"latest_date"`
	QualityCounts    map[contracts.QualityTag]int `json:"quality_counts"`
}

// ValidateObservation rejects malformed observations at the record level.
// Rejection reasons are returned for logging; the batch continues.
func ValidateObservation(o *contracts.VolatilityObservation) error {
	if o.Symbol == "" {
		return fmt.Errorf("missing symbol")
	}
	if o.Date.IsZero() {
		return fmt.Errorf("missing date for %s", o.Symbol)
	}
	if !contracts.IsValidQualityTag(string(o.Quality)) {
		return fmt.Errorf("invalid quality tag %q for %s@%s", o.Quality, o.Symbol, o.Date.Format("2006-01-02"))
	}
	for tenor, iv := range o.IVByTenor {
		if tenor <= 0 {
			return fmt.Errorf("non-positive tenor %d for %s", tenor, o.Symbol)
		}
		if iv < 0 {
			return fmt.Errorf("negative IV %.4f at tenor %d for %s", iv, tenor, o.Symbol)
		}
	}
	for window, hv := range o.HVByWindow {
		if window <= 0 {
			return fmt.Errorf("non-positive HV window %d for %s", window, o.Symbol)
		}
		if hv < 0 {
			return fmt.Errorf("negative HV %.4f at window %d for %s", hv, window, o.Symbol)
		}
	}
	return nil
}

// DateKey normalizes an observation date to its day bucket. All store
// implementations key on this.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
