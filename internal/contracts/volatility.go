package contracts

import "time"

// QualityTag describes how complete a volatility observation is.
type QualityTag string

const (
	QualityFull    QualityTag = "FULL"
	QualityPartial QualityTag = "PARTIAL"
	QualitySparse  QualityTag = "SPARSE"
	QualityMissing QualityTag = "MISSING"
)

// IsValidQualityTag checks whether a tag string is one of the known tags.
func IsValidQualityTag(s string) bool {
	switch QualityTag(s) {
	case QualityFull, QualityPartial, QualitySparse, QualityMissing:
		return true
	}
	return false
}

// VolatilityObservation is one immutable row of the volatility history
// store, keyed by (symbol, date). A given key is written at most once;
// observations are never mutated or deleted so that later percentile
// calculations stay correct and replay-safe.
type VolatilityObservation struct {
	Symbol     string          `json:"symbol"`
	Date       time.Time       `json:"date"`
	IVByTenor  map[int]float64 `json:"iv_by_tenor"`  // key: tenor days (e.g. 30)
	HVByWindow map[int]float64 `json:"hv_by_window"` // key: window days (e.g. 20)
	Source     string          `json:"source"`
	Quality    QualityTag      `json:"quality"`
}

// IV returns the implied volatility for a tenor and whether it is present.
func (o *VolatilityObservation) IV(tenorDays int) (float64, bool) {
	v, ok := o.IVByTenor[tenorDays]
	return v, ok
}

// RankSource identifies how (or whether) an IV rank was computed.
type RankSource string

const (
	// RankSourceHistorical means the rank was computed against the
	// symbol's own trailing IV distribution.
	RankSourceHistorical RankSource = "historical"

	// RankSourceInsufficient means the trailing window was too short and
	// the rank is NaN. Never substituted with a default.
	RankSourceInsufficient RankSource = "insufficient_data"
)
