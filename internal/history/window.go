package history

import (
	"sort"
	"time"

	"github.com/seolwon/ivscreen/internal/contracts"
)

// Window is the derived, non-persisted view over one symbol's
// observations within [asOf - lookbackDays, asOf]. It is strictly ordered
// by date with duplicates resolved first-write-wins.
type Window struct {
	Symbol       string
	AsOf         time.Time
	LookbackDays int
	Observations []contracts.VolatilityObservation

	// Rejected counts observations dropped while building the window
	// (out of range, duplicate date, malformed). Callers log the count;
	// a corrupt observation never fails the batch.
	Rejected int
}

// BuildWindow filters, deduplicates and orders raw observations into a
// window ending at asOf. Input order does not matter; the result is
// deterministic for identical input contents.
func BuildWindow(symbol string, observations []contracts.VolatilityObservation, asOf time.Time, lookbackDays int) Window {
	w := Window{
		Symbol:       symbol,
		AsOf:         asOf,
		LookbackDays: lookbackDays,
	}

	from := asOf.AddDate(0, 0, -lookbackDays)

	byDate := make(map[string]contracts.VolatilityObservation)
	for _, o := range observations {
		if o.Symbol != symbol || ValidateObservation(&o) != nil {
			w.Rejected++
			continue
		}
		if o.Date.Before(from) || o.Date.After(asOf) {
			w.Rejected++
			continue
		}
		key := DateKey(o.Date)
		if _, exists := byDate[key]; exists {
			// First write wins; later duplicates are rejected.
			w.Rejected++
			continue
		}
		byDate[key] = o
	}

	keys := make([]string, 0, len(byDate))
	for key := range byDate {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	w.Observations = make([]contracts.VolatilityObservation, 0, len(keys))
	for _, key := range keys {
		w.Observations = append(w.Observations, byDate[key])
	}

	return w
}

// ReferenceIVs returns the non-null IV values at the reference tenor, in
// date order. Days without that tenor do not contribute.
func (w *Window) ReferenceIVs(tenorDays int) []float64 {
	ivs := make([]float64, 0, len(w.Observations))
	for i := range w.Observations {
		if iv, ok := w.Observations[i].IV(tenorDays); ok {
			ivs = append(ivs, iv)
		}
	}
	return ivs
}

// Days returns the number of observations in the window.
func (w *Window) Days() int {
	return len(w.Observations)
}
