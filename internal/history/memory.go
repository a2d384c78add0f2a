package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seolwon/ivscreen/internal/contracts"
)

// MemoryStore is an in-memory Store. It backs unit tests and serves as
// the point-in-time snapshot for a classification run: ingest appends,
// then the pipeline reads a consistent copy (append-then-snapshot).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]contracts.VolatilityObservation // symbol -> date key -> observation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]contracts.VolatilityObservation),
	}
}

// Append writes observations first-write-wins. Invalid records are
// skipped and counted.
func (s *MemoryStore) Append(_ context.Context, observations []contracts.VolatilityObservation) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result AppendResult
	for _, o := range observations {
		if err := ValidateObservation(&o); err != nil {
			result.SkippedInvalid++
			continue
		}

		bySymbol, ok := s.data[o.Symbol]
		if !ok {
			bySymbol = make(map[string]contracts.VolatilityObservation)
			s.data[o.Symbol] = bySymbol
		}

		key := DateKey(o.Date)
		if _, exists := bySymbol[key]; exists {
			result.SkippedDuplicates++
			continue
		}

		bySymbol[key] = o
		result.Written++
	}

	return result, nil
}

// Range returns observations for a symbol within [from, to], date ascending.
func (s *MemoryStore) Range(_ context.Context, symbol string, from, to time.Time) ([]contracts.VolatilityObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return nil, ErrStoreEmpty
	}

	bySymbol := s.data[symbol]
	out := make([]contracts.VolatilityObservation, 0, len(bySymbol))
	for _, o := range bySymbol {
		if o.Date.Before(from) || o.Date.After(to) {
			continue
		}
		out = append(out, o)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	return out, nil
}

// Coverage reports counts and date bounds for one symbol.
func (s *MemoryStore) Coverage(_ context.Context, symbol string) (Coverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cov := Coverage{
		Symbol:        symbol,
		QualityCounts: make(map[contracts.QualityTag]int),
	}

	for _, o := range s.data[symbol] {
		cov.ObservationCount++
		cov.QualityCounts[o.Quality]++
		if cov.EarliestDate.IsZero() || o.Date.Before(cov.EarliestDate) {
			cov.EarliestDate = o.Date
		}
		if o.Date.After(cov.LatestDate) {
			cov.LatestDate = o.Date
		}
	}

	return cov, nil
}

// Symbols lists all symbols with at least one observation, sorted.
func (s *MemoryStore) Symbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.data))
	for symbol, bySymbol := range s.data {
		if len(bySymbol) > 0 {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Snapshot returns a new MemoryStore holding a deep copy of the current
// contents. Readers work against the copy while ingestion continues.
func (s *MemoryStore) Snapshot() *MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := NewMemoryStore()
	for symbol, bySymbol := range s.data {
		cloneBySymbol := make(map[string]contracts.VolatilityObservation, len(bySymbol))
		for key, o := range bySymbol {
			cloneBySymbol[key] = o
		}
		clone.data[symbol] = cloneBySymbol
	}
	return clone
}

var _ Store = (*MemoryStore)(nil)
