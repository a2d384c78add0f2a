package ivrank

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/history"
)

// EnrichBatch stamps volatility evidence (iv_rank, iv_history_days,
// iv_rank_source) onto every candidate and returns a new slice; the
// input batch is never mutated.
//
// A missing history store yields NaN for every symbol and is logged once
// for the whole batch, not per row.
func (e *Engine) EnrichBatch(ctx context.Context, candidates []contracts.Candidate, asOf time.Time) ([]contracts.Candidate, error) {
	out := make([]contracts.Candidate, len(candidates))
	copy(out, candidates)

	storeEmpty := false
	windows := make(map[string]*history.Window)

	for i := range out {
		c := &out[i]

		currentIV := c.CurrentIV
		if !c.HasCurrentIV() {
			currentIV = math.NaN()
		}

		if storeEmpty {
			c.Volatility = Result{
				Rank:        math.NaN(),
				HistoryDays: 0,
				Source:      contracts.RankSourceInsufficient,
			}.Evidence()
			continue
		}

		window, err := e.windowFor(ctx, c.Symbol, asOf, windows)
		if err != nil {
			if errors.Is(err, history.ErrStoreEmpty) {
				// One warning for the batch; every symbol gets NaN.
				e.log.Warn("Volatility history store is empty; IV rank unavailable for all symbols")
				storeEmpty = true
				c.Volatility = Result{
					Rank:        math.NaN(),
					HistoryDays: 0,
					Source:      contracts.RankSourceInsufficient,
				}.Evidence()
				continue
			}
			return nil, err
		}

		c.Volatility = e.rankInWindow(window, currentIV).Evidence()
	}

	return out, nil
}

// windowFor builds (and memoizes) the history window for a symbol so a
// batch with many candidates per symbol hits the store once per symbol.
func (e *Engine) windowFor(ctx context.Context, symbol string, asOf time.Time, cache map[string]*history.Window) (*history.Window, error) {
	if w, ok := cache[symbol]; ok {
		return w, nil
	}

	from := asOf.AddDate(0, 0, -e.cfg.LookbackDays)
	observations, err := e.store.Range(ctx, symbol, from, asOf)
	if err != nil {
		return nil, err
	}

	window := history.BuildWindow(symbol, observations, asOf, e.cfg.LookbackDays)
	if window.Rejected > 0 {
		e.log.WithFields(map[string]interface{}{
			"symbol":   symbol,
			"rejected": window.Rejected,
		}).Warn("Rejected corrupt history observations while building window")
	}

	cache[symbol] = &window
	return &window, nil
}
