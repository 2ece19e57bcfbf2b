package resolve

import (
	"context"

	"quotedesk/internal/market"
)

// SeriesSource is the cached series lookup (cache.SeriesCache in
// production).
type SeriesSource interface {
	GetOrFetch(ctx context.Context, symbol string, plan market.TierPlan) (*market.TimeSeries, error)
}

// SymbolResolver walks an instrument's candidate tickers in order and keeps
// the first one the cache/fetcher produces a usable series for.
type SymbolResolver struct {
	Source SeriesSource
}

// Resolve returns ("", nil, nil) when no candidate had data. An error means
// the walk was cut short — rate limiting or cancellation — and the
// remaining candidates were deliberately not tried: a throttled provider
// will reject those calls too, and issuing them only accelerates lockout.
func (r *SymbolResolver) Resolve(ctx context.Context, candidates []string, plan market.TierPlan) (string, *market.TimeSeries, error) {
	for _, sym := range candidates {
		series, err := r.Source.GetOrFetch(ctx, sym, plan)
		if err != nil {
			return "", nil, err
		}
		if series != nil {
			return sym, series, nil
		}
	}
	return "", nil, nil
}
