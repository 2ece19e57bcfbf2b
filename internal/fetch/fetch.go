package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"quotedesk/internal/market"
	"quotedesk/internal/metrics"
	"quotedesk/internal/upstream"
)

// TieredFetcher walks an ordered tier list for one symbol and keeps the
// first response with enough points. Provider failures other than rate
// limiting mean "tier failed, try the next one"; a rate limit stops the
// walk immediately.
type TieredFetcher struct {
	Provider upstream.Provider
	Location *time.Location // reference timezone all points are converted to
	Log      zerolog.Logger
}

func New(p upstream.Provider, loc *time.Location, log zerolog.Logger) *TieredFetcher {
	if loc == nil {
		loc = time.UTC
	}
	return &TieredFetcher{Provider: p, Location: loc, Log: log}
}

// Fetch returns (nil, nil) when every tier failed softly. The only error it
// returns wraps upstream.ErrRateLimited or a context cancellation.
func (f *TieredFetcher) Fetch(ctx context.Context, symbol string, tiers []market.Tier) (*market.TimeSeries, error) {
	for _, tier := range tiers {
		rows, err := f.Provider.Historical(ctx, symbol, tier)
		if err != nil {
			if errors.Is(err, upstream.ErrRateLimited) {
				metrics.RateLimited.Inc()
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.Log.Debug().Str("symbol", symbol).Str("range", tier.Range).
				Str("interval", tier.Interval).Err(err).Msg("tier failed")
			continue
		}

		points := f.points(rows)
		min := tier.MinPoints
		if min < 2 {
			min = 2
		}
		if len(points) < min {
			f.Log.Debug().Str("symbol", symbol).Str("interval", tier.Interval).
				Int("points", len(points)).Int("min", min).Msg("tier too thin")
			continue
		}
		return market.NewTimeSeries(symbol, tier.Interval, points), nil
	}
	return nil, nil
}

// points normalizes raw rows: closing price required, timestamps converted
// to the reference timezone.
func (f *TieredFetcher) points(rows []upstream.Row) []market.SeriesPoint {
	out := make([]market.SeriesPoint, 0, len(rows))
	for _, r := range rows {
		if r.Close == nil {
			continue
		}
		out = append(out, market.SeriesPoint{
			Time:  r.Timestamp.In(f.Location),
			Open:  r.Open,
			Close: *r.Close,
		})
	}
	return out
}
