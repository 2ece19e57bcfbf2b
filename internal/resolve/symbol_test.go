package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quotedesk/internal/market"
	"quotedesk/internal/upstream"
)

// fakeSource is a scripted SeriesSource keyed by "symbol|class".
type fakeSource struct {
	series map[string]*market.TimeSeries
	errs   map[string]error
	calls  []string
}

func (f *fakeSource) GetOrFetch(_ context.Context, symbol string, plan market.TierPlan) (*market.TimeSeries, error) {
	key := symbol + "|" + plan.Class
	f.calls = append(f.calls, key)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.series[key], nil
}

func series(symbol, interval string, closes ...float64) *market.TimeSeries {
	points := make([]market.SeriesPoint, len(closes))
	base := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)
	for i, c := range closes {
		points[i] = market.SeriesPoint{Time: base.Add(time.Duration(i) * time.Minute), Close: c}
	}
	return market.NewTimeSeries(symbol, interval, points)
}

var intradayPlan = market.TierPlan{Class: "intraday", TTL: time.Minute, Tiers: []market.Tier{{Range: "1d", Interval: "1m", MinPoints: 10}}}

func TestSymbolResolver_FirstUsableCandidateWins(t *testing.T) {
	src := &fakeSource{series: map[string]*market.TimeSeries{
		"JP225|intraday": series("JP225", "1m", 1, 2, 3),
	}}
	r := &SymbolResolver{Source: src}

	sym, s, err := r.Resolve(context.Background(), []string{"JPN225", "JP225", "^JP225"}, intradayPlan)
	require.NoError(t, err)
	require.Equal(t, "JP225", sym)
	require.NotNil(t, s)
	require.Equal(t, []string{"JPN225|intraday", "JP225|intraday"}, src.calls, "resolution stops at the first hit")
}

func TestSymbolResolver_NoCandidateHasData(t *testing.T) {
	src := &fakeSource{}
	r := &SymbolResolver{Source: src}

	sym, s, err := r.Resolve(context.Background(), []string{"A", "B"}, intradayPlan)
	require.NoError(t, err)
	require.Empty(t, sym)
	require.Nil(t, s)
	require.Len(t, src.calls, 2)
}

func TestSymbolResolver_RateLimitAbortsRemainingCandidates(t *testing.T) {
	src := &fakeSource{
		errs: map[string]error{"A|intraday": upstream.ErrRateLimited},
		series: map[string]*market.TimeSeries{
			"B|intraday": series("B", "1m", 1, 2),
		},
	}
	r := &SymbolResolver{Source: src}

	_, _, err := r.Resolve(context.Background(), []string{"A", "B"}, intradayPlan)
	require.ErrorIs(t, err, upstream.ErrRateLimited)
	require.Equal(t, []string{"A|intraday"}, src.calls, "a throttled provider must not see further candidates")
}
