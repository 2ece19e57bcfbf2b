package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"quotedesk/internal/market"
	"quotedesk/internal/upstream"
)

// scriptedProvider returns a canned response per (range, interval) pair and
// records the order of tiers it was asked for.
type scriptedProvider struct {
	responses map[string]struct {
		rows []upstream.Row
		err  error
	}
	asked []string
}

func key(t market.Tier) string { return t.Range + "/" + t.Interval }

func (s *scriptedProvider) Historical(_ context.Context, _ string, tier market.Tier) ([]upstream.Row, error) {
	s.asked = append(s.asked, key(tier))
	r := s.responses[key(tier)]
	return r.rows, r.err
}

func (s *scriptedProvider) LastQuote(context.Context, string) (float64, error) {
	return 0, upstream.ErrNoData
}

func (s *scriptedProvider) set(t market.Tier, rows []upstream.Row, err error) {
	if s.responses == nil {
		s.responses = map[string]struct {
			rows []upstream.Row
			err  error
		}{}
	}
	s.responses[key(t)] = struct {
		rows []upstream.Row
		err  error
	}{rows, err}
}

func bars(n int, start time.Time, step time.Duration) []upstream.Row {
	rows := make([]upstream.Row, n)
	for i := range rows {
		rows[i] = upstream.Row{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      market.Float(100 + float64(i)),
			Close:     market.Float(101 + float64(i)),
		}
	}
	return rows
}

var (
	tierA = market.Tier{Range: "1d", Interval: "1m", MinPoints: 10}
	tierB = market.Tier{Range: "1d", Interval: "5m", MinPoints: 10}
	tierC = market.Tier{Range: "5d", Interval: "15m", MinPoints: 10}
)

func newFetcher(p upstream.Provider) *TieredFetcher {
	return New(p, time.UTC, zerolog.Nop())
}

func TestFetch_FirstUsableTierWins(t *testing.T) {
	p := &scriptedProvider{}
	p.set(tierA, bars(30, time.Now().UTC(), time.Minute), nil)

	s, err := newFetcher(p).Fetch(context.Background(), "^N225", []market.Tier{tierA, tierB, tierC})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, "1m", s.Interval)
	require.Equal(t, []string{"1d/1m"}, p.asked)
}

func TestFetch_FallsThroughThinAndFailedTiers(t *testing.T) {
	p := &scriptedProvider{}
	p.set(tierA, bars(3, time.Now().UTC(), time.Minute), nil) // below MinPoints
	p.set(tierB, nil, errors.New("upstream hiccup"))
	p.set(tierC, bars(12, time.Now().UTC(), 15*time.Minute), nil)

	s, err := newFetcher(p).Fetch(context.Background(), "^N225", []market.Tier{tierA, tierB, tierC})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, "15m", s.Interval)
	require.Equal(t, []string{"1d/1m", "1d/5m", "5d/15m"}, p.asked)
}

func TestFetch_AllTiersExhaustedIsSoftAbsence(t *testing.T) {
	p := &scriptedProvider{}
	p.set(tierA, nil, upstream.ErrNoData)
	p.set(tierB, nil, upstream.ErrNotFound)

	s, err := newFetcher(p).Fetch(context.Background(), "XXXX", []market.Tier{tierA, tierB})
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestFetch_RateLimitStopsTheWalk(t *testing.T) {
	p := &scriptedProvider{}
	p.set(tierA, nil, upstream.ErrRateLimited)

	s, err := newFetcher(p).Fetch(context.Background(), "^N225", []market.Tier{tierA, tierB, tierC})
	require.ErrorIs(t, err, upstream.ErrRateLimited)
	require.Nil(t, s)
	require.Equal(t, []string{"1d/1m"}, p.asked, "no tier may be tried after a rate limit")
}

func TestFetch_DropsRowsWithoutClose(t *testing.T) {
	rows := bars(12, time.Now().UTC(), time.Minute)
	rows[3].Close = nil
	rows[7].Close = nil
	p := &scriptedProvider{}
	p.set(tierA, rows, nil)

	s, err := newFetcher(p).Fetch(context.Background(), "^N225", []market.Tier{tierA})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, 10, s.Len())
}

func TestFetch_MinPointsCountsAfterDropping(t *testing.T) {
	rows := bars(10, time.Now().UTC(), time.Minute)
	rows[0].Close = nil
	p := &scriptedProvider{}
	p.set(tierA, rows, nil)

	s, err := newFetcher(p).Fetch(context.Background(), "^N225", []market.Tier{tierA})
	require.NoError(t, err)
	require.Nil(t, s, "9 usable points is under the tier minimum of 10")
}

func TestFetch_NormalizesToReferenceTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	utc := time.Date(2025, 6, 3, 0, 30, 0, 0, time.UTC)
	p := &scriptedProvider{}
	p.set(tierA, bars(12, utc, time.Minute), nil)

	s, err := New(p, loc, zerolog.Nop()).Fetch(context.Background(), "^N225", []market.Tier{tierA})
	require.NoError(t, err)
	require.NotNil(t, s)
	first := s.Points[0].Time
	require.Equal(t, "Asia/Tokyo", first.Location().String())
	require.Equal(t, 9, first.Hour(), "00:30 UTC is 09:30 JST")
	require.True(t, first.Equal(utc))
}

func TestFetch_DefaultMinPointsIsTwo(t *testing.T) {
	tier := market.Tier{Range: "1mo", Interval: "1d"} // MinPoints unset
	p := &scriptedProvider{}
	p.set(tier, bars(1, time.Now().UTC(), 24*time.Hour), nil)

	s, err := newFetcher(p).Fetch(context.Background(), "^N225", []market.Tier{tier})
	require.NoError(t, err)
	require.Nil(t, s, "a single point is never usable")

	p.set(tier, bars(2, time.Now().UTC(), 24*time.Hour), nil)
	s, err = newFetcher(p).Fetch(context.Background(), "^N225", []market.Tier{tier})
	require.NoError(t, err)
	require.NotNil(t, s)
}
