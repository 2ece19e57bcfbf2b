package resolve

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"quotedesk/internal/market"
	"quotedesk/internal/metrics"
	"quotedesk/internal/session"
	"quotedesk/internal/upstream"
)

// Snapshot reasons surfaced to consumers. RateLimited means "try again
// later"; EmptySeries means the ticker had no usable data anywhere in the
// fallback chain.
const (
	ReasonRateLimited = "RateLimited"
	ReasonEmpty       = "EmptySeries"
	ReasonCanceled    = "Canceled"
)

// QuoteSource serves the quote-only fallback (a guard-wrapped upstream
// provider in production).
type QuoteSource interface {
	LastQuote(ctx context.Context, symbol string) (float64, error)
}

// QuoteResolver turns one instrument into a priced snapshot by walking a
// linear fallback chain: intraday series, then (order configurable) a short
// daily series or a bare last-traded quote, then unavailable. No failure
// escapes it; exhaustion degrades to an ok=false snapshot.
type QuoteResolver struct {
	Symbols    *SymbolResolver
	Quotes     QuoteSource
	Sessions   *session.Clock
	Intraday   market.TierPlan
	Daily      market.TierPlan
	QuoteFirst bool // try the bare quote before the daily series
	Log        zerolog.Logger
}

// Resolve never returns an error: every failure ends up inside the
// snapshot.
func (r *QuoteResolver) Resolve(ctx context.Context, inst market.Instrument, now time.Time) market.Snapshot {
	sn := r.resolve(ctx, inst, now)
	metrics.Resolutions.WithLabelValues(string(sn.Mode)).Inc()
	if !sn.OK {
		r.Log.Debug().Str("instrument", inst.Name).Str("reason", sn.Reason).Msg("quote unavailable")
	}
	return sn
}

func (r *QuoteResolver) resolve(ctx context.Context, inst market.Instrument, now time.Time) market.Snapshot {
	symbol, intra, err := r.Symbols.Resolve(ctx, inst.Candidates, r.Intraday)
	if err != nil {
		return unavailable(err)
	}
	if intra != nil {
		return r.intradaySnapshot(ctx, inst, symbol, intra, now)
	}

	steps := []func(context.Context, market.Instrument) (*market.Snapshot, error){r.dailyStep, r.quoteStep}
	if r.QuoteFirst {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, step := range steps {
		sn, err := step(ctx, inst)
		if err != nil {
			return unavailable(err)
		}
		if sn != nil {
			return *sn
		}
	}
	return market.Snapshot{Mode: market.ModeUnavailable, BasisKind: market.BasisNone, Reason: ReasonEmpty}
}

// intradaySnapshot prices off a live series. The base is the session open
// when the market is trading and the instrument asks for an open-basis
// comparison; otherwise the previous daily close, fetched separately. When
// that daily lookup soft-fails the series' own open stands in so the
// snapshot stays renderable.
func (r *QuoteResolver) intradaySnapshot(ctx context.Context, inst market.Instrument, symbol string, intra *market.TimeSeries, now time.Time) market.Snapshot {
	last := intra.Last()
	sn := market.Snapshot{
		OK:       true,
		Mode:     market.ModeIntraday,
		Symbol:   symbol,
		Now:      market.Float(last.Close),
		LastTick: &last.Time,
	}

	openBasis := inst.Basis == market.PolicySessionOpen && r.Sessions.IsOpen(inst.Region, now)
	if !openBasis {
		daily, err := r.Symbols.Source.GetOrFetch(ctx, symbol, r.Daily)
		if err != nil {
			return unavailable(err)
		}
		if daily != nil {
			if prev, ok := daily.PrevClose(); ok {
				sn.Base = market.Float(prev)
				sn.BasisKind = market.BasisPrevClose
				return sn.WithChange()
			}
		}
		// No prior close to compare against; fall back to the session open.
	}
	sn.Base = market.Float(intra.FirstOpen())
	sn.BasisKind = market.BasisSessionOpen
	return sn.WithChange()
}

func (r *QuoteResolver) dailyStep(ctx context.Context, inst market.Instrument) (*market.Snapshot, error) {
	symbol, daily, err := r.Symbols.Resolve(ctx, inst.Candidates, r.Daily)
	if err != nil {
		return nil, err
	}
	if daily == nil {
		return nil, nil
	}
	prev, ok := daily.PrevClose()
	if !ok {
		return nil, nil
	}
	last := daily.Last()
	sn := market.Snapshot{
		OK:        true,
		Mode:      market.ModeDaily,
		Symbol:    symbol,
		Now:       market.Float(last.Close),
		Base:      market.Float(prev),
		BasisKind: market.BasisPrevClose,
		LastTick:  &last.Time,
	}.WithChange()
	return &sn, nil
}

func (r *QuoteResolver) quoteStep(ctx context.Context, inst market.Instrument) (*market.Snapshot, error) {
	for _, symbol := range inst.Candidates {
		price, err := r.Quotes.LastQuote(ctx, symbol)
		if err != nil {
			if errors.Is(err, upstream.ErrRateLimited) || ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		sn := market.Snapshot{
			OK:        true,
			Mode:      market.ModeQuoteOnly,
			Symbol:    symbol,
			Now:       market.Float(price),
			BasisKind: market.BasisNone,
		}
		return &sn, nil
	}
	return nil, nil
}

func unavailable(err error) market.Snapshot {
	reason := ReasonEmpty
	switch {
	case errors.Is(err, upstream.ErrRateLimited):
		reason = ReasonRateLimited
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		reason = ReasonCanceled
	}
	return market.Snapshot{Mode: market.ModeUnavailable, BasisKind: market.BasisNone, Reason: reason}
}
