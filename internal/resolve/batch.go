package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"quotedesk/internal/cache"
	"quotedesk/internal/config"
	"quotedesk/internal/fetch"
	"quotedesk/internal/httpx"
	"quotedesk/internal/market"
	"quotedesk/internal/session"
	"quotedesk/internal/upstream"
	"quotedesk/internal/upstream/guard"
	"quotedesk/internal/upstream/yahoo"
)

// errBatchAborted stops the errgroup once a single instrument has been
// rate limited; it never surfaces to callers.
var errBatchAborted = errors.New("batch aborted after rate limit")

// Service owns the resolver graph for one loaded configuration. Swapping
// configuration means building a fresh Service.
type Service struct {
	resolver    *QuoteResolver
	cache       *cache.SeriesCache
	instruments []market.Instrument
	byName      map[string]market.Instrument
	concurrency int
	abortOnRL   bool
	log         zerolog.Logger
}

// NewService wires the production graph: Yahoo upstream behind the rate
// limit guard, tiered fetcher, TTL cache, session clock and quote resolver.
func NewService(cfg *config.Config, log zerolog.Logger) (*Service, error) {
	clock, err := session.NewClock(cfg.Sessions)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Resolver.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("reference timezone: %w", err)
	}

	up := yahoo.New(httpx.New(cfg.Server.RequestTimeout.Std()))
	guarded := guard.New(up, cfg.Resolver.Retry.MaxRetries, cfg.Resolver.Retry.Backoff.Std())
	guarded.MinInterval = cfg.Resolver.Retry.MinInterval.Std()
	fetcher := fetch.New(guarded, loc, log)
	seriesCache := cache.New(fetcher)

	return newService(cfg, seriesCache, guarded, clock, log), nil
}

// newService finishes assembly from an already-built cache and quote
// source; tests use it to substitute fakes.
func newService(cfg *config.Config, sc *cache.SeriesCache, quotes upstream.Provider, clock *session.Clock, log zerolog.Logger) *Service {
	resolver := &QuoteResolver{
		Symbols:    &SymbolResolver{Source: sc},
		Quotes:     quotes,
		Sessions:   clock,
		Intraday:   cfg.Resolver.Intraday.TierPlan("intraday"),
		Daily:      cfg.Resolver.Daily.TierPlan("daily"),
		QuoteFirst: cfg.Resolver.Fallback == config.FallbackQuoteFirst,
		Log:        log,
	}
	byName := make(map[string]market.Instrument, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		byName[inst.Name] = inst
	}
	abort := true
	if cfg.Resolver.AbortOnRateLimit != nil {
		abort = *cfg.Resolver.AbortOnRateLimit
	}
	return &Service{
		resolver:    resolver,
		cache:       sc,
		instruments: cfg.Instruments,
		byName:      byName,
		concurrency: cfg.Resolver.MaxConcurrency,
		abortOnRL:   abort,
		log:         log,
	}
}

// Instruments returns the configured instruments in configuration order.
func (s *Service) Instruments() []market.Instrument { return s.instruments }

// Lookup finds an instrument by display name.
func (s *Service) Lookup(name string) (market.Instrument, bool) {
	inst, ok := s.byName[name]
	return inst, ok
}

// InvalidateCache drops all cached series.
func (s *Service) InvalidateCache() { s.cache.Invalidate() }

// ResolveQuote resolves a single instrument right now.
func (s *Service) ResolveQuote(ctx context.Context, inst market.Instrument) market.Snapshot {
	return s.resolver.Resolve(ctx, inst, time.Now())
}

// ResolveAll resolves every configured instrument with bounded parallelism.
// The returned bool is the aggregate rate-limited status: when true the
// whole batch should be retried later rather than per instrument. With the
// abort policy on, the first rate-limited instrument cancels the rest of
// the batch; instruments cut off that way come back UNAVAILABLE with the
// rate-limit reason.
func (s *Service) ResolveAll(ctx context.Context) (map[string]market.Snapshot, bool) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var mu sync.Mutex
	out := make(map[string]market.Snapshot, len(s.instruments))
	var rateLimited atomic.Bool

	for _, inst := range s.instruments {
		inst := inst
		g.Go(func() error {
			if gctx.Err() != nil && ctx.Err() == nil {
				return nil // batch aborted before this instrument started
			}
			sn := s.resolver.Resolve(gctx, inst, time.Now())
			mu.Lock()
			out[inst.Name] = sn
			mu.Unlock()
			if sn.Reason == ReasonRateLimited {
				rateLimited.Store(true)
				if s.abortOnRL {
					return errBatchAborted
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	// Instruments skipped or canceled by the abort still get a snapshot so
	// the result map is total.
	if rateLimited.Load() {
		for _, inst := range s.instruments {
			sn, ok := out[inst.Name]
			if !ok || (!sn.OK && sn.Reason == ReasonCanceled) {
				out[inst.Name] = market.Snapshot{
					Mode:      market.ModeUnavailable,
					BasisKind: market.BasisNone,
					Reason:    ReasonRateLimited,
				}
			}
		}
		s.log.Warn().Msg("batch rate limited, try again later")
	} else {
		for _, inst := range s.instruments {
			if _, ok := out[inst.Name]; !ok {
				out[inst.Name] = unavailable(ctx.Err())
			}
		}
	}
	return out, rateLimited.Load()
}
