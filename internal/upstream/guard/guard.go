package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"quotedesk/internal/market"
	"quotedesk/internal/metrics"
	"quotedesk/internal/upstream"
)

// Provider wraps an upstream.Provider and retries rate-limited calls a
// bounded number of times with a growing delay. Every other failure is
// returned immediately: the fallback chain above already absorbs transient
// errors, so retrying here would only burn quota. An optional MinInterval
// additionally spaces calls out so a warm batch does not trip the upstream
// throttle in the first place.
type Provider struct {
	P           upstream.Provider
	MaxRetries  int           // extra attempts after the first (default 2)
	Backoff     time.Duration // sleep is Backoff × attempt number
	MinInterval time.Duration // minimum gap between upstream calls (0 = no pacing)

	mu   sync.Mutex
	last time.Time
}

func New(p upstream.Provider, maxRetries int, backoff time.Duration) *Provider {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Provider{P: p, MaxRetries: maxRetries, Backoff: backoff}
}

func (g *Provider) Historical(ctx context.Context, symbol string, tier market.Tier) ([]upstream.Row, error) {
	var rows []upstream.Row
	err := g.call(ctx, "historical", func() error {
		var err error
		rows, err = g.P.Historical(ctx, symbol, tier)
		return err
	})
	return rows, err
}

func (g *Provider) LastQuote(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := g.call(ctx, "quote", func() error {
		var err error
		price, err = g.P.LastQuote(ctx, symbol)
		return err
	})
	return price, err
}

func (g *Provider) call(ctx context.Context, name string, op func() error) error {
	for attempt := 0; ; attempt++ {
		if err := g.pace(ctx); err != nil {
			return err
		}
		err := op()
		metrics.UpstreamRequests.WithLabelValues(name, outcome(err)).Inc()
		if err == nil || !errors.Is(err, upstream.ErrRateLimited) {
			return err
		}
		if attempt >= g.MaxRetries {
			return upstream.ErrRateLimited
		}
		if err := sleep(ctx, g.Backoff*time.Duration(attempt+1)); err != nil {
			return err
		}
	}
}

// pace blocks until at least MinInterval has passed since the previous
// upstream call, or the context ends.
func (g *Provider) pace(ctx context.Context) error {
	if g.MinInterval <= 0 {
		return nil
	}
	g.mu.Lock()
	wait := time.Until(g.last.Add(g.MinInterval))
	if wait < 0 {
		wait = 0
	}
	g.last = time.Now().Add(wait) // reserve the slot so concurrent callers queue
	g.mu.Unlock()
	if wait > 0 {
		return sleep(ctx, wait)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, upstream.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, upstream.ErrNotFound):
		return "not_found"
	case errors.Is(err, upstream.ErrNoData):
		return "no_data"
	default:
		return "transient"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
