package upstream

import (
	"context"
	"errors"
	"time"

	"quotedesk/internal/market"
)

// Failure taxonomy for upstream calls. Anything not matching one of these
// sentinels is treated as transient by the layers above.
var (
	// ErrRateLimited means the provider is throttling us. Callers must stop
	// issuing further requests for the current resolution.
	ErrRateLimited = errors.New("upstream: rate limited")
	// ErrNotFound means the provider has no such ticker. Handled the same
	// way as an empty series.
	ErrNotFound = errors.New("upstream: symbol not found")
	// ErrNoData means the request succeeded but carried no usable rows.
	ErrNoData = errors.New("upstream: no data")
)

// Row is one raw historical bar as the provider sent it. Timestamps may
// arrive timezone-naive; naive stamps are interpreted as UTC downstream.
type Row struct {
	Timestamp time.Time
	Open      *float64
	Close     *float64
}

// Provider is the upstream quote source.
//
//go:generate mockgen -package=upstream -destination=mock_provider.go -source=upstream.go Provider
type Provider interface {
	// Historical returns raw bars for one (range, interval) request.
	Historical(ctx context.Context, symbol string, tier market.Tier) ([]Row, error)
	// LastQuote returns the last traded price with no series attached.
	LastQuote(ctx context.Context, symbol string) (float64, error)
}
