package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/piquette/finance-go/quote"

	"quotedesk/internal/httpx"
	"quotedesk/internal/market"
	"quotedesk/internal/upstream"
)

const defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Client fetches historical bars from the Yahoo Finance chart API and last
// traded prices through the quote endpoint. It implements upstream.Provider.
type Client struct {
	BaseURL string
	HTTP    *httpx.Client
}

func New(hc *httpx.Client) *Client {
	return &Client{BaseURL: defaultBaseURL, HTTP: hc}
}

// chartEnvelope is the response structure of the Yahoo chart API.
type chartEnvelope struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) Historical(ctx context.Context, symbol string, tier market.Tier) ([]upstream.Row, error) {
	u := fmt.Sprintf("%s/%s?interval=%s&range=%s",
		c.BaseURL, url.PathEscape(symbol), url.QueryEscape(tier.Interval), url.QueryEscape(tier.Range))

	resp, err := c.HTTP.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, upstream.ErrRateLimited
	case http.StatusNotFound:
		return nil, upstream.ErrNotFound
	default:
		return nil, fmt.Errorf("yahoo: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var env chartEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if e := env.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "not found") {
			return nil, upstream.ErrNotFound
		}
		return nil, fmt.Errorf("yahoo api error: %s: %s", e.Code, e.Description)
	}
	if len(env.Chart.Result) == 0 || len(env.Chart.Result[0].Timestamp) == 0 {
		return nil, upstream.ErrNoData
	}

	result := env.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, upstream.ErrNoData
	}
	q := result.Indicators.Quote[0]

	rows := make([]upstream.Row, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		var open, cls *float64
		if i < len(q.Open) {
			open = q.Open[i]
		}
		if i < len(q.Close) {
			cls = q.Close[i]
		}
		if open == nil && cls == nil {
			continue // null bar (holiday, suspended tick)
		}
		rows = append(rows, upstream.Row{Timestamp: time.Unix(ts, 0).UTC(), Open: open, Close: cls})
	}
	if len(rows) == 0 {
		return nil, upstream.ErrNoData
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows, nil
}

// LastQuote asks for the regular market price with no series attached.
func (c *Client) LastQuote(_ context.Context, symbol string) (float64, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		if strings.Contains(err.Error(), "429") || strings.Contains(strings.ToLower(err.Error()), "too many requests") {
			return 0, upstream.ErrRateLimited
		}
		return 0, fmt.Errorf("yahoo quote: %w", err)
	}
	if q == nil || q.RegularMarketPrice == 0 {
		return 0, upstream.ErrNoData
	}
	return q.RegularMarketPrice, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
