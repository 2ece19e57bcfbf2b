package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quotedesk/internal/httpx"
	"quotedesk/internal/market"
	"quotedesk/internal/upstream"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(httpx.New(5 * time.Second))
	c.BaseURL = srv.URL
	return c
}

var tier = market.Tier{Range: "1d", Interval: "1m", MinPoints: 2}

func TestHistorical_ParsesChartEnvelope(t *testing.T) {
	var gotPath, gotQuery string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"chart":{"result":[{
			"timestamp":[1749000060,1749000000],
			"indicators":{"quote":[{
				"open":[100.5,100.0],
				"close":[101.0,100.5]
			}]}
		}],"error":null}}`))
	})

	rows, err := c.Historical(context.Background(), "^N225", tier)
	require.NoError(t, err)
	require.Equal(t, "/%5EN225", gotPath)
	require.Equal(t, "interval=1m&range=1d", gotQuery)

	require.Len(t, rows, 2)
	// Out-of-order timestamps come back sorted ascending.
	require.True(t, rows[0].Timestamp.Before(rows[1].Timestamp))
	require.Equal(t, time.Unix(1749000000, 0).UTC(), rows[0].Timestamp)
	require.Equal(t, time.UTC, rows[0].Timestamp.Location())
	require.Equal(t, 100.5, *rows[0].Close)
	require.Equal(t, 100.0, *rows[0].Open)
}

func TestHistorical_SkipsNullBars(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{
			"timestamp":[1,2,3],
			"indicators":{"quote":[{
				"open":[null,null,3.0],
				"close":[1.0,null,3.5]
			}]}
		}],"error":null}}`))
	})

	rows, err := c.Historical(context.Background(), "X", tier)
	require.NoError(t, err)
	require.Len(t, rows, 2, "the all-null middle bar is dropped")
	require.Nil(t, rows[0].Open, "a bar with only a close survives")
	require.Equal(t, 1.0, *rows[0].Close)
	require.Equal(t, 3.5, *rows[1].Close)
}

func TestHistorical_RateLimited(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Historical(context.Background(), "X", tier)
	require.ErrorIs(t, err, upstream.ErrRateLimited)
}

func TestHistorical_NotFoundStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Historical(context.Background(), "NOPE", tier)
	require.ErrorIs(t, err, upstream.ErrNotFound)
}

func TestHistorical_NotFoundInEnvelope(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})

	_, err := c.Historical(context.Background(), "NOPE", tier)
	require.ErrorIs(t, err, upstream.ErrNotFound)
}

func TestHistorical_OtherEnvelopeError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid interval"}}}`))
	})

	_, err := c.Historical(context.Background(), "X", tier)
	require.Error(t, err)
	require.NotErrorIs(t, err, upstream.ErrNotFound)
	require.Contains(t, err.Error(), "Bad Request")
}

func TestHistorical_EmptyResult(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	})

	_, err := c.Historical(context.Background(), "X", tier)
	require.ErrorIs(t, err, upstream.ErrNoData)
}

func TestHistorical_AllBarsNull(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{
			"timestamp":[1,2],
			"indicators":{"quote":[{"open":[null,null],"close":[null,null]}]}
		}],"error":null}}`))
	})

	_, err := c.Historical(context.Background(), "X", tier)
	require.ErrorIs(t, err, upstream.ErrNoData)
}

func TestHistorical_ServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})

	_, err := c.Historical(context.Background(), "X", tier)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 502")
}

func TestHistorical_SendsUserAgent(t *testing.T) {
	var ua string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte(`{"chart":{"result":[{"timestamp":[1],"indicators":{"quote":[{"open":[1.0],"close":[1.0]}]}}],"error":null}}`))
	})

	_, err := c.Historical(context.Background(), "X", tier)
	require.NoError(t, err)
	require.Equal(t, "quotedesk/1.0", ua)
}
