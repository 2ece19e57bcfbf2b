package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"quotedesk/internal/market"
	"quotedesk/internal/resolve"
)

// ServiceProvider hands out the current resolver service; it is a function
// so SIGHUP config reloads can swap the graph under a running server.
type ServiceProvider func() *resolve.Service

// QuotesHandler serves resolved snapshots over HTTP.
type QuotesHandler struct {
	log zerolog.Logger
	svc ServiceProvider
}

func NewQuotesHandler(log zerolog.Logger, svc ServiceProvider) *QuotesHandler {
	return &QuotesHandler{log: log, svc: svc}
}

func (h *QuotesHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/api/quotes", h.All)
	e.GET("/api/quotes/:name", h.One)
}

func (h *QuotesHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type quotesResponse struct {
	RateLimited bool                       `json:"rate_limited"`
	Quotes      map[string]market.Snapshot `json:"quotes"`
}

// All resolves every configured instrument. Always 200: degradation lives
// inside the snapshots, and the aggregate rate-limited flag tells consumers
// to retry the whole batch later.
func (h *QuotesHandler) All(c echo.Context) error {
	quotes, rateLimited := h.svc().ResolveAll(c.Request().Context())
	return c.JSON(http.StatusOK, quotesResponse{RateLimited: rateLimited, Quotes: quotes})
}

func (h *QuotesHandler) One(c echo.Context) error {
	svc := h.svc()
	inst, ok := svc.Lookup(c.Param("name"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown instrument")
	}
	return c.JSON(http.StatusOK, svc.ResolveQuote(c.Request().Context(), inst))
}
