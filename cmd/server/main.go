package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"quotedesk/internal/api"
	"quotedesk/internal/config"
	"quotedesk/internal/logging"
	"quotedesk/internal/metrics"
	"quotedesk/internal/resolve"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	metrics.Register()

	svc, err := resolve.NewService(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build resolver")
	}
	var current atomic.Pointer[resolve.Service]
	current.Store(svc)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	api.NewQuotesHandler(log, current.Load).RegisterRoutes(e)

	// Periodic warm keeps the cache hot so API reads rarely wait on the
	// upstream.
	warm := cron.New()
	if _, err := warm.AddFunc(cfg.RefreshCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		quotes, rateLimited := current.Load().ResolveAll(ctx)
		log.Info().Int("instruments", len(quotes)).Bool("rate_limited", rateLimited).Msg("cache warm")
	}); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.RefreshCron).Msg("refresh cron")
	}
	warm.Start()
	defer warm.Stop()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			// Hot reload: rebuild the resolver graph from disk and swap it
			// in. The cache starts cold, which is fine — nothing persists.
			next, err := config.Load(cfgPath)
			if err != nil {
				log.Error().Err(err).Msg("reload: config rejected, keeping previous")
				continue
			}
			nextSvc, err := resolve.NewService(next, log)
			if err != nil {
				log.Error().Err(err).Msg("reload: resolver rejected, keeping previous")
				continue
			}
			current.Store(nextSvc)
			log.Info().Int("instruments", len(next.Instruments)).Msg("configuration reloaded")
			continue
		}
		break
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
