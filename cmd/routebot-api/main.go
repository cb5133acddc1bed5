// README: Entry point; loads config, wires services, runs the HTTP server, session sweeper and cache janitor.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"routebot/internal/app"
	"routebot/internal/config"
	httptransport "routebot/internal/http"
	"routebot/internal/infra"
)

func main() {
	cfg, err := config.Load()
	logger := infra.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup")
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Chat:        a.Conversation,
		Metrics:     a.Metrics,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
	})
	server := httptransport.NewServer(cfg.HTTP.Addr, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		// HTTP clients poll; there is nobody to push an expiry notice to.
		a.RunSweeper(gctx, nil)
		return nil
	})
	g.Go(func() error {
		a.RunCacheJanitor(gctx)
		return nil
	})

	logger.Info().Str("provider", cfg.Provider.Name).Msg("routebot-api started")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
