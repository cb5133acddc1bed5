// README: Matrix bot entry point; bridges room messages to the conversation service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"routebot/internal/app"
	"routebot/internal/config"
	"routebot/internal/infra"
	"routebot/internal/transport/matrix"
)

func main() {
	configPath := flag.String("config", os.Getenv("ROUTEBOT_CONFIG"), "YAML config file")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
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

	bridge, err := matrix.NewBridge(cfg.Matrix, a.Conversation, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("matrix")
	}

	bold := color.New(color.FgGreen, color.Bold)
	bold.Fprintf(os.Stderr, "routebot matrix bridge\n")
	color.New(color.FgHiBlack).Fprintf(os.Stderr, "  homeserver %s\n  user       %s\n  provider   %s\n",
		cfg.Matrix.Homeserver, cfg.Matrix.UserID, cfg.Provider.Name)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error {
		a.RunSweeper(gctx, bridge.OnExpire)
		return nil
	})
	g.Go(func() error {
		a.RunCacheJanitor(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("bridge stopped")
		os.Exit(1)
	}
}
