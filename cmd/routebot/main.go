// README: routebot CLI; console chat plus one-shot resolve and route commands for operators.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"routebot/internal/app"
	"routebot/internal/config"
	"routebot/internal/infra"
	"routebot/internal/modules/resolver"
	"routebot/internal/transport/console"
	"routebot/internal/types"
)

const (
	Version = "0.1.0"
	appName = "routebot"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	provider   string
}

func rootCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Route and ETA chatbot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("ROUTEBOT_CONFIG"), "YAML config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.provider, "provider", "", "Override provider.name (osm, google)")

	cmd.AddCommand(chatCmd(&g), resolveCmd(&g), routeCmd(&g), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}

func chatCmd(g *globalFlags) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			id := types.UserID(user)
			if !id.Valid() {
				return fmt.Errorf("invalid user id %q", user)
			}
			colored := !color.NoColor
			c := console.New(a.Conversation, id, cmd.InOrStdin(), cmd.OutOrStdout(), colored)

			go a.RunSweeper(ctx, func(expired types.UserID) {
				if expired == id {
					c.Print(a.Conversation.ExpiryNotice())
				}
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Type %s to plan a route, quit to leave.\n", a.Conversation.Commands().StartKeyword())
			return c.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&user, "user", "console", "User id for the session")
	return cmd
}

func resolveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <query>",
		Short: "Geocode a query and show how the bot would classify it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Resolver.Resolve(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, out.Kind)
			switch out.Kind {
			case resolver.SingleMatch:
				fmt.Fprintf(w, "  %s (%s) confidence=%.2f\n", out.Match.Name, out.Match.Coordinate, out.Match.Confidence)
			case resolver.Ambiguous:
				for _, c := range out.Candidates {
					fmt.Fprintf(w, "  %d. %s (%s) confidence=%.2f\n", c.Rank, c.Name, c.Coordinate, c.Confidence)
				}
			}
			return nil
		},
	}
}

func routeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "route <lat,lng> <lat,lng>",
		Short: "Route between two coordinates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, err := types.ParseCoordinate(args[0])
			if err != nil {
				return err
			}
			destination, err := types.ParseCoordinate(args[1])
			if err != nil {
				return err
			}
			a, err := build(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Routing.Route(cmd.Context(), origin, destination)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "distance: %.1f km\neta:      %.0f min\nlink:     %s\n",
				res.DistanceMeters/1000, res.DurationSeconds/60, res.MapLink)
			return nil
		},
	}
}

func build(ctx context.Context, g *globalFlags) (*app.App, error) {
	cfg, err := config.LoadFrom(g.configPath)
	if g.provider != "" {
		cfg.Provider.Name = strings.ToLower(g.provider)
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(g.logLevel, "console")
	if g.logLevel == "" {
		logger = zerolog.Nop()
	}
	cfg.Metrics.Enabled = false
	return app.New(ctx, cfg, logger)
}
