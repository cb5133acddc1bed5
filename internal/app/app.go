// README: Composition root shared by the binaries; builds providers, caches and the conversation service from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"routebot/internal/config"
	"routebot/internal/infra"
	"routebot/internal/maps"
	"routebot/internal/modules/conversation"
	"routebot/internal/modules/geocache"
	"routebot/internal/modules/resolver"
	"routebot/internal/modules/routecache"
	"routebot/internal/types"
)

type App struct {
	Config       config.Config
	Logger       zerolog.Logger
	Metrics      *infra.Metrics
	Geocode      *maps.GeocodeClient
	Routing      *maps.RoutingClient
	Resolver     *resolver.Service
	Store        *conversation.Store
	Conversation *conversation.Service

	db         *pgxpool.Pool
	redis      *redis.Client
	geocodeTTL time.Duration
	geoStore   *geocache.Store
}

// New wires everything. Caches are enabled only when their DSN/address is configured.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, geocodeTTL: cfg.Cache.GeocodeTTL}
	if cfg.Metrics.Enabled {
		a.Metrics = infra.NewMetrics()
	}

	geocoder, router, link, err := buildProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.PostgresDSN != "" {
		db, err := infra.NewDB(ctx, cfg.Cache.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("geocode cache: %w", err)
		}
		a.db = db
		a.geoStore = geocache.NewStore(db)
		if err := a.geoStore.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		geocoder = geocache.NewGeocoder(geocoder, a.geoStore, cfg.Cache.GeocodeTTL, cfg.Provider.Name, logger, a.Metrics)
		logger.Info().Msg("geocode cache enabled")
	}

	if cfg.Cache.RedisAddr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("route cache: %w", err)
		}
		a.redis = rdb
		router = routecache.NewRouter(router, routecache.NewStore(rdb, cfg.Provider.Name, cfg.Cache.RouteTTL), logger, a.Metrics)
		logger.Info().Msg("route cache enabled")
	}

	a.Geocode = maps.NewGeocodeClient(geocoder, cfg.Provider.Timeout, a.Metrics)
	a.Routing = maps.NewRoutingClient(router, link, cfg.Provider.Timeout, cfg.Provider.DegenerateRadiusM, a.Metrics)

	a.Resolver, err = resolver.NewService(a.Geocode, resolver.Policy{
		Threshold: cfg.Resolver.ConfidenceThreshold,
		Margin:    cfg.Resolver.ConfidenceMargin,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Store = conversation.NewStore(cfg.Session.IdleTimeout, logger, a.Metrics)
	a.Conversation = conversation.NewService(a.Store, a.Resolver, a.Routing, Commands(cfg.Commands), logger, a.Metrics)
	return a, nil
}

func buildProvider(cfg config.ProviderConfig) (maps.Geocoder, maps.Router, maps.LinkFunc, error) {
	switch cfg.Name {
	case config.ProviderGoogle:
		gcfg := maps.GoogleConfig{
			APIKey:   cfg.GoogleAPIKey,
			BaseURL:  cfg.GoogleBaseURL,
			Region:   cfg.Region,
			Language: cfg.Language,
			Bounds:   cfg.ViewBox,
		}
		client, err := maps.NewGoogleClient(gcfg)
		if err != nil {
			return nil, nil, nil, err
		}
		geocoder, err := maps.NewGoogleGeocoder(client, gcfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return geocoder, maps.NewGoogleRouter(client, gcfg), maps.GoogleDirectionsLink, nil
	case config.ProviderOSM:
		replacements := maps.DefaultLabelReplacements
		if len(cfg.LabelReplacements) > 0 {
			replacements = make([]maps.Replacement, 0, len(cfg.LabelReplacements))
			for _, r := range cfg.LabelReplacements {
				replacements = append(replacements, maps.Replacement{From: r.From, To: r.To})
			}
		}
		geocoder := maps.NewNominatimGeocoder(maps.NominatimConfig{
			BaseURL:      cfg.NominatimURL,
			UserAgent:    cfg.UserAgent,
			CountryCodes: cfg.CountryCodes,
			Language:     cfg.Language,
			ViewBox:      cfg.ViewBox,
			Replacements: replacements,
			MaxRetries:   cfg.MaxRetries,
		})
		router := maps.NewOSRMRouter(maps.OSRMConfig{
			BaseURL:    cfg.OSRMURL,
			Profile:    cfg.OSRMProfile,
			UserAgent:  cfg.UserAgent,
			MaxRetries: cfg.MaxRetries,
		})
		return geocoder, router, maps.OSMDirectionsLink, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// Commands falls back to the defaults per keyword list left empty in config.
func Commands(c config.CommandsConfig) conversation.Commands {
	cmd := conversation.DefaultCommands
	if len(c.Start) > 0 {
		cmd.Start = c.Start
	}
	if len(c.Cancel) > 0 {
		cmd.Cancel = c.Cancel
	}
	if len(c.Help) > 0 {
		cmd.Help = c.Help
	}
	if len(c.Back) > 0 {
		cmd.Back = c.Back
	}
	return cmd
}

// RunSweeper evicts idle sessions until ctx is done; onExpire may be nil.
func (a *App) RunSweeper(ctx context.Context, onExpire func(types.UserID)) {
	a.Store.RunSweeper(ctx, a.Config.Session.SweepInterval, onExpire)
}

// RunCacheJanitor prunes stale geocode cache rows hourly. It returns at once when the cache is off.
func (a *App) RunCacheJanitor(ctx context.Context) {
	if a.geoStore == nil {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.geoStore.Prune(ctx, time.Now().Add(-a.geocodeTTL))
			if err != nil {
				a.Logger.Warn().Err(err).Msg("geocode cache prune failed")
				continue
			}
			if n > 0 {
				a.Logger.Info().Int64("rows", n).Msg("pruned geocode cache")
			}
		}
	}
}

// DB is nil when the geocode cache is disabled.
func (a *App) DB() *pgxpool.Pool {
	return a.db
}

// Redis is nil when the route cache is disabled.
func (a *App) Redis() *redis.Client {
	return a.redis
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	return errors.Join(errs...)
}
