// Package server assembles the boundary service from its configuration.
package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/cache/polygonstore"
	"github.com/spatialkit/h3-boundary/internal/cache/redisstore"
	"github.com/spatialkit/h3-boundary/internal/cache/resindex"
	"github.com/spatialkit/h3-boundary/internal/core/config"
	"github.com/spatialkit/h3-boundary/internal/core/health"
	"github.com/spatialkit/h3-boundary/internal/core/middleware"
	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/core/router"
	"github.com/spatialkit/h3-boundary/internal/core/server"
	"github.com/spatialkit/h3-boundary/internal/engine"
	"github.com/spatialkit/h3-boundary/internal/grid/h3index"
	"github.com/spatialkit/h3-boundary/internal/hotness/expdecay"
	"github.com/spatialkit/h3-boundary/internal/hotness/metricswrap"
	"github.com/spatialkit/h3-boundary/internal/invalidation"
	"github.com/spatialkit/h3-boundary/internal/logger"
	"github.com/spatialkit/h3-boundary/internal/metrics"
	"github.com/spatialkit/h3-boundary/internal/strategy"
	_ "github.com/spatialkit/h3-boundary/internal/strategy/cached"
	_ "github.com/spatialkit/h3-boundary/internal/strategy/direct"
	adaptSimple "github.com/spatialkit/h3-boundary/pkg/adaptive/simple"
	kafkainv "github.com/spatialkit/h3-boundary/pkg/invalidation/kafka"
)

// selectable strategies exposed for per-request override
var strategyNames = []string{"direct", "cached"}

// Run wires the service together and serves until ctx is canceled.
func Run(ctx context.Context, cfg config.Config, log zerolog.Logger, version string) error {
	p := metrics.Init(metrics.Config{
		Runtime: true,
		Build:   metrics.BuildInfo{Version: version},
	})
	observability.Init(p.Registerer(), true)
	observability.SetStrategy(cfg.Strategy)

	g := h3index.New()
	eng := engine.New(log, g, cfg.IntermediateRes)

	deps := strategy.Deps{Engine: eng}
	ready := health.Options{}

	needRedis := cfg.Strategy == "cached" || cfg.Invalidation.Enabled
	if needRedis {
		cli, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("redis client: %w", err)
		}
		defer func() { _ = cli.Close() }()

		store, err := polygonstore.New(cli, log, polygonstore.Config{
			DefaultTTL:   cfg.CacheTTLDefault,
			JitterFrac:   cfg.CacheTTLJitter,
			MinCompress:  cfg.ZstdMinBytes,
			EpochRefresh: cfg.EpochRefresh,
		})
		if err != nil {
			return fmt.Errorf("polygon store: %w", err)
		}

		deps.Store = store
		deps.Index = resindex.NewRedisIndex(cli)
		deps.Hot = metricswrap.New(expdecay.New(cfg.HotHalfLife), "tracked")
		deps.Decider = adaptSimple.New(adaptSimple.Config{
			Threshold:  cfg.HotThreshold,
			AdmitAll:   cfg.AdmitAll,
			MinCells:   cfg.AdmitMinCells,
			MinCompute: cfg.AdmitMinDur,
			TTLCold:    cfg.TTLCold,
			TTLWarm:    cfg.TTLWarm,
			TTLHot:     cfg.TTLHot,
		})
		ready.Redis = cli
	}

	def, err := strategy.New(cfg.Strategy, cfg, log, deps)
	if err != nil {
		return fmt.Errorf("strategy %q: %w", cfg.Strategy, err)
	}
	byName := map[string]router.PolygonHandler{}
	for _, name := range strategyNames {
		if name == cfg.Strategy {
			byName[name] = def
			continue
		}
		h, herr := strategy.New(name, cfg, log, deps)
		if herr != nil {
			log.Warn().Err(herr).Str("strategy", name).Msg("strategy not selectable per request")
			continue
		}
		byName[name] = h
	}
	sel := strategy.NewSelector(def, byName)

	if cfg.Invalidation.Enabled {
		applier := invalidation.NewApplier(log, deps.Store, deps.Index, deps.Hot)
		runner := kafkainv.New(kafkainv.FromEnv(), applier, kafkainv.Options{
			Logger:   logger.NewSlog(&log),
			Register: p.Registerer(),
		})
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("invalidation runner: %w", err)
		}
		defer runner.Stop()
		ready.Kafka = runner
	}

	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	defer limiter.Stop()

	rt := router.New(log, cfg, g, eng, sel)

	return server.Run(ctx, cfg, log, server.Options{
		API:     rt.Routes(),
		Metrics: p.Handler(),
		Ready:   ready,
		Limiter: limiter,
	})
}
