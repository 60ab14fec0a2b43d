package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	appserver "github.com/spatialkit/h3-boundary/internal/app/server"
	"github.com/spatialkit/h3-boundary/internal/core/config"
	"github.com/spatialkit/h3-boundary/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	// overriding strategy via flag
	strategyFlag := flag.String("strategy", "", "serving strategy (direct, cached)")
	flag.Parse()

	cfg := config.FromEnv()
	if *strategyFlag != "" {
		cfg.Strategy = strings.TrimSpace(*strategyFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Strategy:  cfg.Strategy,
		Component: "boundaryd",
	}, os.Stdout)

	zl.Info().
		Str("addr", cfg.Addr).
		Str("version", Version).
		Str("strategy", cfg.Strategy).
		Int("intermediate_res", cfg.IntermediateRes).
		Msg("starting boundaryd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := appserver.Run(ctx, cfg, zl, Version); err != nil {
		zl.Error().Err(err).Msg("server exited with error")
		return 1
	}
	zl.Info().Msg("server stopped")
	return 0
}
