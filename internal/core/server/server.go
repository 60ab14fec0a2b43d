package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/core/config"
	"github.com/spatialkit/h3-boundary/internal/core/health"
	"github.com/spatialkit/h3-boundary/internal/core/middleware"
)

// Options carries the pieces Run mounts beside the API routes. Nil
// fields disable their endpoint or middleware.
type Options struct {
	API     chi.Router
	Metrics http.Handler
	Ready   health.Options
	Limiter *middleware.RateLimiter
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, log zerolog.Logger, opts Options) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover(log))
	r.Use(middleware.Logging(log))
	r.Use(middleware.CORS())
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Limit())
	}

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(opts.Ready))
	if opts.Metrics != nil {
		r.Get("/metrics", opts.Metrics.ServeHTTP)
	}
	if opts.API != nil {
		r.Mount("/v1", opts.API)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
