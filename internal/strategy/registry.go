// Package strategy selects how validated polygon requests are served.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/cache/polygonstore"
	"github.com/spatialkit/h3-boundary/internal/cache/resindex"
	"github.com/spatialkit/h3-boundary/internal/core/config"
	"github.com/spatialkit/h3-boundary/internal/core/model"
	"github.com/spatialkit/h3-boundary/internal/core/router"
	"github.com/spatialkit/h3-boundary/internal/engine"
	"github.com/spatialkit/h3-boundary/internal/feature"
	"github.com/spatialkit/h3-boundary/internal/hotness"
	"github.com/spatialkit/h3-boundary/pkg/adaptive"
	"github.com/spatialkit/h3-boundary/pkg/facetrace"
)

// PolygonEngine computes polygon products.
type PolygonEngine interface {
	Polygon(ctx context.Context, req model.PolygonRequest) (feature.Feature, engine.Stats, error)
	IntermediateRes() int
}

// Deps carries the shared dependencies a strategy may draw on. Fields a
// strategy does not need stay nil.
type Deps struct {
	Engine  PolygonEngine
	Store   *polygonstore.Store
	Index   resindex.Index
	Hot     hotness.Interface
	Decider adaptive.Decider
}

// Factory builds a strategy handler from config and shared dependencies.
type Factory func(cfg config.Config, log zerolog.Logger, deps Deps) (router.PolygonHandler, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

// New builds the named strategy, falling back to direct for unknown names.
func New(name string, cfg config.Config, log zerolog.Logger, deps Deps) (router.PolygonHandler, error) {
	f, ok := reg[name]
	if !ok {
		log.Warn().Str("strategy", name).Msg("unknown strategy, using direct")
		f, ok = reg["direct"]
		if !ok {
			return nil, fmt.Errorf("strategy %q not registered and no direct fallback", name)
		}
	}
	return f(cfg, log, deps)
}

// StatusFor maps a compute error to its response status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, facetrace.ErrResolution):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
