package strategy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spatialkit/h3-boundary/internal/core/model"
	"github.com/spatialkit/h3-boundary/internal/core/router"
	"github.com/spatialkit/h3-boundary/internal/logger"
)

// Selector dispatches each request to the strategy it names, defaulting
// to the configured one. Unknown names are rejected so a typo surfaces
// to the caller instead of being served silently by the default.
type Selector struct {
	def    router.PolygonHandler
	byName map[string]router.PolygonHandler
}

func NewSelector(def router.PolygonHandler, byName map[string]router.PolygonHandler) *Selector {
	return &Selector{def: def, byName: byName}
}

func (s *Selector) HandlePolygon(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.PolygonRequest) {
	h := s.def
	if req.Strategy != "" {
		o, ok := s.byName[req.Strategy]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown strategy %q", req.Strategy), http.StatusBadRequest)
			return
		}
		h = o
		ctx = logger.WithStrategy(ctx, req.Strategy)
	}
	h.HandlePolygon(ctx, w, r, req)
}

// Batch requests carry no strategy override and always use the default.
func (s *Selector) HandleBatch(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.BatchRequest) {
	s.def.HandleBatch(ctx, w, r, req)
}
