// Package engine computes polygon products from the face-tracing core.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/core/model"
	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/feature"
	"github.com/spatialkit/h3-boundary/internal/grid"
	"github.com/spatialkit/h3-boundary/pkg/facetrace"
	"github.com/spatialkit/h3-boundary/pkg/hexpoly"
)

// DefaultIntermediateRes is the descent resolution used when a request
// leaves it unset.
const DefaultIntermediateRes = 10

// Stats describes one computation for admission decisions and metrics.
type Stats struct {
	Cells    int
	Vertices int
	Dur      time.Duration
}

type Engine struct {
	log             zerolog.Logger
	grid            grid.Interface
	intermediateRes int
}

func New(log zerolog.Logger, g grid.Interface, intermediateRes int) *Engine {
	if intermediateRes < 1 || intermediateRes > facetrace.MaxResolution {
		intermediateRes = DefaultIntermediateRes
	}
	return &Engine{log: log, grid: g, intermediateRes: intermediateRes}
}

// IntermediateRes reports the configured default descent resolution.
func (e *Engine) IntermediateRes() int { return e.intermediateRes }

// Polygon computes the feature for one polygon request. Res < 0 and
// Meters < 0 select the server defaults.
func (e *Engine) Polygon(ctx context.Context, req model.PolygonRequest) (feature.Feature, Stats, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return feature.Feature{}, Stats{}, err
	}
	cell, err := e.grid.Cell(req.Cell)
	if err != nil {
		return feature.Feature{}, Stats{}, err
	}

	var (
		f  feature.Feature
		st Stats
	)
	switch req.Op {
	case model.OpCell:
		ring, rerr := hexpoly.CellRing(cell)
		if rerr != nil {
			return feature.Feature{}, Stats{}, rerr
		}
		f = feature.Cell(req.Cell, ring)
		st.Cells = 1
	case model.OpChildren:
		childRes := req.Res
		if childRes < 0 {
			childRes = clampDescent(e.intermediateRes, cell.Resolution())
		}
		cells, derr := facetrace.ChildrenOnFaces(cell, childRes, facetrace.AllFaces)
		if derr != nil {
			return feature.Feature{}, Stats{}, derr
		}
		var ring hexpoly.Ring
		if len(cells) == 0 {
			ring, err = hexpoly.CellRing(cell)
		} else {
			mode := hexpoly.Union
			if req.Hull {
				mode = hexpoly.Hull
			}
			ring, err = hexpoly.RingFromCells(cells, mode)
		}
		if err != nil {
			return feature.Feature{}, Stats{}, err
		}
		f = feature.Merged(req.Cell, ring, childRes, len(cells))
		st.Cells = len(cells)
	case model.OpBuffered:
		b, berr := hexpoly.BufferedCellPolygon(cell, req.Meters)
		if berr != nil {
			return feature.Feature{}, Stats{}, berr
		}
		f = feature.BufferedCell(req.Cell, b)
		st.Cells = 1
	case model.OpBoundary:
		res := req.Res
		if res < 0 {
			res = e.intermediateRes
		}
		b, berr := hexpoly.BufferedBoundaryPolygon(cell, res, req.Meters, req.Hull)
		if berr != nil {
			return feature.Feature{}, Stats{}, berr
		}
		f = feature.BufferedBoundary(req.Cell, b)
		st.Cells = b.BoundaryCells
	default:
		return feature.Feature{}, Stats{}, fmt.Errorf("unknown polygon op %q", req.Op)
	}

	if len(f.Geometry.Coordinates) > 0 {
		st.Vertices = len(f.Geometry.Coordinates[0])
	}
	st.Dur = time.Since(start)
	observability.ObserveCompute(string(req.Op), st.Dur, st.Cells, st.Vertices)
	e.log.Debug().
		Str("op", string(req.Op)).
		Str("cell", req.Cell).
		Int("cells", st.Cells).
		Int("vertices", st.Vertices).
		Dur("dur", st.Dur).
		Msg("computed polygon")
	return f, st, nil
}

// Cover polyfills the request geometry and reports its edge cells, each
// carrying the full face set.
func (e *Engine) Cover(ctx context.Context, req model.CoverRequest) (model.Cells, model.Cells, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var (
		fill model.Cells
		err  error
	)
	switch {
	case req.Polygon != nil:
		fill, err = e.grid.CellsForPolygon(*req.Polygon, req.Res)
	case req.BBox != nil:
		fill, err = e.grid.CellsForBBox(*req.BBox, req.Res)
	default:
		return nil, nil, fmt.Errorf("cover: polygon or bbox required")
	}
	if err != nil {
		return nil, nil, err
	}
	edges, err := e.grid.EdgeCells(fill)
	if err != nil {
		return nil, nil, err
	}
	return fill, edges, nil
}

// clampDescent forces a descent resolution strictly below the cell into
// (cellRes, 15].
func clampDescent(res, cellRes int) int {
	if res > facetrace.MaxResolution {
		res = facetrace.MaxResolution
	}
	if res <= cellRes {
		res = cellRes + 1
	}
	return res
}
