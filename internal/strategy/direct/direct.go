// Package direct serves every polygon request by computing it.
package direct

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/core/config"
	"github.com/spatialkit/h3-boundary/internal/core/encode"
	"github.com/spatialkit/h3-boundary/internal/core/model"
	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/core/router"
	"github.com/spatialkit/h3-boundary/internal/feature"
	"github.com/spatialkit/h3-boundary/internal/strategy"
)

type Engine struct {
	log     zerolog.Logger
	eng     strategy.PolygonEngine
	workers int
	queue   int
}

func init() {
	strategy.Register("direct", New)
}

func New(cfg config.Config, log zerolog.Logger, deps strategy.Deps) (router.PolygonHandler, error) {
	if deps.Engine == nil {
		return nil, errors.New("direct strategy requires an engine")
	}
	return &Engine{
		log:     log,
		eng:     deps.Engine,
		workers: cfg.BatchMaxWorkers,
		queue:   cfg.BatchQueue,
	}, nil
}

func (e *Engine) HandlePolygon(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.PolygonRequest) {
	start := time.Now()

	f, _, err := e.eng.Polygon(ctx, req)
	if err != nil {
		http.Error(w, err.Error(), strategy.StatusFor(err))
		return
	}
	body, ct, err := encode.Feature(f, encode.Format(req.Format))
	if err != nil {
		http.Error(w, "encode error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(body)
	observability.ObservePolygonResponse("computed", string(req.Op), time.Since(start).Seconds())
}

func (e *Engine) HandleBatch(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.BatchRequest) {
	start := time.Now()

	feats, err := e.computeBatch(ctx, req)
	if err != nil {
		http.Error(w, err.Error(), strategy.StatusFor(err))
		return
	}
	body, ct, err := encode.Collection(feature.NewCollection(feats), encode.Format(req.Format))
	if err != nil {
		http.Error(w, "encode error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(body)
	observability.ObservePolygonResponse("computed", "batch", time.Since(start).Seconds())
	e.log.Info().
		Int("cells", len(req.Cells)).
		Dur("dur", time.Since(start)).
		Msg("batch computed")
}

type batchResult struct {
	i   int
	f   feature.Feature
	err error
}

// computeBatch runs the boundary pipeline for every cell on a bounded
// worker pool, preserving input order in the result.
func (e *Engine) computeBatch(ctx context.Context, req model.BatchRequest) ([]feature.Feature, error) {
	workerN := e.workers
	if workerN <= 0 {
		workerN = 8
	}
	queueN := e.queue
	if queueN <= 0 {
		queueN = workerN
	}

	type job struct {
		i    int
		cell string
	}
	jobs := make(chan job, queueN)
	results := make(chan batchResult, len(req.Cells))

	var wg sync.WaitGroup
	wg.Add(workerN)
	for range workerN {
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				f, _, err := e.eng.Polygon(ctx, model.PolygonRequest{
					Op:     model.OpBoundary,
					Cell:   j.cell,
					Res:    req.Res,
					Meters: req.Meters,
					Hull:   req.Hull,
					Format: req.Format,
				})
				select {
				case results <- batchResult{i: j.i, f: f, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for i, c := range req.Cells {
		select {
		case jobs <- job{i: i, cell: c}:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]feature.Feature, len(req.Cells))
	var firstErr error
	n := 0
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("cell %s: %w", req.Cells[res.i], res.err)
			}
			continue
		}
		out[res.i] = res.f
		n++
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if n != len(req.Cells) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("batch incomplete")
	}
	return out, nil
}
