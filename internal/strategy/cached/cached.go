// Package cached serves polygon requests through the Redis payload cache,
// with hotness-driven admission deciding what is worth keeping.
package cached

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/internal/cache/keys"
	"github.com/spatialkit/h3-boundary/internal/cache/polygonstore"
	"github.com/spatialkit/h3-boundary/internal/cache/resindex"
	"github.com/spatialkit/h3-boundary/internal/core/config"
	"github.com/spatialkit/h3-boundary/internal/core/encode"
	"github.com/spatialkit/h3-boundary/internal/core/model"
	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/core/router"
	"github.com/spatialkit/h3-boundary/internal/engine"
	"github.com/spatialkit/h3-boundary/internal/feature"
	"github.com/spatialkit/h3-boundary/internal/hotness"
	"github.com/spatialkit/h3-boundary/internal/strategy"
	"github.com/spatialkit/h3-boundary/pkg/adaptive"
)

type Engine struct {
	log   zerolog.Logger
	eng   strategy.PolygonEngine
	store *polygonstore.Store
	index resindex.Index
	hot   hotness.Interface
	dec   adaptive.Decider

	ttlDefault time.Duration
	ttlOvr     map[string]time.Duration
	opTimeout  time.Duration
	workers    int
	queue      int
}

func init() {
	strategy.Register("cached", New)
}

func New(cfg config.Config, log zerolog.Logger, deps strategy.Deps) (router.PolygonHandler, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("cached strategy requires an engine")
	case deps.Store == nil:
		return nil, errors.New("cached strategy requires a polygon store")
	case deps.Index == nil:
		return nil, errors.New("cached strategy requires a payload index")
	case deps.Hot == nil:
		return nil, errors.New("cached strategy requires a hotness tracker")
	case deps.Decider == nil:
		return nil, errors.New("cached strategy requires an admission decider")
	}
	return &Engine{
		log:        log,
		eng:        deps.Engine,
		store:      deps.Store,
		index:      deps.Index,
		hot:        deps.Hot,
		dec:        deps.Decider,
		ttlDefault: cfg.CacheTTLDefault,
		ttlOvr:     cfg.CacheTTLOvr,
		opTimeout:  cfg.CacheOpTimeout,
		workers:    cfg.BatchMaxWorkers,
		queue:      cfg.BatchQueue,
	}, nil
}

func (e *Engine) HandlePolygon(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.PolygonRequest) {
	start := time.Now()
	op := string(req.Op)

	e.hotTouch(req.Cell)

	epoch, err := e.store.Epoch(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("epoch unavailable, serving computed response")
		e.computeAndWrite(ctx, w, req, "computed", start)
		return
	}

	key := keys.Polygon(epoch, req)
	body, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("cache get error, recomputing")
	}
	if ok {
		observability.AddCacheHits(1)
		w.Header().Set("Content-Type", encode.ContentType(encode.Format(req.Format)))
		_, _ = w.Write(body)
		observability.ObservePolygonResponse("hit", op, time.Since(start).Seconds())
		e.log.Debug().Str("op", op).Str("key", key).Msg("cache hit")
		return
	}

	observability.AddCacheMisses(1)
	body, st, ok := e.computeAndWrite(ctx, w, req, "miss", start)
	if !ok {
		return
	}
	e.admit(req, key, body, epoch, st)
	e.log.Info().
		Str("op", op).
		Str("cell", req.Cell).
		Int("cells", st.Cells).
		Dur("compute", st.Dur).
		Dur("total", time.Since(start)).
		Msg("cache miss filled")
}

type fillResult struct {
	i   int
	f   feature.Feature
	err error
}

func (e *Engine) HandleBatch(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.BatchRequest) {
	start := time.Now()

	for _, c := range req.Cells {
		e.hotTouch(c)
	}

	// Per-cell payloads are cached as GeoJSON regardless of the response
	// format, so batch entries and single-op lookups share keys.
	perCell := make([]model.PolygonRequest, len(req.Cells))
	for i, c := range req.Cells {
		perCell[i] = model.PolygonRequest{
			Op:     model.OpBoundary,
			Cell:   c,
			Res:    req.Res,
			Meters: req.Meters,
			Hull:   req.Hull,
			Format: "geojson",
		}
	}

	keysList := make([]string, len(perCell))
	hits := map[string][]byte{}
	cacheable := true

	epoch, err := e.store.Epoch(ctx)
	if err != nil {
		cacheable = false
		e.log.Warn().Err(err).Msg("epoch unavailable, batch served uncached")
	} else {
		for i, pr := range perCell {
			keysList[i] = keys.Polygon(epoch, pr)
		}
		m, err := e.store.MGet(ctx, keysList)
		if err != nil {
			e.log.Warn().Err(err).Msg("cache mget error, continuing with compute path")
		} else {
			hits = m
		}
	}

	feats := make([]feature.Feature, len(perCell))
	missing := make([]int, 0, len(perCell))
	for i := range perCell {
		if cacheable {
			if v, ok := hits[keysList[i]]; ok && len(v) > 0 {
				var f feature.Feature
				uerr := json.Unmarshal(v, &f)
				if uerr == nil {
					feats[i] = f
					continue
				}
				e.log.Warn().Err(uerr).Str("key", keysList[i]).Msg("cached payload unreadable, recomputing")
			}
		}
		missing = append(missing, i)
	}

	if len(missing) == 0 {
		observability.AddCacheHits(len(perCell))
		if !e.writeBatch(w, feats, req.Format) {
			return
		}
		observability.ObservePolygonResponse("hit", "batch", time.Since(start).Seconds())
		e.log.Info().
			Int("cells", len(perCell)).
			Int("hits", len(perCell)).
			Int("misses", 0).
			Dur("dur", time.Since(start)).
			Msg("cache full-hit")
		return
	}

	fillStart := time.Now()
	workerN := e.workers
	if workerN <= 0 {
		workerN = 8
	}
	queueN := e.queue
	if queueN <= 0 {
		queueN = workerN
	}

	jobs := make(chan int, queueN)
	results := make(chan fillResult, len(missing))

	var wg sync.WaitGroup
	wg.Add(workerN)
	for range workerN {
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				f, st, err := e.eng.Polygon(ctx, perCell[i])
				if err == nil && cacheable {
					if body, merr := f.MarshalJSONBytes(); merr == nil {
						e.admit(perCell[i], keysList[i], body, epoch, st)
					}
				}
				select {
				case results <- fillResult{i: i, f: f, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, i := range missing {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			http.Error(w, "request canceled", http.StatusRequestTimeout)
			return
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	observability.AddCacheHits(len(perCell) - len(missing))
	observability.AddCacheMisses(len(missing))

	n := 0
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("cell %s: %w", perCell[res.i].Cell, res.err)
			}
			continue
		}
		feats[res.i] = res.f
		n++
	}
	if firstErr != nil {
		http.Error(w, firstErr.Error(), strategy.StatusFor(firstErr))
		return
	}
	if n != len(missing) {
		if err := ctx.Err(); err != nil {
			http.Error(w, "request canceled", http.StatusRequestTimeout)
			return
		}
		http.Error(w, "batch incomplete", http.StatusInternalServerError)
		return
	}

	if !e.writeBatch(w, feats, req.Format) {
		return
	}
	observability.ObservePolygonResponse("miss", "batch", time.Since(start).Seconds())
	e.log.Info().
		Int("cells", len(perCell)).
		Int("hits", len(perCell)-len(missing)).
		Int("misses", len(missing)).
		Dur("fill_dur", time.Since(fillStart)).
		Dur("total_dur", time.Since(start)).
		Msg("cache partial-miss")
}

// computeAndWrite runs the engine for one request and writes the encoded
// result, reporting the response under hitClass. The encoded body is
// returned for admission.
func (e *Engine) computeAndWrite(
	ctx context.Context,
	w http.ResponseWriter,
	req model.PolygonRequest,
	hitClass string,
	start time.Time,
) ([]byte, engine.Stats, bool) {
	f, st, err := e.eng.Polygon(ctx, req)
	if err != nil {
		http.Error(w, err.Error(), strategy.StatusFor(err))
		return nil, engine.Stats{}, false
	}
	body, ct, err := encode.Feature(f, encode.Format(req.Format))
	if err != nil {
		http.Error(w, "encode error: "+err.Error(), http.StatusInternalServerError)
		return nil, engine.Stats{}, false
	}
	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(body)
	observability.ObservePolygonResponse(hitClass, string(req.Op), time.Since(start).Seconds())
	return body, st, true
}

func (e *Engine) writeBatch(w http.ResponseWriter, feats []feature.Feature, format string) bool {
	body, ct, err := encode.Collection(feature.NewCollection(feats), encode.Format(format))
	if err != nil {
		http.Error(w, "encode error: "+err.Error(), http.StatusInternalServerError)
		return false
	}
	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(body)
	return true
}

// admit runs the admission decision for one computed payload and, when
// admitted, stores it and registers it in the invalidation index.
func (e *Engine) admit(req model.PolygonRequest, key string, body []byte, epoch uint64, st engine.Stats) {
	dec, reason := e.dec.Decide(adaptive.Query{
		Op:       string(req.Op),
		Cell:     req.Cell,
		Cells:    st.Cells,
		Duration: st.Dur,
	}, e.hot)
	if dec.Verdict != adaptive.VerdictAdmit {
		observability.ObserveAdmissionDecision("skip", string(reason))
		e.log.Debug().
			Str("op", string(req.Op)).
			Str("cell", req.Cell).
			Str("reason", string(reason)).
			Msg("admission skipped")
		return
	}
	observability.ObserveAdmissionDecision("admit", string(reason))

	ttl := dec.TTL
	if ttl <= 0 {
		ttl = e.ttlFor(string(req.Op))
	}

	// Writes run on a background context so a client disconnect cannot
	// abort an admission in flight.
	ctx, cancel := e.writeCtx()
	defer cancel()
	if err := e.store.Put(ctx, key, body, ttl); err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("cache put failed")
		return
	}
	res, err := e.indexResFor(req)
	if err != nil {
		e.log.Warn().Err(err).Str("cell", req.Cell).Msg("index registration skipped")
		return
	}
	// Index sets must outlive their jittered payloads.
	if err := e.index.Add(ctx, epoch, req.Cell, res, key, 2*ttl); err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("index add failed")
	}
	e.log.Debug().
		Str("key", key).
		Str("tier", dec.Tier).
		Dur("ttl", ttl).
		Msg("admitted polygon payload")
}

func (e *Engine) hotTouch(cell string) {
	e.hot.Inc(cell)
	observability.ObserveHotnessValueSample(e.hot.Score(cell))
}

func (e *Engine) ttlFor(op string) time.Duration {
	if d, ok := e.ttlOvr[op]; ok {
		return d
	}
	return e.ttlDefault
}

func (e *Engine) writeCtx() (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), e.opTimeout)
}

// indexResFor picks the resolution set an entry registers under: the
// descending ops use the request's effective child resolution, the rest
// the anchor cell's own resolution.
func (e *Engine) indexResFor(req model.PolygonRequest) (int, error) {
	switch req.Op {
	case model.OpChildren, model.OpBoundary:
		if req.Res >= 0 {
			return req.Res, nil
		}
		return e.eng.IntermediateRes(), nil
	default:
		var c h3.Cell
		if err := c.UnmarshalText([]byte(req.Cell)); err != nil {
			return 0, fmt.Errorf("parse cell: %w", err)
		}
		return c.Resolution(), nil
	}
}
