package cached_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/internal/cache/polygonstore"
	"github.com/spatialkit/h3-boundary/internal/cache/redisstore"
	"github.com/spatialkit/h3-boundary/internal/cache/resindex"
	"github.com/spatialkit/h3-boundary/internal/core/config"
	"github.com/spatialkit/h3-boundary/internal/core/model"
	"github.com/spatialkit/h3-boundary/internal/core/router"
	"github.com/spatialkit/h3-boundary/internal/engine"
	"github.com/spatialkit/h3-boundary/internal/feature"
	"github.com/spatialkit/h3-boundary/internal/grid/h3index"
	"github.com/spatialkit/h3-boundary/internal/hotness/expdecay"
	"github.com/spatialkit/h3-boundary/internal/strategy"
	"github.com/spatialkit/h3-boundary/internal/strategy/cached"
	"github.com/spatialkit/h3-boundary/pkg/adaptive"
)

type countingEngine struct {
	inner *engine.Engine
	calls int64
}

func (c *countingEngine) Polygon(ctx context.Context, req model.PolygonRequest) (feature.Feature, engine.Stats, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.inner.Polygon(ctx, req)
}

func (c *countingEngine) IntermediateRes() int { return c.inner.IntermediateRes() }

func (c *countingEngine) count() int64 { return atomic.LoadInt64(&c.calls) }

type stubDecider struct {
	dec    adaptive.Decision
	reason adaptive.Reason
}

func (s stubDecider) Decide(adaptive.Query, adaptive.HotnessView) (adaptive.Decision, adaptive.Reason) {
	return s.dec, s.reason
}

func admitAll() adaptive.Decider {
	return stubDecider{dec: adaptive.Decision{Verdict: adaptive.VerdictAdmit}, reason: adaptive.ReasonAdmitAll}
}

func skipAll() adaptive.Decider {
	return stubDecider{dec: adaptive.Decision{Verdict: adaptive.VerdictSkip}, reason: adaptive.ReasonBelowThresholds}
}

type stack struct {
	mr    *miniredis.Miniredis
	eng   *countingEngine
	store *polygonstore.Store
	index resindex.Index
	h     router.PolygonHandler
}

func newStack(t *testing.T, dec adaptive.Decider) *stack {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	store, err := polygonstore.New(cli, zerolog.Nop(), polygonstore.Config{DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("polygonstore: %v", err)
	}

	ce := &countingEngine{inner: engine.New(zerolog.Nop(), h3index.New(), engine.DefaultIntermediateRes)}
	h, err := cached.New(config.Config{
		CacheTTLDefault: time.Minute,
		CacheOpTimeout:  time.Second,
		BatchMaxWorkers: 2,
		BatchQueue:      2,
	}, zerolog.Nop(), strategy.Deps{
		Engine:  ce,
		Store:   store,
		Index:   resindex.NewRedisIndex(cli),
		Hot:     expdecay.New(time.Minute),
		Decider: dec,
	})
	if err != nil {
		t.Fatalf("cached.New: %v", err)
	}
	return &stack{mr: mr, eng: ce, store: store, index: resindex.NewRedisIndex(cli), h: h}
}

func cellAt(t *testing.T, lat, lon float64, res int) string {
	t.Helper()
	c, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), res)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	return c.String()
}

func doPolygon(t *testing.T, h router.PolygonHandler, req model.PolygonRequest) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/polygon/"+string(req.Op), nil)
	h.HandlePolygon(r.Context(), rr, r, req)
	return rr
}

func doBatch(t *testing.T, h router.PolygonHandler, req model.BatchRequest) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/polygon/batch", nil)
	h.HandleBatch(r.Context(), rr, r, req)
	return rr
}

func TestHandlePolygon_MissThenHit(t *testing.T) {
	st := newStack(t, admitAll())
	cell := cellAt(t, 59.3293, 18.0686, 9)
	req := model.PolygonRequest{Op: model.OpCell, Cell: cell, Res: -1, Meters: -1, Format: "geojson"}

	first := doPolygon(t, st.h, req)
	if first.Code != http.StatusOK {
		t.Fatalf("miss status = %d body=%s", first.Code, first.Body.String())
	}
	if got := st.eng.count(); got != 1 {
		t.Fatalf("engine calls after miss = %d", got)
	}

	second := doPolygon(t, st.h, req)
	if second.Code != http.StatusOK {
		t.Fatalf("hit status = %d", second.Code)
	}
	if got := st.eng.count(); got != 1 {
		t.Fatalf("engine calls after hit = %d, hit recomputed", got)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("hit body differs from computed body")
	}
	if ct := second.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("hit content type = %q", ct)
	}
}

func TestHandlePolygon_SkipLeavesNothingBehind(t *testing.T) {
	st := newStack(t, skipAll())
	cell := cellAt(t, 55.6050, 13.0038, 9)
	req := model.PolygonRequest{Op: model.OpCell, Cell: cell, Res: -1, Meters: -1, Format: "geojson"}

	for range 2 {
		if rr := doPolygon(t, st.h, req); rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	}
	if got := st.eng.count(); got != 2 {
		t.Fatalf("engine calls = %d, want recompute on every skip", got)
	}
	if ks := st.mr.Keys(); len(ks) != 0 {
		t.Fatalf("unexpected redis keys after skip: %v", ks)
	}
}

func TestHandlePolygon_EpochFailureServesComputed(t *testing.T) {
	st := newStack(t, admitAll())
	cell := cellAt(t, 57.7089, 11.9746, 9)
	st.mr.Close()

	rr := doPolygon(t, st.h, model.PolygonRequest{Op: model.OpCell, Cell: cell, Res: -1, Meters: -1, Format: "geojson"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := st.eng.count(); got != 1 {
		t.Fatalf("engine calls = %d", got)
	}
	var f feature.Feature
	if err := json.Unmarshal(rr.Body.Bytes(), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Properties["h3_index"] != cell {
		t.Fatalf("h3_index = %v", f.Properties["h3_index"])
	}
}

func TestAdmit_TTLFromDecision(t *testing.T) {
	st := newStack(t, stubDecider{
		dec:    adaptive.Decision{Verdict: adaptive.VerdictAdmit, Tier: "hot", TTL: 90 * time.Second},
		reason: adaptive.ReasonHotCell,
	})
	cell := cellAt(t, 59.3293, 18.0686, 9)

	doPolygon(t, st.h, model.PolygonRequest{Op: model.OpCell, Cell: cell, Res: -1, Meters: -1, Format: "geojson"})

	var payloadKey string
	for _, k := range st.mr.Keys() {
		if !strings.HasPrefix(k, "idx:") {
			payloadKey = k
			break
		}
	}
	if payloadKey == "" {
		t.Fatalf("no payload key stored: %v", st.mr.Keys())
	}
	if ttl := st.mr.TTL(payloadKey); ttl != 90*time.Second {
		t.Fatalf("payload ttl = %s want 90s", ttl)
	}
}

func TestAdmit_IndexRegistration(t *testing.T) {
	st := newStack(t, admitAll())
	ctx := context.Background()
	anchor := cellAt(t, 59.3293, 18.0686, 7)

	doPolygon(t, st.h, model.PolygonRequest{Op: model.OpBoundary, Cell: anchor, Res: 9, Meters: -1, Format: "geojson"})

	epoch, err := st.store.Epoch(ctx)
	if err != nil {
		t.Fatalf("Epoch: %v", err)
	}

	// Descending ops register under the requested child resolution.
	ks, err := st.index.ResKeys(ctx, epoch, 9)
	if err != nil {
		t.Fatalf("ResKeys: %v", err)
	}
	if len(ks) != 1 {
		t.Fatalf("res index keys = %v", ks)
	}
	cks, err := st.index.CellKeys(ctx, epoch, anchor)
	if err != nil {
		t.Fatalf("CellKeys: %v", err)
	}
	if len(cks) != 1 || cks[0] != ks[0] {
		t.Fatalf("cell index keys = %v, res index keys = %v", cks, ks)
	}

	// Anchor-level ops register under the cell's own resolution.
	single := cellAt(t, 55.6050, 13.0038, 9)
	doPolygon(t, st.h, model.PolygonRequest{Op: model.OpCell, Cell: single, Res: -1, Meters: -1, Format: "geojson"})
	ks9, err := st.index.ResKeys(ctx, epoch, 9)
	if err != nil {
		t.Fatalf("ResKeys: %v", err)
	}
	found := false
	for _, k := range ks9 {
		if strings.Contains(k, single) {
			found = true
		}
	}
	if !found {
		t.Fatalf("cell op not indexed under its own resolution: %v", ks9)
	}
}

func TestHandleBatch_PartialHitComputesOnlyMissing(t *testing.T) {
	st := newStack(t, admitAll())
	cells := []string{
		cellAt(t, 59.3293, 18.0686, 7),
		cellAt(t, 55.6050, 13.0038, 7),
		cellAt(t, 57.7089, 11.9746, 7),
	}

	warm := doBatch(t, st.h, model.BatchRequest{Cells: cells[1:2], Res: 9, Meters: -1, Format: "geojson"})
	if warm.Code != http.StatusOK {
		t.Fatalf("warm status = %d body=%s", warm.Code, warm.Body.String())
	}
	before := st.eng.count()

	rr := doBatch(t, st.h, model.BatchRequest{Cells: cells, Res: 9, Meters: -1, Format: "geojson"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := st.eng.count() - before; got != 2 {
		t.Fatalf("engine calls for partial batch = %d, want 2", got)
	}

	var col feature.Collection
	if err := json.Unmarshal(rr.Body.Bytes(), &col); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(col.Features) != len(cells) {
		t.Fatalf("features = %d", len(col.Features))
	}
	for i, f := range col.Features {
		if f.Properties["h3_index"] != cells[i] {
			t.Fatalf("feature %d = %v, want %s", i, f.Properties["h3_index"], cells[i])
		}
	}
}

func TestHandleBatch_SharesEntriesWithSingleOp(t *testing.T) {
	st := newStack(t, admitAll())
	cell := cellAt(t, 59.3293, 18.0686, 7)

	if rr := doBatch(t, st.h, model.BatchRequest{Cells: []string{cell}, Res: 9, Meters: -1, Format: "geojson"}); rr.Code != http.StatusOK {
		t.Fatalf("batch status = %d", rr.Code)
	}
	before := st.eng.count()

	rr := doPolygon(t, st.h, model.PolygonRequest{
		Op: model.OpBoundary, Cell: cell, Res: 9, Meters: -1, Format: "geojson",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("single status = %d", rr.Code)
	}
	if got := st.eng.count(); got != before {
		t.Fatalf("single op recomputed a batch-cached cell: calls %d -> %d", before, got)
	}
}

func TestHandleBatch_ResolutionErrorIs400(t *testing.T) {
	st := newStack(t, admitAll())
	cell := cellAt(t, 59.3293, 18.0686, 7)

	rr := doBatch(t, st.h, model.BatchRequest{Cells: []string{cell}, Res: 5, Meters: -1, Format: "geojson"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d want 400 body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), cell) {
		t.Fatalf("body does not name the failing cell: %q", rr.Body.String())
	}
}

func TestHandleBatch_EpochFailureStillServes(t *testing.T) {
	st := newStack(t, admitAll())
	cells := []string{cellAt(t, 59.3293, 18.0686, 7), cellAt(t, 55.6050, 13.0038, 7)}
	st.mr.Close()

	rr := doBatch(t, st.h, model.BatchRequest{Cells: cells, Res: 9, Meters: -1, Format: "geojson"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var col feature.Collection
	if err := json.Unmarshal(rr.Body.Bytes(), &col); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(col.Features) != len(cells) {
		t.Fatalf("features = %d", len(col.Features))
	}
}
