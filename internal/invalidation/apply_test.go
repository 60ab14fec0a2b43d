package invalidation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/cache/keys"
	"github.com/spatialkit/h3-boundary/internal/cache/polygonstore"
	"github.com/spatialkit/h3-boundary/internal/cache/redisstore"
	"github.com/spatialkit/h3-boundary/internal/cache/resindex"
	"github.com/spatialkit/h3-boundary/internal/core/model"
)

type fakeHot struct {
	mu     sync.Mutex
	resets []string
}

func (f *fakeHot) Inc(string)           {}
func (f *fakeHot) Score(string) float64 { return 0 }

func (f *fakeHot) Reset(cells ...string) {
	f.mu.Lock()
	f.resets = append(f.resets, cells...)
	f.mu.Unlock()
}

func newTestApplier(t *testing.T) (*Applier, *polygonstore.Store, resindex.Index, *fakeHot) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	store, err := polygonstore.New(cli, zerolog.Nop(), polygonstore.Config{
		DefaultTTL:   time.Minute,
		EpochRefresh: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("polygon store: %v", err)
	}
	ix := resindex.NewRedisIndex(cli)
	hot := &fakeHot{}
	return NewApplier(zerolog.Nop(), store, ix, hot), store, ix, hot
}

func seedEntry(t *testing.T, store *polygonstore.Store, ix resindex.Index, cell string, res int) string {
	t.Helper()
	ctx := context.Background()
	epoch, err := store.Epoch(ctx)
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}
	k := keys.Polygon(epoch, model.PolygonRequest{Op: model.OpBoundary, Cell: cell, Res: res, Meters: -1})
	if err := store.Put(ctx, k, []byte(`{"type":"Feature"}`), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ix.Add(ctx, epoch, cell, res, k, time.Minute); err != nil {
		t.Fatalf("index add: %v", err)
	}
	return k
}

func TestApply_ScopeAll_BumpsEpoch(t *testing.T) {
	a, store, _, _ := newTestApplier(t)
	ctx := context.Background()

	before, err := store.Epoch(ctx)
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}

	ev := Event{Version: 1, Scope: ScopeAll, Reason: "reimport", TS: mustTS()}
	if err := a.Apply(ctx, ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	after, err := store.Epoch(ctx)
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}
	if after != before+1 {
		t.Fatalf("epoch %d, want %d", after, before+1)
	}
}

func TestApply_ScopeCell_DeletesPayloadAndIndex(t *testing.T) {
	a, store, ix, hot := newTestApplier(t)
	ctx := context.Background()

	cell := "881f05975dfffff"
	k := seedEntry(t, store, ix, cell, 9)

	if _, ok, _ := store.Get(ctx, k); !ok {
		t.Fatalf("precondition: payload should exist")
	}

	ev := Event{Version: 1, Scope: ScopeCell, Cell: cell, TS: mustTS()}
	if err := a.Apply(ctx, ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, ok, _ := store.Get(ctx, k); ok {
		t.Fatalf("payload should be deleted")
	}
	epoch, _ := store.Epoch(ctx)
	left, err := ix.CellKeys(ctx, epoch, cell)
	if err != nil {
		t.Fatalf("cell keys: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("index should be empty, got %v", left)
	}
	hot.mu.Lock()
	defer hot.mu.Unlock()
	if len(hot.resets) != 1 || hot.resets[0] != cell {
		t.Fatalf("hotness reset %v, want [%s]", hot.resets, cell)
	}
}

func TestApply_ScopeRes_LeavesOtherResolutionsAlone(t *testing.T) {
	a, store, ix, _ := newTestApplier(t)
	ctx := context.Background()

	k9 := seedEntry(t, store, ix, "881f05975dfffff", 9)
	k11 := seedEntry(t, store, ix, "881f05975dfffff", 11)

	ev := Event{Version: 1, Scope: ScopeRes, Res: intp(9), TS: mustTS()}
	if err := a.Apply(ctx, ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, ok, _ := store.Get(ctx, k9); ok {
		t.Fatalf("res 9 payload should be deleted")
	}
	if _, ok, _ := store.Get(ctx, k11); !ok {
		t.Fatalf("res 11 payload should survive")
	}
}

func TestApply_RejectsInvalidEvent(t *testing.T) {
	a, _, _, _ := newTestApplier(t)
	ev := Event{Version: 1, Scope: "layer", TS: mustTS()}
	if err := a.Apply(context.Background(), ev); err == nil {
		t.Fatalf("expected validation error")
	}
}
