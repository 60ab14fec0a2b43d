package invalidation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/cache/polygonstore"
	"github.com/spatialkit/h3-boundary/internal/cache/resindex"
	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/hotness"
)

// Applier translates events into cache mutations. Scope all bumps the
// epoch so every live key is orphaned at once; cell and res scopes walk
// the key index and delete the matching payloads.
type Applier struct {
	log   zerolog.Logger
	store *polygonstore.Store
	index resindex.Index
	hot   hotness.Interface
}

func NewApplier(log zerolog.Logger, store *polygonstore.Store, index resindex.Index, hot hotness.Interface) *Applier {
	return &Applier{log: log, store: store, index: index, hot: hot}
}

func (a *Applier) Apply(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		observability.ObserveInvalidation("invalid")
		return fmt.Errorf("validate event: %w", err)
	}

	var err error
	switch ev.Scope {
	case ScopeAll:
		err = a.applyAll(ctx)
	case ScopeCell:
		err = a.applyCell(ctx, ev.Cell)
	case ScopeRes:
		err = a.applyRes(ctx, *ev.Res)
	}
	if err != nil {
		observability.ObserveInvalidation("error")
		return err
	}

	observability.ObserveInvalidation("applied")
	observability.SetScopeInvalidatedAt(string(ev.Scope), ev.TS)
	a.log.Info().
		Str("scope", string(ev.Scope)).
		Str("cell", ev.Cell).
		Str("reason", ev.Reason).
		Time("event_ts", ev.TS).
		Msg("invalidation applied")
	return nil
}

func (a *Applier) applyAll(ctx context.Context) error {
	epoch, err := a.store.BumpEpoch(ctx)
	if err != nil {
		return fmt.Errorf("bump epoch: %w", err)
	}
	a.log.Info().Uint64("epoch", epoch).Msg("cache epoch bumped")
	return nil
}

func (a *Applier) applyCell(ctx context.Context, cell string) error {
	epoch, err := a.store.Epoch(ctx)
	if err != nil {
		return fmt.Errorf("read epoch: %w", err)
	}
	ks, err := a.index.CellKeys(ctx, epoch, cell)
	if err != nil {
		return fmt.Errorf("cell index lookup: %w", err)
	}
	if len(ks) > 0 {
		if err := a.store.Delete(ctx, ks...); err != nil {
			return fmt.Errorf("delete payloads: %w", err)
		}
	}
	if err := a.index.DropCell(ctx, epoch, cell); err != nil {
		return fmt.Errorf("drop cell index: %w", err)
	}
	if a.hot != nil {
		a.hot.Reset(cell)
	}
	a.log.Debug().Str("cell", cell).Int("keys", len(ks)).Msg("cell invalidated")
	return nil
}

func (a *Applier) applyRes(ctx context.Context, res int) error {
	epoch, err := a.store.Epoch(ctx)
	if err != nil {
		return fmt.Errorf("read epoch: %w", err)
	}
	ks, err := a.index.ResKeys(ctx, epoch, res)
	if err != nil {
		return fmt.Errorf("res index lookup: %w", err)
	}
	if len(ks) > 0 {
		if err := a.store.Delete(ctx, ks...); err != nil {
			return fmt.Errorf("delete payloads: %w", err)
		}
	}
	if err := a.index.DropRes(ctx, epoch, res); err != nil {
		return fmt.Errorf("drop res index: %w", err)
	}
	a.log.Debug().Int("res", res).Int("keys", len(ks)).Msg("resolution invalidated")
	return nil
}
