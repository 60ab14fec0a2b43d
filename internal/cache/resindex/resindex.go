// Package resindex tracks which payload keys are cached per cell and per
// cell resolution, so invalidation can delete exactly the affected
// entries instead of bumping the global epoch.
package resindex

import (
	"context"
	"fmt"
	"time"

	"github.com/spatialkit/h3-boundary/internal/cache/keys"
	"github.com/spatialkit/h3-boundary/internal/cache/redisstore"
)

type Index interface {
	// Add records a payload key under both the cell and the resolution
	// set of the current epoch.
	Add(ctx context.Context, epoch uint64, cell string, res int, payloadKey string, ttl time.Duration) error

	ResKeys(ctx context.Context, epoch uint64, res int) ([]string, error)
	CellKeys(ctx context.Context, epoch uint64, cell string) ([]string, error)

	DropRes(ctx context.Context, epoch uint64, res int) error
	DropCell(ctx context.Context, epoch uint64, cell string) error
}

type redisIndex struct {
	cli *redisstore.Client
}

func NewRedisIndex(cli *redisstore.Client) Index {
	return &redisIndex{cli: cli}
}

func (ix *redisIndex) Add(
	ctx context.Context,
	epoch uint64,
	cell string,
	res int,
	payloadKey string,
	ttl time.Duration,
) error {
	if payloadKey == "" {
		return nil
	}
	if err := ix.cli.SAdd(ctx, keys.CellIndex(epoch, cell), ttl, payloadKey); err != nil {
		return fmt.Errorf("resindex add cell set: %w", err)
	}
	if err := ix.cli.SAdd(ctx, keys.ResIndex(epoch, res), ttl, payloadKey); err != nil {
		return fmt.Errorf("resindex add res set: %w", err)
	}
	return nil
}

func (ix *redisIndex) ResKeys(ctx context.Context, epoch uint64, res int) ([]string, error) {
	ks, err := ix.cli.SMembers(ctx, keys.ResIndex(epoch, res))
	if err != nil {
		return nil, fmt.Errorf("resindex res members: %w", err)
	}
	return ks, nil
}

func (ix *redisIndex) CellKeys(ctx context.Context, epoch uint64, cell string) ([]string, error) {
	ks, err := ix.cli.SMembers(ctx, keys.CellIndex(epoch, cell))
	if err != nil {
		return nil, fmt.Errorf("resindex cell members: %w", err)
	}
	return ks, nil
}

func (ix *redisIndex) DropRes(ctx context.Context, epoch uint64, res int) error {
	if err := ix.cli.Del(ctx, keys.ResIndex(epoch, res)); err != nil {
		return fmt.Errorf("resindex drop res set: %w", err)
	}
	return nil
}

func (ix *redisIndex) DropCell(ctx context.Context, epoch uint64, cell string) error {
	if err := ix.cli.Del(ctx, keys.CellIndex(epoch, cell)); err != nil {
		return fmt.Errorf("resindex drop cell set: %w", err)
	}
	return nil
}
