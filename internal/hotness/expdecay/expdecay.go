// Package expdecay tracks per-cell request heat with exponentially
// decaying counters. A hit adds one to the cell's score and the score
// halves every half-life, so sustained traffic on a cell stays hot
// while one-off bursts fade.
package expdecay

import (
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/spatialkit/h3-boundary/internal/hotness"
)

// bucketCount must stay a power of two, bucketFor masks the hash.
const bucketCount = 64

// Tracker is a sharded decay counter keyed by H3 cell index.
type Tracker struct {
	halfLife time.Duration

	clock func() time.Time

	buckets [bucketCount]bucket
}

type bucket struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	heat    float64
	touched time.Time
}

var _ hotness.Interface = (*Tracker)(nil)

func New(halfLife time.Duration) *Tracker {
	if halfLife <= 0 {
		halfLife = time.Minute
	}
	t := &Tracker{halfLife: halfLife, clock: time.Now}
	for i := range t.buckets {
		t.buckets[i].entries = make(map[string]*entry)
	}
	return t
}

// Inc decays the cell's stored heat to now, then adds one.
func (t *Tracker) Inc(cell string) {
	if cell == "" {
		return
	}
	b := t.bucketFor(cell)
	now := t.clock()

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entries[cell]
	if e == nil {
		b.entries[cell] = &entry{heat: 1, touched: now}
		return
	}
	e.heat = t.decayed(e.heat, now.Sub(e.touched)) + 1
	e.touched = now
}

// Score reports the cell's heat decayed to now without mutating it.
func (t *Tracker) Score(cell string) float64 {
	if cell == "" {
		return 0
	}
	b := t.bucketFor(cell)
	now := t.clock()

	b.mu.RLock()
	e := b.entries[cell]
	if e == nil {
		b.mu.RUnlock()
		return 0
	}
	heat, touched := e.heat, e.touched
	b.mu.RUnlock()

	return t.decayed(heat, now.Sub(touched))
}

// Reset drops the named cells entirely, typically after invalidation.
func (t *Tracker) Reset(cells ...string) {
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		b := t.bucketFor(cell)
		b.mu.Lock()
		delete(b.entries, cell)
		b.mu.Unlock()
	}
}

// Size counts tracked cells across all buckets.
func (t *Tracker) Size() int {
	total := 0
	for i := range t.buckets {
		t.buckets[i].mu.RLock()
		total += len(t.buckets[i].entries)
		t.buckets[i].mu.RUnlock()
	}
	return total
}

func (t *Tracker) decayed(heat float64, age time.Duration) float64 {
	hl := t.halfLife.Seconds()
	dt := age.Seconds()
	if heat == 0 || dt <= 0 || hl <= 0 {
		return heat
	}
	return heat * math.Exp(-math.Ln2/hl*dt)
}

func (t *Tracker) bucketFor(cell string) *bucket {
	idx := xxhash.Sum64String(cell) & (bucketCount - 1)
	return &t.buckets[idx]
}
