package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// versionDedupe remembers the newest event timestamp applied per
// selector so redeliveries and out-of-order replays are dropped.
type versionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newVersionDedupe(size int) *versionDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &versionDedupe{lru: c}
}

// stale reports whether v is at or below the last recorded version.
func (d *versionDedupe) stale(key string, v uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && v <= last
}

// record is called only after a successful apply, so a failed message
// stays eligible for redelivery.
func (d *versionDedupe) record(key string, v uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && v <= last {
		return
	}
	d.lru.Add(key, v)
}
