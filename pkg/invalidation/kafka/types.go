package kafka

import (
	"fmt"
	"time"

	"github.com/spatialkit/h3-boundary/internal/invalidation"
)

// WireEvent is the on-topic JSON shape, field for field the same as
// invalidation.Event. The fallback timestamp keeps producers that omit
// ts consumable.
type WireEvent struct {
	Version int       `json:"version"`
	Scope   string    `json:"scope"`
	Cell    string    `json:"cell,omitempty"`
	Res     *int      `json:"res,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	TS      time.Time `json:"ts"`
}

func (w WireEvent) Event(fallback time.Time) invalidation.Event {
	ts := w.TS
	if ts.IsZero() {
		ts = fallback
	}
	return invalidation.Event{
		Version: w.Version,
		Scope:   invalidation.Scope(w.Scope),
		Cell:    w.Cell,
		Res:     w.Res,
		Reason:  w.Reason,
		TS:      ts,
	}
}

// selector is the idempotency key: one dedupe slot per invalidation
// target.
func (w WireEvent) selector() string {
	switch invalidation.Scope(w.Scope) {
	case invalidation.ScopeCell:
		return "cell:" + w.Cell
	case invalidation.ScopeRes:
		if w.Res != nil {
			return fmt.Sprintf("res:%d", *w.Res)
		}
		return "res:"
	default:
		return "all"
	}
}
