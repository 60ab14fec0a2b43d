// Package invalidation defines the operational cache invalidation
// event and applies it to the polygon cache.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

type Scope string

const (
	// ScopeAll bumps the cache epoch, orphaning every cached polygon.
	ScopeAll Scope = "all"
	// ScopeCell deletes cached polygons derived from one cell.
	ScopeCell Scope = "cell"
	// ScopeRes deletes cached polygons whose request resolution matches.
	ScopeRes Scope = "res"
)

type Event struct {
	Version int       `json:"version"`
	Scope   Scope     `json:"scope"`
	Cell    string    `json:"cell,omitempty"`
	Res     *int      `json:"res,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	TS      time.Time `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Scope {
	case ScopeAll:
		if e.Cell != "" || e.Res != nil {
			return fmt.Errorf("scope all takes neither cell nor res")
		}
	case ScopeCell:
		if strings.TrimSpace(e.Cell) == "" {
			return fmt.Errorf("cell is required for scope cell")
		}
		if e.Res != nil {
			return fmt.Errorf("res is not allowed for scope cell")
		}
	case ScopeRes:
		if e.Res == nil {
			return fmt.Errorf("res is required for scope res")
		}
		if *e.Res < 0 || *e.Res > 15 {
			return fmt.Errorf("res must be in [0,15]")
		}
		if e.Cell != "" {
			return fmt.Errorf("cell is not allowed for scope res")
		}
	default:
		return fmt.Errorf("scope must be all|cell|res")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
