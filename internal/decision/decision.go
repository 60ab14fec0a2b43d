// Package decision decides which computed polygon responses are worth
// keeping in the cache.
package decision

import "time"

// Cost is what the engine spent producing one response.
type Cost struct {
	Cells   int           // boundary cells visited during the descent
	Compute time.Duration // pipeline duration
}

// Outcome carries the admission verdict. TTL zero means the store
// default applies.
type Outcome struct {
	Admit  bool
	Tier   string
	TTL    time.Duration
	Reason string
}

const (
	TierCold = "cold"
	TierWarm = "warm"
	TierHot  = "hot"
)

const (
	ReasonAdmitAll        = "admit_all"
	ReasonHotCell         = "hot_cell"
	ReasonLargeResult     = "large_result"
	ReasonSlowCompute     = "slow_compute"
	ReasonBelowThresholds = "below_thresholds"
)

type Interface interface {
	Decide(cell string, cost Cost) Outcome
}
