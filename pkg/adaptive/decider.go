// Package adaptive provides pluggable cache admission deciders.
package adaptive

import "time"

// HotnessView is a read-only window onto the hit tracker.
type HotnessView interface {
	Score(cell string) float64
}

// Query describes one computed response up for admission.
type Query struct {
	Op       string
	Cell     string
	Cells    int
	Duration time.Duration
}

type Verdict int

const (
	VerdictSkip Verdict = iota
	VerdictAdmit
)

type Reason string

const (
	ReasonAdmitAll        Reason = "admit_all"
	ReasonHotCell         Reason = "hot_cell"
	ReasonLargeResult     Reason = "large_result"
	ReasonSlowCompute     Reason = "slow_compute"
	ReasonBelowThresholds Reason = "below_thresholds"
)

// Decision is the verdict plus the TTL band for admitted entries.
// TTL zero means the cache default.
type Decision struct {
	Verdict Verdict
	Tier    string
	TTL     time.Duration
}

type Decider interface {
	Decide(q Query, view HotnessView) (Decision, Reason)
}
