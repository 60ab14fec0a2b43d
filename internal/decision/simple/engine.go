package simple

import (
	"time"

	"github.com/spatialkit/h3-boundary/internal/decision"
	"github.com/spatialkit/h3-boundary/internal/hotness"
)

// Engine admits responses that are hot, large or slow to recompute.
// The TTL band follows the cell's hotness score so popular cells stay
// cached longer than entries admitted purely on cost.
type Engine struct {
	Hot        hotness.Interface
	Threshold  float64
	AdmitAll   bool
	MinCells   int
	MinCompute time.Duration
	TTLCold    time.Duration
	TTLWarm    time.Duration
	TTLHot     time.Duration
}

var _ decision.Interface = (*Engine)(nil)

func (e *Engine) Decide(cell string, cost decision.Cost) decision.Outcome {
	score := 0.0
	if e.Hot != nil {
		score = e.Hot.Score(cell)
	}

	out := decision.Outcome{Tier: e.tier(score)}
	switch {
	case e.AdmitAll:
		out.Admit, out.Reason = true, decision.ReasonAdmitAll
	case e.Threshold > 0 && score >= e.Threshold:
		out.Admit, out.Reason = true, decision.ReasonHotCell
	case e.MinCells > 0 && cost.Cells >= e.MinCells:
		out.Admit, out.Reason = true, decision.ReasonLargeResult
	case e.MinCompute > 0 && cost.Compute >= e.MinCompute:
		out.Admit, out.Reason = true, decision.ReasonSlowCompute
	default:
		out.Reason = decision.ReasonBelowThresholds
		return out
	}
	out.TTL = e.ttlFor(out.Tier)
	return out
}

// warm starts at a quarter of the hot threshold
func (e *Engine) tier(score float64) string {
	switch {
	case e.Threshold > 0 && score >= e.Threshold:
		return decision.TierHot
	case e.Threshold > 0 && score >= e.Threshold/4:
		return decision.TierWarm
	default:
		return decision.TierCold
	}
}

func (e *Engine) ttlFor(tier string) time.Duration {
	switch tier {
	case decision.TierHot:
		return e.TTLHot
	case decision.TierWarm:
		return e.TTLWarm
	default:
		return e.TTLCold
	}
}
