package simple

import (
	"time"

	"github.com/spatialkit/h3-boundary/internal/decision"
	decsimple "github.com/spatialkit/h3-boundary/internal/decision/simple"
	"github.com/spatialkit/h3-boundary/internal/hotness"
	"github.com/spatialkit/h3-boundary/pkg/adaptive"
)

type Config struct {
	Threshold  float64
	AdmitAll   bool
	MinCells   int
	MinCompute time.Duration
	TTLCold    time.Duration
	TTLWarm    time.Duration
	TTLHot     time.Duration
}

// SimpleDecider adapts the threshold engine to the public Decider
// interface. The hotness view is taken per call, so one decider can
// serve strategies with different trackers.
type SimpleDecider struct {
	cfg Config
}

var _ adaptive.Decider = (*SimpleDecider)(nil)

func New(cfg Config) *SimpleDecider {
	return &SimpleDecider{cfg: cfg}
}

func (d *SimpleDecider) Decide(q adaptive.Query, view adaptive.HotnessView) (adaptive.Decision, adaptive.Reason) {
	eng := &decsimple.Engine{
		Hot:        &roHot{v: view},
		Threshold:  d.cfg.Threshold,
		AdmitAll:   d.cfg.AdmitAll,
		MinCells:   d.cfg.MinCells,
		MinCompute: d.cfg.MinCompute,
		TTLCold:    d.cfg.TTLCold,
		TTLWarm:    d.cfg.TTLWarm,
		TTLHot:     d.cfg.TTLHot,
	}

	out := eng.Decide(q.Cell, decision.Cost{Cells: q.Cells, Compute: q.Duration})

	dec := adaptive.Decision{Verdict: adaptive.VerdictSkip, Tier: out.Tier}
	if out.Admit {
		dec.Verdict = adaptive.VerdictAdmit
		dec.TTL = out.TTL
	}
	return dec, adaptive.Reason(out.Reason)
}

// roHot exposes a HotnessView as the tracker interface the engine
// expects, with writes discarded.
type roHot struct{ v adaptive.HotnessView }

var _ hotness.Interface = (*roHot)(nil)

func (r *roHot) Inc(string)      {}
func (r *roHot) Reset(...string) {}
func (r *roHot) Score(cell string) float64 {
	if r.v == nil {
		return 0
	}
	return r.v.Score(cell)
}
