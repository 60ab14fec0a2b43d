package simple

import (
	"testing"
	"time"

	"github.com/spatialkit/h3-boundary/pkg/adaptive"
)

type fakeView map[string]float64

func (f fakeView) Score(c string) float64 { return f[c] }

func testConfig() Config {
	return Config{
		Threshold: 4.0, MinCells: 100, MinCompute: 50 * time.Millisecond,
		TTLCold: 5 * time.Second, TTLWarm: 30 * time.Second, TTLHot: time.Minute,
	}
}

func TestSimpleDecider_VerdictsAndBands(t *testing.T) {
	d := New(testConfig())

	dec, reason := d.Decide(
		adaptive.Query{Op: "boundary", Cell: "881f05975dfffff", Cells: 7, Duration: time.Millisecond},
		fakeView{"881f05975dfffff": 0.5})
	if dec.Verdict != adaptive.VerdictSkip || reason != adaptive.ReasonBelowThresholds {
		t.Fatalf("expected skip below_thresholds, got %+v, %s", dec, reason)
	}

	dec, reason = d.Decide(
		adaptive.Query{Op: "boundary", Cell: "881f05975dfffff", Cells: 7, Duration: time.Millisecond},
		fakeView{"881f05975dfffff": 4.0})
	if dec.Verdict != adaptive.VerdictAdmit || reason != adaptive.ReasonHotCell {
		t.Fatalf("expected admit hot_cell, got %+v, %s", dec, reason)
	}
	if dec.TTL != time.Minute {
		t.Fatalf("hot cell should take the hot TTL, got %+v", dec)
	}

	dec, reason = d.Decide(
		adaptive.Query{Op: "boundary", Cell: "881f05975dfffff", Cells: 400, Duration: time.Millisecond},
		fakeView{"881f05975dfffff": 1.5})
	if dec.Verdict != adaptive.VerdictAdmit || reason != adaptive.ReasonLargeResult {
		t.Fatalf("expected admit large_result, got %+v, %s", dec, reason)
	}
	if dec.Tier != "warm" || dec.TTL != 30*time.Second {
		t.Fatalf("score in the warm band should take the warm TTL, got %+v", dec)
	}
}

func TestSimpleDecider_DeterministicGivenInputs(t *testing.T) {
	v := fakeView{"881f05975dfffff": 2.0}
	d1 := New(testConfig())
	d2 := New(testConfig())

	q := adaptive.Query{Op: "cell", Cell: "881f05975dfffff", Cells: 150, Duration: time.Millisecond}
	dec1, r1 := d1.Decide(q, v)
	dec2, r2 := d2.Decide(q, v)

	if dec1 != dec2 || r1 != r2 {
		t.Fatalf("decisions should be identical; got %+v/%s vs %+v/%s", dec1, r1, dec2, r2)
	}
}

func TestSimpleDecider_NilViewIsCold(t *testing.T) {
	d := New(testConfig())
	dec, _ := d.Decide(adaptive.Query{Op: "cell", Cell: "881f05975dfffff", Cells: 400}, nil)
	if dec.Verdict != adaptive.VerdictAdmit || dec.Tier != "cold" {
		t.Fatalf("nil view should score cold but still admit on size, got %+v", dec)
	}
}
