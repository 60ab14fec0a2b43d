// Package metricswrap decorates a hotness tracker with gauge updates
// and sampled logging of cells crossing the hot threshold.
package metricswrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	xx "github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/hotness"
	mylog "github.com/spatialkit/h3-boundary/internal/logger"
)

type Sizer interface{ Size() int }

type WithMetrics struct {
	inner hotness.Interface
	tier  string
	log   zerolog.Logger

	hotThreshold float64
	logSample    float64
}

var _ hotness.Interface = (*WithMetrics)(nil)

func New(inner hotness.Interface, tier string) *WithMetrics {
	if tier == "" {
		tier = "tracked"
	}
	return &WithMetrics{
		inner:        inner,
		tier:         tier,
		log:          mylog.Build(mylog.Config{Level: "info", Component: "hotness"}, nil),
		hotThreshold: getenvFloat("HOT_THRESHOLD", 0),
		logSample:    getenvFloat("LOG_HOTNESS_SAMPLE", 0.01),
	}
}

func (w *WithMetrics) Inc(cell string) {
	w.inner.Inc(cell)
	if w.hotThreshold > 0 {
		score := w.inner.Score(cell)
		if score >= w.hotThreshold && sampled(w.logSample, cell) {
			w.log.Info().
				Str("event", "hotness_threshold").
				Float64("score", score).
				Str("tier", w.tier).
				Str("cell_hash", fmt.Sprintf("%08x", xx.Sum64String(cell))).
				Msg("hot cell above threshold")
		}
	}
	w.publishSize()
}

func (w *WithMetrics) Score(cell string) float64 {
	return w.inner.Score(cell)
}

func (w *WithMetrics) Reset(cells ...string) {
	w.inner.Reset(cells...)
	w.publishSize()
}

func (w *WithMetrics) publishSize() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotKeysGauge(w.tier, float64(s.Size()))
	}
}

func getenvFloat(k string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// sampled keeps a hash-stable fraction of cells, so a given cell either
// always logs or never does.
func sampled(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000 // 0.01 => 100/10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	return xx.Sum64String(key)%denom < threshold
}
