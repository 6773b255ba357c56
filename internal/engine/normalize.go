package engine

import (
	"math"

	"github.com/scalepilot/scalepilot/internal/config"
	"github.com/scalepilot/scalepilot/internal/domain"
)

// normalize rescales one snapshot against the run benchmarks. Every
// division is guarded: a non-positive denominator leaves the value at
// zero (or, for ROAS, marks it undefined) rather than producing NaN.
func normalize(cfg *config.EngineConfig, bm *domain.Benchmarks, snap domain.MetricSnapshot) domain.NormalizedMetrics {
	nm := domain.NormalizedMetrics{}
	if bm.AvgROAS > 0 {
		nm.ROAS = snap.ROAS / bm.AvgROAS
		nm.ROASDefined = true
	}
	if bm.MedianSpend > 0 {
		nm.Spend = snap.Spend / bm.MedianSpend
	}
	if bm.AvgCVR > 0 {
		nm.CVR = snap.CVR / bm.AvgCVR
	}
	nm.VolumeScore = volumeScore(snap.Purchases, cfg.VolumeSaturation)
	return nm
}

// volumeScore maps purchase count onto [0,1] with a log curve that
// saturates at the configured count, so volume is rewarded without a
// single outlier audience dominating.
func volumeScore(purchases, saturation int) float64 {
	if purchases <= 0 {
		return 0
	}
	score := math.Log1p(float64(purchases)) / math.Log1p(float64(saturation))
	return math.Min(1.0, score)
}

// compositeScore combines the normalized metrics under the configured
// weights. The score ranks audiences for display and for the budget-cap
// downgrade order; the decision matrix never reads it.
func compositeScore(w config.ScoreWeights, nm domain.NormalizedMetrics) float64 {
	return w.ROAS*nm.ROAS + w.Spend*nm.Spend + w.CVR*nm.CVR + w.Volume*nm.VolumeScore
}
