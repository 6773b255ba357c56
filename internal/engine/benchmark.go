package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/scalepilot/scalepilot/internal/config"
	"github.com/scalepilot/scalepilot/internal/domain"
)

// ErrNoBenchmark signals that fewer than two eligible audiences were in
// scope, so account-relative normalization is undefined. Callers degrade
// the run to all-HOLD instead of doing partial math.
var ErrNoBenchmark = errors.New("benchmarks unavailable: fewer than 2 eligible audiences")

// minBenchmarkAudiences is the smallest population an account-relative
// average makes sense for.
const minBenchmarkAudiences = 2

// noiseFilter reports whether an audience's latest snapshot clears the
// statistical noise floor. The returned reasons explain each failed
// check in input order.
func noiseFilter(cfg config.NoiseConfig, in domain.AudienceInput, now time.Time) (bool, []string) {
	var reasons []string
	if in.Latest.Spend < cfg.MinSpend {
		reasons = append(reasons, fmt.Sprintf("insufficient data: spend %.0f below minimum %.0f", in.Latest.Spend, cfg.MinSpend))
	}
	if in.Latest.Purchases < cfg.MinPurchases {
		reasons = append(reasons, fmt.Sprintf("insufficient data: %d purchases below minimum %d", in.Latest.Purchases, cfg.MinPurchases))
	}
	if age := in.Profile.AgeDays(now); age < cfg.MinAgeDays {
		reasons = append(reasons, fmt.Sprintf("insufficient data: audience age %dd below minimum %dd", age, cfg.MinAgeDays))
	}
	return len(reasons) == 0, reasons
}

// computeBenchmarks derives the run's reference values from the eligible
// audiences' latest snapshots. TargetCPA comes from configuration, never
// from the data.
func computeBenchmarks(cfg *config.EngineConfig, eligible []domain.AudienceInput) (*domain.Benchmarks, error) {
	if len(eligible) < minBenchmarkAudiences {
		return nil, ErrNoBenchmark
	}

	var (
		roasSum, roasWeight float64
		cvrSum              float64
		cvrCount            int
		spends              []float64
	)
	for _, in := range eligible {
		snap := in.Latest
		spends = append(spends, snap.Spend)
		if snap.ROAS > 0 {
			switch cfg.BenchmarkMean {
			case config.BenchmarkMeanWeighted:
				roasSum += snap.ROAS * snap.Spend
				roasWeight += snap.Spend
			default:
				roasSum += snap.ROAS
				roasWeight++
			}
		}
		if snap.CVR > 0 {
			cvrSum += snap.CVR
			cvrCount++
		}
	}

	bm := &domain.Benchmarks{
		MedianSpend: median(spends),
		TargetCPA:   cfg.TargetCPA,
		Eligible:    len(eligible),
	}
	if roasWeight > 0 {
		bm.AvgROAS = roasSum / roasWeight
	}
	if cvrCount > 0 {
		bm.AvgCVR = cvrSum / float64(cvrCount)
	}
	return bm, nil
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
