package engine

import (
	"math"
	"sort"

	"github.com/scalepilot/scalepilot/internal/config"
	"github.com/scalepilot/scalepilot/internal/domain"
)

// classifyTrend derives a trend state from the ordered daily history.
// declineSlope is the effective (type-adjusted) decline magnitude.
// Classification priority: volatile, improving, declining, stable.
// Fewer than the minimum history days short-circuits to stable with the
// ShortHistory flag set; direction calls need data they do not have.
func classifyTrend(cfg config.TrendConfig, declineSlope float64, daily []domain.MetricSnapshot) domain.TrendSignals {
	days := append([]domain.MetricSnapshot(nil), daily...)
	sort.Slice(days, func(i, j int) bool { return days[i].CapturedAt.Before(days[j].CapturedAt) })

	sig := domain.TrendSignals{State: domain.TrendStable, Days: len(days)}
	if len(days) < cfg.MinHistoryDay {
		sig.ShortHistory = true
		return sig
	}

	roas := make([]float64, len(days))
	var cpa, spend []float64
	for i, d := range days {
		roas[i] = d.ROAS
		if d.CPA > 0 {
			cpa = append(cpa, d.CPA)
		}
		spend = append(spend, d.Spend)
	}

	sig.ROASSlope = slope(roas)
	sig.CPAVolatility = coefficientOfVariation(cpa)
	if first := spend[0]; first > 0 {
		sig.SpendAcceleration = (spend[len(spend)-1] - first) / first
	}

	switch {
	case sig.CPAVolatility > cfg.VolatilityCV:
		sig.State = domain.TrendVolatile
	case sig.ROASSlope > cfg.ImproveSlope:
		sig.State = domain.TrendImproving
	case sig.ROASSlope < -declineSlope:
		sig.State = domain.TrendDeclining
	}
	return sig
}

// slope is the least-squares slope of the series against its day index.
func slope(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}
	xMean := (n - 1) / 2
	var yMean float64
	for _, y := range series {
		yMean += y
	}
	yMean /= n

	var num, den float64
	for i, y := range series {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// coefficientOfVariation is stddev/mean, 0 when fewer than 2 samples or
// the mean is not positive.
func coefficientOfVariation(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	var mean float64
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))
	if mean <= 0 {
		return 0
	}
	var ss float64
	for _, v := range series {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(len(series)-1))
	return std / mean
}
