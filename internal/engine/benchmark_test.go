package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalepilot/scalepilot/internal/config"
	"github.com/scalepilot/scalepilot/internal/domain"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func audienceInput(id string, spend float64, purchases int, roas, cvr float64) domain.AudienceInput {
	return domain.AudienceInput{
		Profile: domain.AudienceProfile{
			AudienceID: id,
			Name:       id,
			Type:       domain.AudienceInterest,
			LaunchedAt: testNow.AddDate(0, 0, -10),
		},
		Latest: domain.MetricSnapshot{
			AudienceID: id,
			Window:     domain.Window7d,
			Spend:      spend,
			Purchases:  purchases,
			ROAS:       roas,
			CVR:        cvr,
			CapturedAt: testNow,
		},
	}
}

func TestNoiseFilter(t *testing.T) {
	cfg := config.DefaultEngineConfig().Noise

	cases := []struct {
		name     string
		input    domain.AudienceInput
		eligible bool
		reasons  int
	}{
		{"clears all floors", audienceInput("a", 5000, 10, 1.0, 0.02), true, 0},
		{"spend below floor", audienceInput("a", 1000, 10, 1.0, 0.02), false, 1},
		{"purchases below floor", audienceInput("a", 5000, 1, 1.0, 0.02), false, 1},
		{"everything below floor", audienceInput("a", 100, 0, 0, 0), false, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reasons := noiseFilter(cfg, tc.input, testNow)
			assert.Equal(t, tc.eligible, ok)
			assert.Len(t, reasons, tc.reasons)
			for _, r := range reasons {
				assert.Contains(t, r, "insufficient data")
			}
		})
	}
}

func TestNoiseFilterAge(t *testing.T) {
	cfg := config.DefaultEngineConfig().Noise
	in := audienceInput("a", 5000, 10, 1.0, 0.02)
	in.Profile.LaunchedAt = testNow.Add(-12 * time.Hour)

	ok, reasons := noiseFilter(cfg, in, testNow)
	assert.False(t, ok)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "age")
}

func TestComputeBenchmarksSimpleMean(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	eligible := []domain.AudienceInput{
		audienceInput("a", 5000, 10, 1.6, 0.02),
		audienceInput("b", 8000, 8, 0.5, 0.01),
		audienceInput("c", 4000, 5, 0.9, 0.015),
	}

	bm, err := computeBenchmarks(cfg, eligible)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, bm.AvgROAS, 1e-9)
	assert.Equal(t, 5000.0, bm.MedianSpend)
	assert.InDelta(t, 0.015, bm.AvgCVR, 1e-9)
	assert.Equal(t, cfg.TargetCPA, bm.TargetCPA)
	assert.Equal(t, 3, bm.Eligible)
}

func TestComputeBenchmarksWeightedMean(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.BenchmarkMean = config.BenchmarkMeanWeighted
	eligible := []domain.AudienceInput{
		audienceInput("a", 9000, 10, 2.0, 0.02),
		audienceInput("b", 1000, 8, 1.0, 0.01),
	}

	bm, err := computeBenchmarks(cfg, eligible)
	require.NoError(t, err)
	// (2.0*9000 + 1.0*1000) / 10000
	assert.InDelta(t, 1.9, bm.AvgROAS, 1e-9)
}

func TestComputeBenchmarksIgnoresNonPositiveROAS(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	eligible := []domain.AudienceInput{
		audienceInput("a", 5000, 10, 1.5, 0.02),
		audienceInput("b", 5000, 8, 0, 0),
	}

	bm, err := computeBenchmarks(cfg, eligible)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, bm.AvgROAS, 1e-9)
}

func TestComputeBenchmarksRequiresTwoAudiences(t *testing.T) {
	cfg := config.DefaultEngineConfig()

	_, err := computeBenchmarks(cfg, []domain.AudienceInput{audienceInput("a", 5000, 10, 1.5, 0.02)})
	assert.ErrorIs(t, err, ErrNoBenchmark)

	_, err = computeBenchmarks(cfg, nil)
	assert.ErrorIs(t, err, ErrNoBenchmark)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 7.0, median([]float64{7}))
	assert.Equal(t, 5.0, median([]float64{8, 4, 5}))
	assert.Equal(t, 4.5, median([]float64{8, 4, 5, 1}))
}
