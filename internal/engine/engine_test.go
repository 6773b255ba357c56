package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalepilot/scalepilot/internal/config"
	"github.com/scalepilot/scalepilot/internal/domain"
	"github.com/scalepilot/scalepilot/internal/guardstate"
)

// fullAudience builds an audience with a 7d summary snapshot and a
// matching daily history.
func fullAudience(id string, spend float64, purchases int, roas, cvr float64, dailyROAS, dailyCPA []float64, budget float64) domain.AudienceInput {
	in := audienceInput(id, spend, purchases, roas, cvr)
	in.Profile.CurrentBudget = budget
	for i := range dailyROAS {
		in.Daily = append(in.Daily, domain.MetricSnapshot{
			AudienceID: id,
			Window:     domain.Window1d,
			ROAS:       dailyROAS[i],
			CPA:        dailyCPA[i],
			Spend:      spend / 7,
			CapturedAt: testNow.AddDate(0, 0, i-len(dailyROAS)),
		})
	}
	return in
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newTestEngine(t *testing.T, store guardstate.Store, at time.Time) *Engine {
	t.Helper()
	eng, err := New(config.DefaultEngineConfig(), store, WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	return eng
}

func scenarioInput() RunInput {
	return RunInput{
		AccountID: "acct-1",
		Audiences: []domain.AudienceInput{
			// Winner on a stable trend: roas 1.6 vs account average 1.0.
			fullAudience("aud-a", 5000, 10, 1.6, 0.02, flat(1.6, 3), flat(500, 3), 1000),
			// Loser on a declining trend, above the pause-eligible floor.
			fullAudience("aud-b", 8000, 8, 0.5, 0.01, []float64{0.8, 0.65, 0.5}, []float64{900, 950, 1000}, 1000),
			// Average, stable.
			fullAudience("aud-c", 4000, 5, 0.9, 0.015, flat(0.9, 3), flat(500, 3), 1000),
		},
	}
}

func recByAudience(t *testing.T, result *domain.RunResult, id string) domain.Recommendation {
	t.Helper()
	for _, rec := range result.Recommendations {
		if rec.AudienceID == id {
			return rec
		}
	}
	t.Fatalf("no recommendation for %s", id)
	return domain.Recommendation{}
}

func TestRunWinnerStableScales(t *testing.T) {
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	result, err := eng.Run(context.Background(), scenarioInput())
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 3)
	require.NotNil(t, result.Benchmarks)
	assert.InDelta(t, 1.0, result.Benchmarks.AvgROAS, 1e-9)

	rec := recByAudience(t, result, "aud-a")
	assert.Equal(t, domain.ActionScale, rec.Action)
	require.NotNil(t, rec.ScalePercentage)
	assert.Equal(t, 25, *rec.ScalePercentage)
	assert.Equal(t, domain.BucketWinner, rec.Bucket)
	assert.Equal(t, domain.TrendStable, rec.Trend)
	assert.Equal(t, domain.ConfidenceHigh, rec.Confidence)
	assert.Contains(t, rec.Reasons[0], "ROAS 1.60x account average")
}

func TestRunLoserDecliningPauses(t *testing.T) {
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	result, err := eng.Run(context.Background(), scenarioInput())
	require.NoError(t, err)

	rec := recByAudience(t, result, "aud-b")
	assert.Equal(t, domain.ActionPause, rec.Action)
	assert.Nil(t, rec.ScalePercentage)
	assert.Equal(t, domain.BucketLoser, rec.Bucket)
	assert.Equal(t, domain.TrendDeclining, rec.Trend)
	assert.Equal(t, domain.ConfidenceMedium, rec.Confidence)
}

func TestRunAverageStableHolds(t *testing.T) {
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	result, err := eng.Run(context.Background(), scenarioInput())
	require.NoError(t, err)

	rec := recByAudience(t, result, "aud-c")
	assert.Equal(t, domain.ActionHold, rec.Action)
	assert.Nil(t, rec.ScalePercentage)
	assert.Equal(t, domain.BucketAverage, rec.Bucket)
}

func TestRunNoiseFilteredNeverScalesOrPauses(t *testing.T) {
	in := scenarioInput()
	// Below the spend floor with an outstanding ROAS: still only HOLD.
	in.Audiences = append(in.Audiences, fullAudience("aud-noisy", 1000, 10, 5.0, 0.05, flat(5.0, 3), flat(100, 3), 1000))
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	result, err := eng.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 4)

	rec := recByAudience(t, result, "aud-noisy")
	assert.Equal(t, domain.ActionHold, rec.Action)
	assert.Equal(t, domain.ConfidenceLow, rec.Confidence)
	require.NotEmpty(t, rec.Reasons)
	assert.Contains(t, rec.Reasons[0], "insufficient data")
}

func TestRunCooldownBlocksSecondScale(t *testing.T) {
	store := guardstate.NewMemory()

	first, err := newTestEngine(t, store, testNow).Run(context.Background(), scenarioInput())
	require.NoError(t, err)
	require.Equal(t, domain.ActionScale, recByAudience(t, first, "aud-a").Action)

	// Ten hours later, same winner, same store: cooldown must hold it.
	second, err := newTestEngine(t, store, testNow.Add(10*time.Hour)).Run(context.Background(), scenarioInput())
	require.NoError(t, err)

	rec := recByAudience(t, second, "aud-a")
	assert.Equal(t, domain.ActionHold, rec.Action)
	assert.Nil(t, rec.ScalePercentage)
	assert.Equal(t, domain.ConfidenceLow, rec.Confidence)
	assert.True(t, anyReason(rec.Reasons, "cooldown active until"),
		"expected a cooldown reason, got %v", rec.Reasons)
}

func anyReason(reasons []string, substr string) bool {
	for _, r := range reasons {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestRunCooldownExpires(t *testing.T) {
	store := guardstate.NewMemory()

	_, err := newTestEngine(t, store, testNow).Run(context.Background(), scenarioInput())
	require.NoError(t, err)

	// 49 hours later the 48h cooldown has lapsed; scaling resumes.
	later, err := newTestEngine(t, store, testNow.Add(49*time.Hour)).Run(context.Background(), scenarioInput())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionScale, recByAudience(t, later, "aud-a").Action)
}

func TestRunScalePercentageAlwaysWithinCap(t *testing.T) {
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	result, err := eng.Run(context.Background(), scenarioInput())
	require.NoError(t, err)
	for _, rec := range result.Recommendations {
		if rec.Action != domain.ActionScale {
			assert.Nil(t, rec.ScalePercentage, "scale_percentage must be null for %s", rec.Action)
			continue
		}
		require.NotNil(t, rec.ScalePercentage)
		assert.Greater(t, *rec.ScalePercentage, 0)
		assert.LessOrEqual(t, *rec.ScalePercentage, 25)
	}
}

func TestRunBudgetCapDowngradesLowestScoreFirst(t *testing.T) {
	in := RunInput{
		AccountID: "acct-1",
		Audiences: []domain.AudienceInput{
			fullAudience("aud-d", 6000, 10, 2.0, 0.02, flat(2.0, 3), flat(500, 3), 12000),
			fullAudience("aud-e", 6000, 10, 1.8, 0.02, flat(1.8, 3), flat(500, 3), 12000),
			fullAudience("aud-f", 4000, 5, 0.7, 0.01, flat(0.7, 3), flat(500, 3), 1000),
		},
	}
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	// avg roas 1.5: both d (1.33) and e (1.2) are winners wanting 25% of
	// a 12000 budget each; 6000 total exceeds the 5000 account cap.
	result, err := eng.Run(context.Background(), in)
	require.NoError(t, err)

	recD := recByAudience(t, result, "aud-d")
	recE := recByAudience(t, result, "aud-e")
	assert.Equal(t, domain.ActionScale, recD.Action)
	assert.Equal(t, domain.ActionHold, recE.Action)
	assert.Equal(t, domain.ConfidenceLow, recE.Confidence)

	assert.True(t, anyReason(recE.Reasons, "budget-increase cap"),
		"expected a budget cap reason, got %v", recE.Reasons)
}

func TestRunRetestForQuietScaledAudience(t *testing.T) {
	store := guardstate.NewMemory()
	// aud-x scaled 10 hours ago, then spend collapsed under the floor.
	_, err := store.WriteIfAbsentOrExpired(context.Background(), "aud-x", testNow.Add(-10*time.Hour), 48*time.Hour)
	require.NoError(t, err)

	in := scenarioInput()
	in.Audiences = append(in.Audiences, fullAudience("aud-x", 500, 1, 0.2, 0.001, flat(0.2, 3), flat(900, 3), 1000))
	eng := newTestEngine(t, store, testNow)

	result, err := eng.Run(context.Background(), in)
	require.NoError(t, err)

	rec := recByAudience(t, result, "aud-x")
	assert.Equal(t, domain.ActionRetest, rec.Action)
	assert.Nil(t, rec.ScalePercentage)
	assert.Equal(t, domain.ConfidenceLow, rec.Confidence)
}

func TestRunBenchmarkUnavailableHoldsEverything(t *testing.T) {
	in := RunInput{
		AccountID: "acct-1",
		Audiences: []domain.AudienceInput{
			fullAudience("aud-a", 5000, 10, 1.6, 0.02, flat(1.6, 3), flat(500, 3), 1000),
		},
	}
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	result, err := eng.Run(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warning)
	assert.Nil(t, result.Benchmarks)
	require.Len(t, result.Recommendations, 1)

	rec := result.Recommendations[0]
	assert.Equal(t, domain.ActionHold, rec.Action)
	assert.Equal(t, domain.ConfidenceLow, rec.Confidence)
	assert.Equal(t, domain.BucketUnknown, rec.Bucket)
}

func TestRunIdempotentWithFreshState(t *testing.T) {
	in := scenarioInput()

	first, err := newTestEngine(t, guardstate.NewMemory(), testNow).Run(context.Background(), in)
	require.NoError(t, err)
	second, err := newTestEngine(t, guardstate.NewMemory(), testNow).Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, second.Recommendations, len(first.Recommendations))
	for i := range first.Recommendations {
		a, b := first.Recommendations[i], second.Recommendations[i]
		assert.Equal(t, a.AudienceID, b.AudienceID)
		assert.Equal(t, a.Action, b.Action)
		assert.Equal(t, a.Bucket, b.Bucket)
		assert.Equal(t, a.Trend, b.Trend)
		assert.Equal(t, a.Confidence, b.Confidence)
		assert.Equal(t, a.CompositeScore, b.CompositeScore)
		assert.Equal(t, a.Reasons, b.Reasons)
	}
}

func TestRunRankedByCompositeScore(t *testing.T) {
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	result, err := eng.Run(context.Background(), scenarioInput())
	require.NoError(t, err)
	for i := 1; i < len(result.Recommendations); i++ {
		assert.GreaterOrEqual(t,
			result.Recommendations[i-1].CompositeScore,
			result.Recommendations[i].CompositeScore,
			"recommendations must be ranked by composite score")
	}
}

// conflictStore admits the cooldown read but refuses the write, as a
// concurrent run would.
type conflictStore struct {
	*guardstate.Memory
}

func (conflictStore) WriteIfAbsentOrExpired(context.Context, string, time.Time, time.Duration) (bool, error) {
	return false, nil
}

func TestRunConcurrentScaleConflictDowngrades(t *testing.T) {
	eng, err := New(config.DefaultEngineConfig(), conflictStore{guardstate.NewMemory()},
		WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	result, err := eng.Run(context.Background(), scenarioInput())
	require.NoError(t, err)

	rec := recByAudience(t, result, "aud-a")
	assert.Equal(t, domain.ActionHold, rec.Action)
	assert.Equal(t, domain.ConfidenceLow, rec.Confidence)
}

func TestEnforcePauseFloor(t *testing.T) {
	eng := newTestEngine(t, guardstate.NewMemory(), testNow)

	// Even if upstream logic proposed a pause under the noise floor, the
	// guardrail rejects it.
	c := &candidate{
		input:  audienceInput("aud-tiny", 1000, 1, 0.2, 0.001),
		action: domain.ActionPause,
		bucket: domain.BucketLoser,
	}
	require.NoError(t, eng.enforceGuardrails(context.Background(), testNow, []*candidate{c}))
	assert.Equal(t, domain.ActionHold, c.action)
	assert.True(t, c.downgraded)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Weights.ROAS = 0.9

	_, err := New(cfg, guardstate.NewMemory())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}
