package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scalepilot/scalepilot/internal/domain"
)

// budgetSaturationRatio flags audiences whose 7d spend is close to a
// full week of their daily budget.
const budgetSaturationRatio = 0.9

// spendFatigueMultiple flags audiences spending far above the account
// median, where creative fatigue usually shows first.
const spendFatigueMultiple = 2.0

// assemble packages one candidate into the final recommendation. All
// text comes from fixed templates over the stage outputs; there is no
// free-form generation here.
func (e *Engine) assemble(c *candidate, now time.Time) domain.Recommendation {
	rec := domain.Recommendation{
		ID:             uuid.NewString(),
		AudienceID:     c.input.Profile.AudienceID,
		AudienceName:   c.input.Profile.Name,
		AudienceType:   c.input.Profile.Type,
		Action:         c.action,
		Confidence:     c.confidence(),
		Bucket:         c.bucket,
		Trend:          c.trend.State,
		CompositeScore: c.composite,
		Reasons:        append([]string(nil), c.reasons...),
		Risks:          c.buildRisks(),
		Snapshot:       c.input.Latest,
		GeneratedAt:    now,
	}
	if c.action == domain.ActionScale {
		pct := c.scalePct
		rec.ScalePercentage = &pct
	}
	return rec
}

// scoringReasons describes the bucket and trend facts for an audience
// that went through normalization.
func (c *candidate) scoringReasons() []string {
	reasons := []string{
		fmt.Sprintf("ROAS %.2fx account average", c.normalized.ROAS),
	}
	switch c.trend.State {
	case domain.TrendStable:
		reasons = append(reasons, fmt.Sprintf("stable performance last %d days", c.trend.Days))
	case domain.TrendImproving:
		reasons = append(reasons, fmt.Sprintf("improving: ROAS slope +%.3f/day over %d days", c.trend.ROASSlope, c.trend.Days))
	case domain.TrendDeclining:
		reasons = append(reasons, fmt.Sprintf("declining: ROAS slope %.3f/day over %d days", c.trend.ROASSlope, c.trend.Days))
	case domain.TrendVolatile:
		reasons = append(reasons, fmt.Sprintf("volatile: CPA varies %.0f%% around its mean", c.trend.CPAVolatility*100))
	}
	return reasons
}

func (c *candidate) buildRisks() []string {
	var risks []string
	if c.trend.ShortHistory {
		risks = append(risks, fmt.Sprintf("insufficient history: only %d days of daily data", c.trend.Days))
	}
	if c.trend.State == domain.TrendVolatile {
		risks = append(risks, "unstable CPA: results may not repeat day to day")
	}
	if c.normalized.Spend >= spendFatigueMultiple {
		risks = append(risks, fmt.Sprintf("fatigue: spend %.1fx account median", c.normalized.Spend))
	}
	if budget := c.input.Profile.CurrentBudget; budget > 0 {
		ratio := c.input.Latest.Spend / (budget * 7)
		if ratio > budgetSaturationRatio {
			risks = append(risks, fmt.Sprintf("saturation: 7d spend is %.0f%% of weekly budget", ratio*100))
		}
	}
	return risks
}

// confidence grades the recommendation: high only for an extreme bucket
// on a stable trend, medium for directional trends, low whenever the
// data was insufficient, the trend is volatile, or a guardrail changed
// the action.
func (c *candidate) confidence() domain.Confidence {
	if c.insufficient || c.downgraded {
		return domain.ConfidenceLow
	}
	switch c.trend.State {
	case domain.TrendImproving, domain.TrendDeclining:
		return domain.ConfidenceMedium
	case domain.TrendVolatile:
		return domain.ConfidenceLow
	}
	if c.bucket == domain.BucketWinner || c.bucket == domain.BucketLoser {
		return domain.ConfidenceHigh
	}
	return domain.ConfidenceMedium
}
