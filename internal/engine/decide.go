package engine

import (
	"github.com/scalepilot/scalepilot/internal/config"
	"github.com/scalepilot/scalepilot/internal/domain"
)

// classifyBucket maps normalized ROAS onto a performance bucket, with
// the cut points scaled by the audience type's threshold multiplier.
// Undefined normalized ROAS bypasses bucketing entirely.
func classifyBucket(cfg config.BucketConfig, mod config.TypeModifier, nm domain.NormalizedMetrics) domain.PerformanceBucket {
	if !nm.ROASDefined {
		return domain.BucketUnknown
	}
	winner := cfg.WinnerThreshold * mod.BucketThresholdMult
	loser := cfg.LoserThreshold * mod.BucketThresholdMult
	switch {
	case nm.ROAS >= winner:
		return domain.BucketWinner
	case nm.ROAS < loser:
		return domain.BucketLoser
	default:
		return domain.BucketAverage
	}
}

// decision is the matrix output before guardrails.
type decision struct {
	Action   domain.Action
	ScalePct int
}

// decide is the deterministic (bucket, trend) lookup. Unlisted
// combinations fall through to HOLD; the conservative action is the only
// acceptable default.
func decide(cfg *config.EngineConfig, mod config.TypeModifier, bucket domain.PerformanceBucket, trend domain.TrendState, spend float64) decision {
	switch bucket {
	case domain.BucketWinner:
		switch trend {
		case domain.TrendStable:
			return decision{Action: domain.ActionScale, ScalePct: baseScalePct(cfg.Guardrails, mod, 0)}
		case domain.TrendImproving:
			// Scale a notch below the stable default while the
			// improvement is still confirming.
			return decision{Action: domain.ActionScale, ScalePct: baseScalePct(cfg.Guardrails, mod, cfg.Guardrails.ImprovingScaleHaircut)}
		default:
			return decision{Action: domain.ActionHold}
		}
	case domain.BucketAverage:
		if trend == domain.TrendDeclining {
			return decision{Action: domain.ActionPause}
		}
		return decision{Action: domain.ActionHold}
	case domain.BucketLoser:
		if spend >= cfg.Guardrails.PauseMinSpend*mod.PauseSpendMult {
			return decision{Action: domain.ActionPause}
		}
		// Losing but not yet pause-eligible: the spend floor keeps us
		// from pausing an audience that barely cleared the noise filter.
		return decision{Action: domain.ActionHold}
	default:
		return decision{Action: domain.ActionHold}
	}
}

// baseScalePct resolves the scale percentage for one audience type:
// global default plus the type's bump, clamped to the type ceiling when
// one is set. The guardrail stage applies the global clamp afterwards.
func baseScalePct(g config.GuardrailConfig, mod config.TypeModifier, haircut int) int {
	pct := g.MaxScalePct + mod.ScalePctBump - haircut
	if mod.MaxScalePct > 0 && pct > mod.MaxScalePct {
		pct = mod.MaxScalePct
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
