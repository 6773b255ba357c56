// Package config defines the engine configuration surface: noise floors,
// bucket thresholds, trend thresholds, score weights, guardrail caps and
// audience-type modifiers. A run receives one immutable EngineConfig; no
// stage reads ambient state.
package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scalepilot/scalepilot/internal/domain"
)

// BenchmarkMean selects how the account ROAS/CVR benchmarks average
// across eligible audiences.
const (
	BenchmarkMeanSimple   = "simple"
	BenchmarkMeanWeighted = "weighted"
)

// EngineConfig is the full configuration for one scoring run.
type EngineConfig struct {
	Noise      NoiseConfig     `yaml:"noise" json:"noise"`
	Buckets    BucketConfig    `yaml:"buckets" json:"buckets"`
	Trend      TrendConfig     `yaml:"trend" json:"trend"`
	Weights    ScoreWeights    `yaml:"score_weights" json:"score_weights"`
	Guardrails GuardrailConfig `yaml:"guardrails" json:"guardrails"`
	Modifiers  ModifierConfig  `yaml:"modifiers" json:"modifiers"`

	// BenchmarkMean is "simple" or "weighted". Simple is the default:
	// a spend-weighted mean lets large audiences dominate their own
	// benchmark.
	BenchmarkMean string `yaml:"benchmark_mean" json:"benchmark_mean"`

	// TargetCPA is configured per account, never derived from snapshots.
	TargetCPA float64 `yaml:"target_cpa" json:"target_cpa"`

	// VolumeSaturation is the purchase count at which the purchase
	// volume score reaches 1.0.
	VolumeSaturation int `yaml:"volume_saturation" json:"volume_saturation"`
}

// NoiseConfig is the eligibility floor below which metrics are treated
// as statistically unreliable.
type NoiseConfig struct {
	MinSpend     float64 `yaml:"min_spend" json:"min_spend"`
	MinPurchases int     `yaml:"min_purchases" json:"min_purchases"`
	MinAgeDays   int     `yaml:"min_age_days" json:"min_age_days"`
}

// BucketConfig holds the normalized-ROAS cut points.
type BucketConfig struct {
	WinnerThreshold float64 `yaml:"winner_threshold" json:"winner_threshold"` // >= => WINNER
	LoserThreshold  float64 `yaml:"loser_threshold" json:"loser_threshold"`  // <  => LOSER
}

// TrendConfig holds the trend classifier thresholds. DeclineSlope is a
// positive magnitude; a ROAS slope below -DeclineSlope reads as declining.
type TrendConfig struct {
	ImproveSlope  float64 `yaml:"improve_slope" json:"improve_slope"`
	DeclineSlope  float64 `yaml:"decline_slope" json:"decline_slope"`
	VolatilityCV  float64 `yaml:"volatility_cv" json:"volatility_cv"` // CPA coefficient of variation
	MinHistoryDay int     `yaml:"min_history_days" json:"min_history_days"`
}

// ScoreWeights are the composite score weights. They must sum to 1.0;
// the score ranks audiences for display and budget-cap ordering only and
// never drives the decision matrix.
type ScoreWeights struct {
	ROAS   float64 `yaml:"roas" json:"roas"`
	Spend  float64 `yaml:"spend" json:"spend"`
	CVR    float64 `yaml:"cvr" json:"cvr"`
	Volume float64 `yaml:"volume" json:"volume"`
}

// GuardrailConfig holds the hard policy limits of the final clamp stage.
type GuardrailConfig struct {
	MaxScalePct   int `yaml:"max_scale_pct" json:"max_scale_pct"`  // allowed range 20..30
	CooldownHours int `yaml:"cooldown_hours" json:"cooldown_hours"` // allowed range 48..72

	// ImprovingScaleHaircut is subtracted from the scale percentage for
	// WINNER/IMPROVING, which scales slightly less aggressively than
	// WINNER/STABLE while the improvement is still confirming.
	ImprovingScaleHaircut int `yaml:"improving_scale_haircut" json:"improving_scale_haircut"`

	// PauseMinSpend is the pause-eligible spend floor. It sits above the
	// noise floor so an audience is never paused the moment it barely
	// clears minimum spend.
	PauseMinSpend float64 `yaml:"pause_min_spend" json:"pause_min_spend"`

	// MaxDailyBudgetIncrease caps the aggregate budget increase across
	// all SCALE actions in one account per run.
	MaxDailyBudgetIncrease float64 `yaml:"max_daily_budget_increase" json:"max_daily_budget_increase"`
}

// TypeModifier adjusts thresholds and scale limits for one audience type.
// Multipliers default to 1.0 (no effect); MaxScalePct of 0 inherits the
// global cap.
type TypeModifier struct {
	BucketThresholdMult  float64 `yaml:"bucket_threshold_mult" json:"bucket_threshold_mult"`
	DeclineThresholdMult float64 `yaml:"decline_threshold_mult" json:"decline_threshold_mult"`
	PauseSpendMult       float64 `yaml:"pause_spend_mult" json:"pause_spend_mult"`
	ScalePctBump         int     `yaml:"scale_pct_bump" json:"scale_pct_bump"`
	MaxScalePct          int     `yaml:"max_scale_pct" json:"max_scale_pct"`
}

// ModifierConfig keys type modifiers by audience type, with lookalikes
// split by percentage bucket.
type ModifierConfig struct {
	Broad         TypeModifier `yaml:"broad" json:"broad"`
	Interest      TypeModifier `yaml:"interest" json:"interest"`
	LookalikeLow  TypeModifier `yaml:"lookalike_low" json:"lookalike_low"`
	LookalikeHigh TypeModifier `yaml:"lookalike_high" json:"lookalike_high"`
	Custom        TypeModifier `yaml:"custom" json:"custom"`

	// LookalikeLowPct is the boundary between the tight low-percentage
	// lookalikes and the broader high-percentage ones.
	LookalikeLowPct float64 `yaml:"lookalike_low_pct" json:"lookalike_low_pct"`
}

// ForProfile resolves the modifier for one audience profile. Unknown
// types get the neutral modifier.
func (m ModifierConfig) ForProfile(p domain.AudienceProfile) TypeModifier {
	switch p.Type {
	case domain.AudienceBroad:
		return m.Broad
	case domain.AudienceInterest:
		return m.Interest
	case domain.AudienceCustom:
		return m.Custom
	case domain.AudienceLookalike:
		if p.LookalikePct != nil && *p.LookalikePct <= m.LookalikeLowPct {
			return m.LookalikeLow
		}
		return m.LookalikeHigh
	default:
		return neutralModifier()
	}
}

func neutralModifier() TypeModifier {
	return TypeModifier{BucketThresholdMult: 1.0, DeclineThresholdMult: 1.0, PauseSpendMult: 1.0}
}

// DefaultEngineConfig returns the documented production defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Noise: NoiseConfig{
			MinSpend:     3000.0,
			MinPurchases: 2,
			MinAgeDays:   2,
		},
		Buckets: BucketConfig{
			WinnerThreshold: 1.2,
			LoserThreshold:  0.9,
		},
		Trend: TrendConfig{
			ImproveSlope:  0.05,
			DeclineSlope:  0.05,
			VolatilityCV:  0.3,
			MinHistoryDay: 3,
		},
		Weights: ScoreWeights{
			ROAS:   0.5,
			Spend:  0.2,
			CVR:    0.2,
			Volume: 0.1,
		},
		Guardrails: GuardrailConfig{
			MaxScalePct:            25,
			CooldownHours:          48,
			ImprovingScaleHaircut:  5,
			PauseMinSpend:          6000.0,
			MaxDailyBudgetIncrease: 5000.0,
		},
		Modifiers: ModifierConfig{
			// Broad audiences swing with reach; widen buckets and slow
			// pause triggers.
			Broad: TypeModifier{
				BucketThresholdMult:  0.9,
				DeclineThresholdMult: 1.5,
				PauseSpendMult:       1.5,
			},
			// Interest audiences get less patience on a decline.
			Interest: TypeModifier{
				BucketThresholdMult:  1.0,
				DeclineThresholdMult: 0.75,
				PauseSpendMult:       1.0,
			},
			// Tight lookalikes scale faster but with a lower ceiling.
			LookalikeLow: TypeModifier{
				BucketThresholdMult:  1.05,
				DeclineThresholdMult: 1.0,
				PauseSpendMult:       1.0,
				ScalePctBump:         5,
				MaxScalePct:          22,
			},
			LookalikeHigh: neutralModifier(),
			Custom: TypeModifier{
				BucketThresholdMult:  1.0,
				DeclineThresholdMult: 1.0,
				PauseSpendMult:       1.0,
				MaxScalePct:          15,
			},
			LookalikeLowPct: 2.0,
		},
		BenchmarkMean:    BenchmarkMeanSimple,
		TargetCPA:        1500.0,
		VolumeSaturation: 50,
	}
}

// Load reads a yaml file over the defaults and validates the result.
func Load(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const weightTolerance = 1e-6

// Validate rejects configurations that must never reach a run. Invalid
// weights or caps are a load-time failure, not a runtime one.
func (c *EngineConfig) Validate() error {
	if c.Noise.MinSpend < 0 || c.Noise.MinPurchases < 0 || c.Noise.MinAgeDays < 0 {
		return fmt.Errorf("config: noise floors must be non-negative")
	}
	if c.Buckets.LoserThreshold <= 0 || c.Buckets.WinnerThreshold <= c.Buckets.LoserThreshold {
		return fmt.Errorf("config: bucket thresholds must satisfy 0 < loser < winner (got loser=%.3f winner=%.3f)",
			c.Buckets.LoserThreshold, c.Buckets.WinnerThreshold)
	}
	if c.Trend.ImproveSlope <= 0 || c.Trend.DeclineSlope <= 0 || c.Trend.VolatilityCV <= 0 {
		return fmt.Errorf("config: trend thresholds must be positive")
	}
	if c.Trend.MinHistoryDay < 3 {
		return fmt.Errorf("config: min_history_days must be at least 3, got %d", c.Trend.MinHistoryDay)
	}
	sum := c.Weights.ROAS + c.Weights.Spend + c.Weights.CVR + c.Weights.Volume
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("config: score weights must sum to 1.0, got %.6f", sum)
	}
	if c.Weights.ROAS < 0 || c.Weights.Spend < 0 || c.Weights.CVR < 0 || c.Weights.Volume < 0 {
		return fmt.Errorf("config: score weights must be non-negative")
	}
	if c.Guardrails.MaxScalePct < 20 || c.Guardrails.MaxScalePct > 30 {
		return fmt.Errorf("config: max_scale_pct must be within [20,30], got %d", c.Guardrails.MaxScalePct)
	}
	if c.Guardrails.CooldownHours < 48 || c.Guardrails.CooldownHours > 72 {
		return fmt.Errorf("config: cooldown_hours must be within [48,72], got %d", c.Guardrails.CooldownHours)
	}
	if c.Guardrails.ImprovingScaleHaircut < 0 || c.Guardrails.ImprovingScaleHaircut > c.Guardrails.MaxScalePct {
		return fmt.Errorf("config: improving_scale_haircut must be within [0,max_scale_pct]")
	}
	if c.Guardrails.PauseMinSpend < c.Noise.MinSpend {
		return fmt.Errorf("config: pause_min_spend (%.0f) must not be below min_spend (%.0f)",
			c.Guardrails.PauseMinSpend, c.Noise.MinSpend)
	}
	if c.Guardrails.MaxDailyBudgetIncrease <= 0 {
		return fmt.Errorf("config: max_daily_budget_increase must be positive")
	}
	if c.BenchmarkMean != BenchmarkMeanSimple && c.BenchmarkMean != BenchmarkMeanWeighted {
		return fmt.Errorf("config: benchmark_mean must be %q or %q, got %q",
			BenchmarkMeanSimple, BenchmarkMeanWeighted, c.BenchmarkMean)
	}
	if c.VolumeSaturation < 1 {
		return fmt.Errorf("config: volume_saturation must be at least 1")
	}
	if c.Modifiers.LookalikeLowPct <= 0 {
		return fmt.Errorf("config: lookalike_low_pct must be positive")
	}
	for name, m := range map[string]TypeModifier{
		"broad":          c.Modifiers.Broad,
		"interest":       c.Modifiers.Interest,
		"lookalike_low":  c.Modifiers.LookalikeLow,
		"lookalike_high": c.Modifiers.LookalikeHigh,
		"custom":         c.Modifiers.Custom,
	} {
		if m.BucketThresholdMult <= 0 || m.DeclineThresholdMult <= 0 || m.PauseSpendMult <= 0 {
			return fmt.Errorf("config: modifier %q multipliers must be positive", name)
		}
		if m.MaxScalePct < 0 || m.ScalePctBump < 0 {
			return fmt.Errorf("config: modifier %q scale limits must be non-negative", name)
		}
	}
	return nil
}
