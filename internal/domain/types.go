package domain

import "time"

// Action is the recommended operation for an audience.
type Action string

const (
	ActionScale  Action = "SCALE"
	ActionHold   Action = "HOLD"
	ActionPause  Action = "PAUSE"
	ActionRetest Action = "RETEST"
)

// Confidence expresses how much trust the engine places in a recommendation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// PerformanceBucket classifies normalized ROAS against the account.
type PerformanceBucket string

const (
	BucketWinner  PerformanceBucket = "WINNER"
	BucketAverage PerformanceBucket = "AVERAGE"
	BucketLoser   PerformanceBucket = "LOSER"
	// BucketUnknown is used when normalized ROAS could not be computed.
	BucketUnknown PerformanceBucket = "UNKNOWN"
)

// TrendState classifies short-window performance direction.
type TrendState string

const (
	TrendStable    TrendState = "STABLE"
	TrendImproving TrendState = "IMPROVING"
	TrendDeclining TrendState = "DECLINING"
	TrendVolatile  TrendState = "VOLATILE"
)

// AudienceType distinguishes targeting strategies; each type carries its
// own threshold modifiers.
type AudienceType string

const (
	AudienceBroad     AudienceType = "BROAD"
	AudienceInterest  AudienceType = "INTEREST"
	AudienceLookalike AudienceType = "LOOKALIKE"
	AudienceCustom    AudienceType = "CUSTOM"
)

// SourceQuality ranks the seed signal behind a custom or lookalike audience.
type SourceQuality string

const (
	SourcePurchasers  SourceQuality = "PURCHASERS"
	SourceATC         SourceQuality = "ATC"
	SourceViewContent SourceQuality = "VIEW_CONTENT"
	SourceUnknown     SourceQuality = "UNKNOWN"
)

// Window identifies the aggregation span of a metric snapshot.
type Window string

const (
	Window1d Window = "1d"
	Window3d Window = "3d"
	Window7d Window = "7d"
)

// MetricSnapshot is one audience's observed performance over a window.
// Immutable once captured; one per (audience, window, day).
type MetricSnapshot struct {
	AudienceID string    `json:"audience_id"`
	Window     Window    `json:"window"`
	Spend      float64   `json:"spend"`
	Purchases  int       `json:"purchases"`
	Revenue    float64   `json:"revenue"`
	ROAS       float64   `json:"roas"`
	CPA        float64   `json:"cpa"`
	CTR        float64   `json:"ctr"`
	CVR        float64   `json:"cvr"`
	CapturedAt time.Time `json:"captured_at"`
}

// AudienceProfile is the slow-changing metadata owned by the ingestion
// layer. The engine reads it and never writes it.
type AudienceProfile struct {
	AudienceID    string        `json:"audience_id"`
	Name          string        `json:"name"`
	Type          AudienceType  `json:"type"`
	LookalikePct  *float64      `json:"lookalike_pct,omitempty"`
	SourceQuality SourceQuality `json:"source_quality"`
	LaunchedAt    time.Time     `json:"launched_at"`
	CurrentBudget float64       `json:"current_budget"`
}

// AgeDays is the audience age at the given instant, floored to whole days.
func (p AudienceProfile) AgeDays(now time.Time) int {
	if p.LaunchedAt.IsZero() || now.Before(p.LaunchedAt) {
		return 0
	}
	return int(now.Sub(p.LaunchedAt).Hours() / 24)
}

// AudienceInput bundles everything the engine needs for one audience:
// the latest 7d summary snapshot and the ordered daily history behind it.
type AudienceInput struct {
	Profile AudienceProfile  `json:"profile"`
	Latest  MetricSnapshot   `json:"latest"`
	Daily   []MetricSnapshot `json:"daily"`
}

// Benchmarks are the account-relative reference values for one scoring
// run. Recomputed every run; never persisted.
type Benchmarks struct {
	AvgROAS     float64 `json:"avg_roas"`
	MedianSpend float64 `json:"median_spend"`
	AvgCVR      float64 `json:"avg_cvr"`
	TargetCPA   float64 `json:"target_cpa"`
	// Eligible is the number of audiences that cleared the noise filter
	// and contributed to the averages.
	Eligible int `json:"eligible"`
}

// NormalizedMetrics rescales one audience's raw metrics against the
// run's benchmarks. ROASDefined is false when the ROAS benchmark was not
// positive; consumers must not bucket such audiences.
type NormalizedMetrics struct {
	ROAS        float64 `json:"normalized_roas"`
	ROASDefined bool    `json:"roas_defined"`
	Spend       float64 `json:"normalized_spend"`
	CVR         float64 `json:"normalized_cvr"`
	VolumeScore float64 `json:"purchase_volume_score"`
}

// TrendSignals carries the raw trend measurements alongside the
// classified state, for reasons/risks and audit.
type TrendSignals struct {
	State             TrendState `json:"state"`
	ROASSlope         float64    `json:"roas_slope"`
	CPAVolatility     float64    `json:"cpa_volatility"`
	SpendAcceleration float64    `json:"spend_acceleration"`
	Days              int        `json:"days"`
	ShortHistory      bool       `json:"short_history"`
}

// GuardrailState is the per-audience record mutated across runs. Owned
// exclusively by the guardrail stage.
type GuardrailState struct {
	AudienceID    string    `json:"audience_id"`
	LastScaleAt   time.Time `json:"last_scale_at"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Recommendation is the engine's per-audience output. Created fresh each
// run and never mutated.
type Recommendation struct {
	ID              string            `json:"id"`
	AudienceID      string            `json:"audience_id"`
	AudienceName    string            `json:"audience_name"`
	AudienceType    AudienceType      `json:"audience_type"`
	Action          Action            `json:"action"`
	ScalePercentage *int              `json:"scale_percentage"`
	Confidence      Confidence        `json:"confidence"`
	Bucket          PerformanceBucket `json:"performance_bucket"`
	Trend           TrendState        `json:"trend_state"`
	CompositeScore  float64           `json:"composite_score"`
	Reasons         []string          `json:"reasons"`
	Risks           []string          `json:"risks"`
	// AdvisoryNotes carries optional post-hoc phrasing from the advisory
	// layer. The advisory layer has no write access to anything else.
	AdvisoryNotes []string `json:"advisory_notes,omitempty"`
	// Snapshot echoes the inputs the decision was made from, so every
	// recommendation is reproducible from its own record.
	Snapshot    MetricSnapshot `json:"metrics_snapshot"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// RunResult is the output of one account scoring run.
type RunResult struct {
	AccountID       string           `json:"account_id"`
	Benchmarks      *Benchmarks      `json:"benchmarks,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	// Warning is set when the whole run degraded, e.g. benchmarks were
	// unavailable and every audience fell back to HOLD.
	Warning     string    `json:"warning,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
