// Package engine implements the deterministic audience decision
// pipeline: benchmarks, noise filtering, normalization, trend
// classification, composite scoring, the decision matrix, audience-type
// modifiers, guardrails and recommendation assembly. Everything up to
// the guardrail stage is a pure function of the run's inputs, so
// audiences are scored in parallel behind the benchmark barrier.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scalepilot/scalepilot/internal/config"
	"github.com/scalepilot/scalepilot/internal/domain"
	"github.com/scalepilot/scalepilot/internal/guardstate"
	"github.com/scalepilot/scalepilot/internal/metrics"
)

// Engine runs account scoring. One Engine is safe for concurrent runs;
// the only shared state is behind the guardstate.Store.
type Engine struct {
	cfg     *config.EngineConfig
	store   guardstate.Store
	metrics *metrics.Set
	log     zerolog.Logger
	now     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(set *metrics.Set) Option {
	return func(e *Engine) { e.metrics = set }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates the configuration and builds an engine. An invalid
// configuration is rejected here, before any run can start.
func New(cfg *config.EngineConfig, store guardstate.Store, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		store: store,
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunInput is one account's worth of audiences, supplied synchronously
// by the ingestion collaborator.
type RunInput struct {
	AccountID string                 `json:"account_id"`
	Audiences []domain.AudienceInput `json:"audiences"`
}

// candidate carries one audience through the pipeline stages.
type candidate struct {
	input        domain.AudienceInput
	eligible     bool
	insufficient bool
	normalized   domain.NormalizedMetrics
	trend        domain.TrendSignals
	bucket       domain.PerformanceBucket
	action       domain.Action
	scalePct     int
	composite    float64
	reasons      []string
	downgraded   bool
	rule         string
}

func (c *candidate) downgrade(to domain.Action, rule, reason string) {
	c.action = to
	c.downgraded = true
	c.rule = rule
	c.reasons = append(c.reasons, reason)
}

// Run scores every audience in the input and returns exactly one
// recommendation per audience. Re-running with the same inputs and
// unchanged guardrail state yields identical output.
func (e *Engine) Run(ctx context.Context, in RunInput) (*domain.RunResult, error) {
	start := time.Now()
	now := e.now()

	cands := make([]*candidate, len(in.Audiences))
	var eligibleInputs []domain.AudienceInput
	for i, aud := range in.Audiences {
		c := &candidate{
			input:  aud,
			bucket: domain.BucketUnknown,
			action: domain.ActionHold,
			trend:  domain.TrendSignals{State: domain.TrendStable},
		}
		ok, noiseReasons := noiseFilter(e.cfg.Noise, aud, now)
		c.eligible = ok
		if !ok {
			c.insufficient = true
			c.reasons = noiseReasons
		} else {
			eligibleInputs = append(eligibleInputs, aud)
		}
		cands[i] = c
	}

	result := &domain.RunResult{AccountID: in.AccountID, GeneratedAt: now}

	// Benchmark barrier: no audience is normalized until the account
	// benchmarks exist.
	bm, err := computeBenchmarks(e.cfg, eligibleInputs)
	if err != nil {
		// BenchmarkUnavailable degrades the whole run to HOLD rather
		// than producing partial or undefined math.
		result.Warning = err.Error()
		for _, c := range cands {
			c.insufficient = true
			c.reasons = append(c.reasons, "account benchmarks unavailable; holding all audiences")
		}
		e.finish(now, start, cands, result)
		return result, nil
	}
	result.Benchmarks = bm

	// Fan out: stages 3-7 are pure per-audience functions of (input, benchmarks).
	var wg sync.WaitGroup
	for _, c := range cands {
		if !c.eligible {
			continue
		}
		wg.Add(1)
		go func(c *candidate) {
			defer wg.Done()
			e.score(c, bm)
		}(c)
	}
	wg.Wait()

	if err := e.enforceGuardrails(ctx, now, cands); err != nil {
		return nil, err
	}

	e.finish(now, start, cands, result)
	return result, nil
}

// score runs normalization, trend classification, bucketing and the
// decision matrix for one eligible audience.
func (e *Engine) score(c *candidate, bm *domain.Benchmarks) {
	mod := e.cfg.Modifiers.ForProfile(c.input.Profile)

	c.normalized = normalize(e.cfg, bm, c.input.Latest)
	declineSlope := e.cfg.Trend.DeclineSlope * mod.DeclineThresholdMult
	c.trend = classifyTrend(e.cfg.Trend, declineSlope, c.input.Daily)
	c.composite = compositeScore(e.cfg.Weights, c.normalized)

	if !c.normalized.ROASDefined {
		// Guarded denominator: no bucket, no decision, never a NaN.
		c.insufficient = true
		c.action = domain.ActionHold
		c.reasons = append(c.reasons, "normalization unavailable: account ROAS benchmark is not positive")
		return
	}

	c.bucket = classifyBucket(e.cfg.Buckets, mod, c.normalized)
	d := decide(e.cfg, mod, c.bucket, c.trend.State, c.input.Latest.Spend)
	c.action = d.Action
	c.scalePct = d.ScalePct
	c.reasons = append(c.reasons, c.scoringReasons()...)
}

// finish assembles recommendations in ranking order and records run
// telemetry.
func (e *Engine) finish(now, start time.Time, cands []*candidate, result *domain.RunResult) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].composite != cands[j].composite {
			return cands[i].composite > cands[j].composite
		}
		return cands[i].input.Profile.AudienceID < cands[j].input.Profile.AudienceID
	})

	actions := map[domain.Action]int{}
	for _, c := range cands {
		rec := e.assemble(c, now)
		result.Recommendations = append(result.Recommendations, rec)
		actions[rec.Action]++
		if e.metrics != nil {
			e.metrics.Recommendations.WithLabelValues(string(rec.Action)).Inc()
			if c.downgraded {
				e.metrics.Downgrades.WithLabelValues(c.rule).Inc()
			}
		}
	}
	if e.metrics != nil {
		e.metrics.RunsTotal.Inc()
		e.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}

	e.log.Info().
		Str("account_id", result.AccountID).
		Int("audiences", len(cands)).
		Int("scale", actions[domain.ActionScale]).
		Int("hold", actions[domain.ActionHold]).
		Int("pause", actions[domain.ActionPause]).
		Int("retest", actions[domain.ActionRetest]).
		Dur("elapsed", time.Since(start)).
		Msg("scoring run complete")
}

func (e *Engine) countDowngrade(rule string) {
	if e.metrics != nil {
		e.metrics.Downgrades.WithLabelValues(rule).Inc()
	}
}
