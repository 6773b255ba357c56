// Package advisory models the optional LLM-backed review layer as a
// one-way consumer of assembled recommendations. An advisor may attach
// alternate phrasing and extra risk flags; it can never alter the
// action, the scale percentage, or guardrail state. When the advisor is
// unavailable the output is identical to the engine's.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/scalepilot/scalepilot/internal/domain"
)

// Annotation is everything an advisor is allowed to contribute.
type Annotation struct {
	AudienceID string   `json:"audience_id"`
	Notes      []string `json:"notes,omitempty"`
	ExtraRisks []string `json:"extra_risks,omitempty"`
}

// Advisor reviews a single recommendation.
type Advisor interface {
	Review(ctx context.Context, rec domain.Recommendation) (Annotation, error)
}

// Noop is the fallback advisor: structured output identical to the input.
type Noop struct{}

func (Noop) Review(_ context.Context, rec domain.Recommendation) (Annotation, error) {
	return Annotation{AudienceID: rec.AudienceID}, nil
}

// Annotate runs the advisor over a result in place. Advisor failures are
// logged and skipped; the engine's decision stands either way.
func Annotate(ctx context.Context, adv Advisor, log zerolog.Logger, result *domain.RunResult) {
	if adv == nil {
		return
	}
	for i := range result.Recommendations {
		rec := result.Recommendations[i]
		ann, err := adv.Review(ctx, rec)
		if err != nil {
			log.Warn().Err(err).Str("audience_id", rec.AudienceID).Msg("advisory review skipped")
			continue
		}
		result.Recommendations[i].AdvisoryNotes = append(result.Recommendations[i].AdvisoryNotes, ann.Notes...)
		result.Recommendations[i].Risks = append(result.Recommendations[i].Risks, ann.ExtraRisks...)
	}
}

// Client calls an external advisory service over HTTP, behind a circuit
// breaker so a degraded service cannot stall scoring runs.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds an advisory client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "advisory",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (c *Client) Review(ctx context.Context, rec domain.Recommendation) (Annotation, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.review(ctx, rec)
	})
	if err != nil {
		return Annotation{}, err
	}
	return out.(Annotation), nil
}

func (c *Client) review(ctx context.Context, rec domain.Recommendation) (Annotation, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return Annotation{}, fmt.Errorf("encode recommendation: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/review", bytes.NewReader(body))
	if err != nil {
		return Annotation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Annotation{}, fmt.Errorf("advisory request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Annotation{}, fmt.Errorf("advisory returned status %d", resp.StatusCode)
	}

	var ann Annotation
	if err := json.NewDecoder(resp.Body).Decode(&ann); err != nil {
		return Annotation{}, fmt.Errorf("decode advisory response: %w", err)
	}
	return ann, nil
}
