package guardstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scalepilot/scalepilot/internal/domain"
)

// Redis stores guardrail state in Redis with the cooldown as the key
// TTL, so expiry is enforced by the store itself and SET NX gives the
// atomic write-if-absent the cooldown contract needs.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. Keys are namespaced under prefix
// (default "guardrail" when empty).
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "guardrail"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(audienceID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, audienceID)
}

func (r *Redis) Read(ctx context.Context, audienceID string) (domain.GuardrailState, bool, error) {
	raw, err := r.client.Get(ctx, r.key(audienceID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.GuardrailState{}, false, nil
	}
	if err != nil {
		return domain.GuardrailState{}, false, fmt.Errorf("guardstate read %s: %w", audienceID, err)
	}
	var state domain.GuardrailState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.GuardrailState{}, false, fmt.Errorf("guardstate decode %s: %w", audienceID, err)
	}
	return state, true, nil
}

func (r *Redis) WriteIfAbsentOrExpired(ctx context.Context, audienceID string, now time.Time, cooldown time.Duration) (bool, error) {
	state := domain.GuardrailState{
		AudienceID:    audienceID,
		LastScaleAt:   now,
		CooldownUntil: now.Add(cooldown),
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("guardstate encode %s: %w", audienceID, err)
	}
	ok, err := r.client.SetNX(ctx, r.key(audienceID), payload, cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("guardstate write %s: %w", audienceID, err)
	}
	return ok, nil
}
