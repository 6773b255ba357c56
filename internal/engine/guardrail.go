package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scalepilot/scalepilot/internal/domain"
)

// Guardrail downgrade rules, used as metric labels.
const (
	rulePauseFloor       = "pause_floor"
	ruleScaleClamp       = "scale_clamp"
	ruleCooldown         = "cooldown"
	ruleCooldownConflict = "cooldown_conflict"
	ruleBudgetCap        = "budget_cap"
)

// enforceGuardrails is the final, non-bypassable clamp. It is the only
// stage that touches shared state: the per-audience cooldown store and
// the account-wide budget cap. Guardrail state is written only for scale
// actions that survive every other rule.
func (e *Engine) enforceGuardrails(ctx context.Context, now time.Time, cands []*candidate) error {
	cooldown := time.Duration(e.cfg.Guardrails.CooldownHours) * time.Hour

	for _, c := range cands {
		switch c.action {
		case domain.ActionPause:
			// Pausing under the noise floor is never permitted, even if
			// upstream logic somehow proposed it.
			if c.input.Latest.Spend < e.cfg.Noise.MinSpend {
				c.downgrade(domain.ActionHold, rulePauseFloor,
					fmt.Sprintf("pause rejected: spend %.0f below noise floor %.0f", c.input.Latest.Spend, e.cfg.Noise.MinSpend))
			}
		case domain.ActionScale:
			if c.scalePct > e.cfg.Guardrails.MaxScalePct {
				c.scalePct = e.cfg.Guardrails.MaxScalePct
				c.reasons = append(c.reasons, fmt.Sprintf("scale capped at %d%%", c.scalePct))
				e.countDowngrade(ruleScaleClamp)
			}
			if c.scalePct <= 0 {
				c.downgrade(domain.ActionHold, ruleScaleClamp, "scale percentage resolved to zero")
				continue
			}
			state, ok, err := e.store.Read(ctx, c.input.Profile.AudienceID)
			if err != nil {
				return fmt.Errorf("guardrail read for %s: %w", c.input.Profile.AudienceID, err)
			}
			if ok && now.Before(state.CooldownUntil) {
				c.downgrade(domain.ActionHold, ruleCooldown,
					fmt.Sprintf("cooldown active until %s", state.CooldownUntil.UTC().Format(time.RFC3339)))
			}
		case domain.ActionHold:
			// A noise-filtered audience with a live cooldown scaled
			// recently and then went quiet; that is a retest candidate,
			// not a plain hold.
			if !c.eligible {
				state, ok, err := e.store.Read(ctx, c.input.Profile.AudienceID)
				if err != nil {
					return fmt.Errorf("guardrail read for %s: %w", c.input.Profile.AudienceID, err)
				}
				if ok && now.Before(state.CooldownUntil) {
					c.action = domain.ActionRetest
					c.reasons = append(c.reasons,
						fmt.Sprintf("scaled at %s but spend fell below the noise floor; retest before further budget",
							state.LastScaleAt.UTC().Format(time.RFC3339)))
				}
			}
		}
	}

	if err := e.enforceBudgetCap(cands); err != nil {
		return err
	}

	// Commit: record cooldowns for the scale actions actually emitted.
	// The write is an atomic check-and-set, so a concurrent run racing on
	// the same audience loses here and downgrades instead of double-scaling.
	for _, c := range cands {
		if c.action != domain.ActionScale {
			continue
		}
		wrote, err := e.store.WriteIfAbsentOrExpired(ctx, c.input.Profile.AudienceID, now, cooldown)
		if err != nil {
			return fmt.Errorf("guardrail write for %s: %w", c.input.Profile.AudienceID, err)
		}
		if !wrote {
			c.downgrade(domain.ActionHold, ruleCooldownConflict, "concurrent scale detected; cooldown already recorded")
		}
	}
	return nil
}

// enforceBudgetCap bounds the aggregate daily budget increase across the
// account. When the cap would be exceeded, the lowest-composite-score
// scale candidates are downgraded first; ties break on audience id so the
// outcome is reproducible.
func (e *Engine) enforceBudgetCap(cands []*candidate) error {
	var scales []*candidate
	var total float64
	for _, c := range cands {
		if c.action != domain.ActionScale {
			continue
		}
		scales = append(scales, c)
		total += c.budgetIncrease()
	}
	if total <= e.cfg.Guardrails.MaxDailyBudgetIncrease {
		return nil
	}

	sort.Slice(scales, func(i, j int) bool {
		if scales[i].composite != scales[j].composite {
			return scales[i].composite < scales[j].composite
		}
		return scales[i].input.Profile.AudienceID < scales[j].input.Profile.AudienceID
	})
	for _, c := range scales {
		if total <= e.cfg.Guardrails.MaxDailyBudgetIncrease {
			break
		}
		total -= c.budgetIncrease()
		c.downgrade(domain.ActionHold, ruleBudgetCap,
			fmt.Sprintf("account daily budget-increase cap %.0f reached", e.cfg.Guardrails.MaxDailyBudgetIncrease))
	}
	return nil
}

func (c *candidate) budgetIncrease() float64 {
	return c.input.Profile.CurrentBudget * float64(c.scalePct) / 100
}
