// Package guardstate holds the only state the engine mutates across
// runs: the per-audience record of the last scale action. The interface
// is deliberately narrow so the engine never depends on a storage
// technology, and every write is an atomic check-and-set so two
// concurrent runs cannot both scale inside one cooldown window.
package guardstate

import (
	"context"
	"sync"
	"time"

	"github.com/scalepilot/scalepilot/internal/domain"
)

// Store is the guardrail persistence contract.
type Store interface {
	// Read returns the audience's guardrail state, with ok=false when no
	// scale has been recorded. A returned state may already be expired;
	// callers compare CooldownUntil against their own clock.
	Read(ctx context.Context, audienceID string) (domain.GuardrailState, bool, error)

	// WriteIfAbsentOrExpired records a scale at now with the given
	// cooldown. It returns false without writing when an unexpired
	// cooldown already exists; the caller must then downgrade its scale.
	WriteIfAbsentOrExpired(ctx context.Context, audienceID string, now time.Time, cooldown time.Duration) (bool, error)
}

// Memory is the in-process Store used by tests and single-node runs.
// Each audience gets its own lock; different audiences never block each
// other.
type Memory struct {
	entries sync.Map // audienceID -> *memoryEntry
}

type memoryEntry struct {
	mu    sync.Mutex
	state domain.GuardrailState
	set   bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) entry(audienceID string) *memoryEntry {
	actual, _ := m.entries.LoadOrStore(audienceID, &memoryEntry{})
	return actual.(*memoryEntry)
}

func (m *Memory) Read(_ context.Context, audienceID string) (domain.GuardrailState, bool, error) {
	e := m.entry(audienceID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.set, nil
}

func (m *Memory) WriteIfAbsentOrExpired(_ context.Context, audienceID string, now time.Time, cooldown time.Duration) (bool, error) {
	e := m.entry(audienceID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set && now.Before(e.state.CooldownUntil) {
		return false, nil
	}
	e.state = domain.GuardrailState{
		AudienceID:    audienceID,
		LastScaleAt:   now,
		CooldownUntil: now.Add(cooldown),
	}
	e.set = true
	return true, nil
}
