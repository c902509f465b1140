package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemohq/mnemo/pkg/core"
	"github.com/mnemohq/mnemo/pkg/lifecycle"
)

func TestEffectiveImportanceDecaysWithAge(t *testing.T) {
	now := time.Now()
	fresh := &core.MemoryRecord{
		Importance: 0.8,
		MemoryType: core.MemoryEpisodic,
		CreatedAt:  now,
	}
	stale := &core.MemoryRecord{
		Importance: 0.8,
		MemoryType: core.MemoryEpisodic,
		CreatedAt:  now.Add(-1000 * time.Hour),
	}

	assert.Greater(t, lifecycle.EffectiveImportance(fresh, now), lifecycle.EffectiveImportance(stale, now))
}

func TestEffectiveImportanceBoostedByAccessCount(t *testing.T) {
	now := time.Now()
	base := &core.MemoryRecord{Importance: 0.3, MemoryType: core.MemorySemantic, CreatedAt: now}
	accessed := &core.MemoryRecord{Importance: 0.3, MemoryType: core.MemorySemantic, CreatedAt: now, AccessCount: 50}

	assert.Greater(t, lifecycle.EffectiveImportance(accessed, now), lifecycle.EffectiveImportance(base, now))
}

func TestEffectiveImportanceClampedToUnitRange(t *testing.T) {
	now := time.Now()
	m := &core.MemoryRecord{Importance: 1.0, MemoryType: core.MemorySemantic, CreatedAt: now, AccessCount: 1_000_000}
	assert.LessOrEqual(t, lifecycle.EffectiveImportance(m, now), 1.0)
}

func TestEffectiveImportanceUsesExplicitDecayRateOverride(t *testing.T) {
	now := time.Now().Add(-100 * time.Hour)
	slow := 0.0001
	m := &core.MemoryRecord{Importance: 0.8, MemoryType: core.MemoryWorking, CreatedAt: now, DecayRate: &slow}

	withOverride := lifecycle.EffectiveImportance(m, time.Now())
	m.DecayRate = nil
	withDefault := lifecycle.EffectiveImportance(m, time.Now())

	assert.Greater(t, withOverride, withDefault, "an explicit low decay_rate should retain more importance than working memory's fast default")
}

// fakeDriver implements the subset of core.Driver that RunDecayPass uses.
type fakeDriver struct {
	core.Driver
	memories []*core.MemoryRecord
	updated  []*core.MemoryRecord
}

func (f *fakeDriver) ListMemories(ctx context.Context, filter core.MemoryFilter, limit, offset int) ([]*core.MemoryRecord, error) {
	if offset >= len(f.memories) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(f.memories) {
		end = len(f.memories)
	}
	return f.memories[offset:end], nil
}

func (f *fakeDriver) UpdateMemory(ctx context.Context, m *core.MemoryRecord) error {
	f.updated = append(f.updated, m)
	return nil
}

func TestRunDecayPassTransitionsStates(t *testing.T) {
	now := time.Now()
	driver := &fakeDriver{memories: []*core.MemoryRecord{
		{ID: core.NewID(), AgentID: "a1", Importance: 0.9, MemoryType: core.MemorySemantic, CreatedAt: now, ConsolidationState: core.StateActive},
		{ID: core.NewID(), AgentID: "a1", Importance: 0.3, MemoryType: core.MemoryWorking, CreatedAt: now.Add(-500 * time.Hour), ConsolidationState: core.StateActive},
		{ID: core.NewID(), AgentID: "a1", Importance: 0.01, MemoryType: core.MemoryWorking, CreatedAt: now.Add(-5000 * time.Hour), ConsolidationState: core.StateActive},
	}}

	engine := lifecycle.NewEngine(driver, lifecycle.DefaultDecayConfig())
	evaluated, archived, forgotten, err := engine.RunDecayPass(context.Background(), "a1", now)

	require.NoError(t, err)
	assert.Equal(t, 3, evaluated)
	assert.GreaterOrEqual(t, archived+forgotten, 1)
	assert.Len(t, driver.updated, 3)
}

func TestRunDecayPassSkipsAlreadyForgotten(t *testing.T) {
	now := time.Now()
	driver := &fakeDriver{memories: []*core.MemoryRecord{
		{ID: core.NewID(), AgentID: "a1", ConsolidationState: core.StateForgotten, CreatedAt: now},
	}}

	engine := lifecycle.NewEngine(driver, lifecycle.DefaultDecayConfig())
	evaluated, _, _, err := engine.RunDecayPass(context.Background(), "a1", now)

	require.NoError(t, err)
	assert.Equal(t, 0, evaluated)
	assert.Empty(t, driver.updated)
}
